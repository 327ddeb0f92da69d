package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/voyage-lab/project-voyage/internal/core/storage"
)

// marshalExtra marshals an event fact's open attribute bag to JSON.
// Nil or empty produces nil (SQL NULL) rather than the JSON "null" string.
func marshalExtra(extra map[string]interface{}) ([]byte, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	out, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extra: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func decimalPtr(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", ns.String, err)
	}
	return &d, nil
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJourney(row scanner) (*storage.Journey, error) {
	var (
		j          storage.Journey
		status     sql.NullString
		start, end sql.NullTime
		tat        sql.NullString
		age        sql.NullInt64
	)
	err := row.Scan(&j.JourneyID, &status, &start, &end, &tat, &age, &j.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan journey row: %w", err)
	}
	j.Status = status.String
	j.StartTime = timePtr(start)
	j.EndTime = timePtr(end)
	if j.TATMinutes, err = decimalPtr(tat); err != nil {
		return nil, err
	}
	j.AgeDays = intPtr(age)
	return &j, nil
}

func scanStep(row scanner) (*storage.Step, error) {
	var (
		s                 storage.Step
		status, performer sql.NullString
		start, end        sql.NullTime
		tat               sql.NullString
	)
	err := row.Scan(&s.ID, &s.JourneyID, &s.StepName, &status, &start, &end, &tat, &performer, &s.IssuesCount)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan step row: %w", err)
	}
	s.Status = status.String
	s.PerformedBy = performer.String
	s.StartTime = timePtr(start)
	s.EndTime = timePtr(end)
	if s.TATMinutes, err = decimalPtr(tat); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSubProcess(row scanner) (*storage.SubProcess, error) {
	var (
		sp         storage.SubProcess
		status     sql.NullString
		start, end sql.NullTime
	)
	err := row.Scan(&sp.ID, &sp.JourneyID, &sp.Name, &status, &start, &end)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sub_process row: %w", err)
	}
	sp.Status = status.String
	sp.StartTime = timePtr(start)
	sp.EndTime = timePtr(end)
	return &sp, nil
}

func scanEventFact(row scanner) (*storage.EventFact, error) {
	var (
		f                                          storage.EventFact
		subProc, stepName, statusAfter, performer  sql.NullString
		riskGrade, uwDecision, issueFlag, issueCod sql.NullString
		eventTS, stageStart, stageEnd              sql.NullTime
		extraJSON                                  []byte
	)
	err := row.Scan(
		&f.ID, &f.JourneyID, &subProc, &stepName,
		&eventTS, &stageStart, &stageEnd,
		&statusAfter, &performer, &riskGrade, &uwDecision,
		&issueFlag, &issueCod, &extraJSON,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event_fact row: %w", err)
	}
	f.SubProcess = subProc.String
	f.StepName = stepName.String
	f.EventTS = timePtr(eventTS)
	f.StageStartTS = timePtr(stageStart)
	f.StageEndTS = timePtr(stageEnd)
	f.StatusAfter = statusAfter.String
	f.PerformedBy = performer.String
	f.RiskGrade = riskGrade.String
	f.UWDecision = uwDecision.String
	f.IssueFlag = issueFlag.String
	f.IssueCode = issueCod.String
	if len(extraJSON) > 0 {
		if err := json.Unmarshal(extraJSON, &f.Extra); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extra: %w", err)
		}
	}
	return &f, nil
}
