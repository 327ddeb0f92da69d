package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Journey is the per-business-process aggregate row, keyed by JourneyID.
// StartTime only ever moves earlier, EndTime only ever later; TATMinutes and
// AgeDays are derived. Created lazily on first event, never deleted by the
// fold engine — retention is an explicit DeleteJourneyData call.
type Journey struct {
	JourneyID   string           `json:"journey_id"`
	Status      string           `json:"status,omitempty"`
	StartTime   *time.Time       `json:"start_time,omitempty"`
	EndTime     *time.Time       `json:"end_time,omitempty"`
	TATMinutes  *decimal.Decimal `json:"tat_minutes,omitempty"`
	AgeDays     *int             `json:"age_days,omitempty"`
	LastUpdated time.Time        `json:"last_updated"`
}

// Step is the per-(journey, step) aggregate row. (JourneyID, StepName) is
// unique. IssuesCount only ever increments.
type Step struct {
	ID          int64            `json:"-"`
	JourneyID   string           `json:"journey_id"`
	StepName    string           `json:"step_name"`
	Status      string           `json:"status,omitempty"`
	StartTime   *time.Time       `json:"start_time,omitempty"`
	EndTime     *time.Time       `json:"end_time,omitempty"`
	TATMinutes  *decimal.Decimal `json:"tat_minutes,omitempty"`
	PerformedBy string           `json:"performed_by,omitempty"`
	IssuesCount int              `json:"issues_count"`
}

// SubProcess mirrors Step at a coarser granularity. (JourneyID, Name) is unique.
type SubProcess struct {
	ID        int64      `json:"-"`
	JourneyID string     `json:"journey_id"`
	Name      string     `json:"name"`
	Status    string     `json:"status,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// EventFact is the append-only audit copy of one standardised event.
// No natural key, never updated or deleted by the fold engine.
type EventFact struct {
	ID           int64                  `json:"-"`
	JourneyID    string                 `json:"journey_id"`
	SubProcess   string                 `json:"sub_process,omitempty"`
	StepName     string                 `json:"step_name,omitempty"`
	EventTS      *time.Time             `json:"event_ts,omitempty"`
	StageStartTS *time.Time             `json:"stage_start_ts,omitempty"`
	StageEndTS   *time.Time             `json:"stage_end_ts,omitempty"`
	StatusAfter  string                 `json:"status_after,omitempty"`
	PerformedBy  string                 `json:"performed_by,omitempty"`
	RiskGrade    string                 `json:"risk_grade,omitempty"`
	UWDecision   string                 `json:"uw_decision,omitempty"`
	IssueFlag    string                 `json:"issue_flag,omitempty"`
	IssueCode    string                 `json:"issue_code,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}
