package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voyage-lab/project-voyage/internal/master"
)

// MastersAdapter persists the reporting master tables.
// Replace swaps the full contents of both tables in one transaction so
// readers never see a half-rebuilt master.
type MastersAdapter struct {
	db *sql.DB
}

// NewMastersAdapter wraps an existing connection pool, normally the one
// backing the state adapter.
func NewMastersAdapter(db *sql.DB) *MastersAdapter {
	return &MastersAdapter{db: db}
}

var _ master.MastersStore = (*MastersAdapter)(nil)

func (a *MastersAdapter) Replace(ctx context.Context, stage []master.StageMasterRow, application []master.ApplicationMasterRow) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin masters transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, queryTruncateStageMaster); err != nil {
		return fmt.Errorf("clear stage master: %w", err)
	}
	for _, r := range stage {
		_, err := tx.ExecContext(ctx, queryInsertStageMaster,
			r.ApplicationID, r.Stage,
			nullTime(r.StageStart), nullTime(r.StageEnd),
			nullDecimal(r.TATMinutes), nullInt(r.AgeDays),
			nullString(r.RiskGrade), nullString(r.UWDecision),
			nullString(r.StageStatus), nullString(r.PerformedBy),
			r.IssuesCount,
		)
		if err != nil {
			return fmt.Errorf("insert stage master row (%s, %s): %w", r.ApplicationID, r.Stage, err)
		}
	}

	if _, err := tx.ExecContext(ctx, queryTruncateApplicationMaster); err != nil {
		return fmt.Errorf("clear application master: %w", err)
	}
	for _, r := range application {
		_, err := tx.ExecContext(ctx, queryInsertApplicationMaster,
			r.ApplicationID,
			nullString(r.ProductType), nullString(r.Channel),
			nullTime(r.ApplicationStart), nullTime(r.ApplicationEnd),
			nullDecimal(r.TotalTATMinutes), nullInt(r.AgeDays),
			nullString(r.FinalRiskGrade), nullString(r.FinalUWDecision),
			nullString(r.ApplicationStatus), nullString(r.PerformedBy),
			r.IssuesCount,
		)
		if err != nil {
			return fmt.Errorf("insert application master row (%s): %w", r.ApplicationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit masters transaction: %w", err)
	}
	return nil
}
