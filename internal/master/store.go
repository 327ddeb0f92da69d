package master

import "context"

// MastersStore is the interface for durable master-table persistence.
//
// Contract: Replace swaps the full contents of both reporting tables in a
// single database transaction. A reader never observes a half-rebuilt
// master, and a failed rebuild leaves the previous tables intact.
type MastersStore interface {
	Replace(ctx context.Context, stage []StageMasterRow, application []ApplicationMasterRow) error
}
