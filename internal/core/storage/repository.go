package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("entity not found")

// ErrIntegrity is returned when a constraint is violated during a fold,
// typically a uniqueness race on Step creation. The caller must roll back
// and retry the whole journey batch.
var ErrIntegrity = errors.New("integrity constraint violated")

// StateStore is the persistence boundary of the fold engine and the query API.
type StateStore interface {
	// Begin opens a transaction scoping one journey's fold. All reads and
	// writes inside the fold go through the returned StateTx; nothing is
	// visible to other callers until Commit.
	Begin(ctx context.Context) (StateTx, error)

	// GetJourney returns a journey outside any fold transaction.
	// Returns ErrNotFound when the journey does not exist.
	GetJourney(ctx context.Context, journeyID string) (*Journey, error)

	// ListSteps returns all steps of a journey ordered by step name.
	ListSteps(ctx context.Context, journeyID string) ([]Step, error)

	// ListSubProcesses returns all sub-processes of a journey ordered by name.
	ListSubProcesses(ctx context.Context, journeyID string) ([]SubProcess, error)

	// ListEventFacts returns the journey's audit trail in append order.
	// An empty journeyID returns every fact — the masters rebuild input.
	ListEventFacts(ctx context.Context, journeyID string) ([]EventFact, error)

	// DeleteJourneyData removes the journey row and all dependent Step,
	// SubProcess and EventFact rows. The explicit cascade invoked by the
	// retention process; the fold engine never deletes.
	DeleteJourneyData(ctx context.Context, journeyID string) error
}

// StateTx is the unit-of-work handed to the fold engine. Implementations map
// uniqueness violations to ErrIntegrity so the engine can abort cleanly.
type StateTx interface {
	GetJourney(ctx context.Context, journeyID string) (*Journey, error)
	CreateJourney(ctx context.Context, j *Journey) error
	UpdateJourney(ctx context.Context, j *Journey) error

	GetStep(ctx context.Context, journeyID, stepName string) (*Step, error)
	CreateStep(ctx context.Context, s *Step) error
	UpdateStep(ctx context.Context, s *Step) error

	GetSubProcess(ctx context.Context, journeyID, name string) (*SubProcess, error)
	CreateSubProcess(ctx context.Context, sp *SubProcess) error
	UpdateSubProcess(ctx context.Context, sp *SubProcess) error

	AppendEventFact(ctx context.Context, f *EventFact) error

	Commit() error
	Rollback() error
}
