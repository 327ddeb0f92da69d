package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/voyage-lab/project-voyage/internal/core/storage"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	t = t.UTC()
	return &t
}

func TestTx_CommitMakesStateVisible(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.CreateJourney(ctx, &storage.Journey{JourneyID: "J1", Status: "Started"}))
	require.NoError(t, tx.CreateStep(ctx, &storage.Step{JourneyID: "J1", StepName: "StageA"}))

	// Nothing visible before commit.
	_, err = store.GetJourney(ctx, "J1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, tx.Commit())

	j, err := store.GetJourney(ctx, "J1")
	require.NoError(t, err)
	require.Equal(t, "Started", j.Status)

	steps, err := store.ListSteps(ctx, "J1")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.NotZero(t, steps[0].ID)
}

func TestTx_RollbackDiscardsState(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateJourney(ctx, &storage.Journey{JourneyID: "J1"}))
	require.NoError(t, tx.AppendEventFact(ctx, &storage.EventFact{JourneyID: "J1"}))
	require.NoError(t, tx.Rollback())

	_, err = store.GetJourney(ctx, "J1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	facts, err := store.ListEventFacts(ctx, "")
	require.NoError(t, err)
	require.Empty(t, facts)
}

func TestTx_DuplicateCreateIsIntegrityError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx1, _ := store.Begin(ctx)
	require.NoError(t, tx1.CreateJourney(ctx, &storage.Journey{JourneyID: "J1"}))
	require.NoError(t, tx1.Commit())

	tx2, _ := store.Begin(ctx)
	err := tx2.CreateJourney(ctx, &storage.Journey{JourneyID: "J1"})
	require.ErrorIs(t, err, storage.ErrIntegrity)
}

func TestTx_ConcurrentCreateRaceDetectedAtCommit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	// Both transactions stage the same new journey before either commits.
	tx1, _ := store.Begin(ctx)
	tx2, _ := store.Begin(ctx)
	require.NoError(t, tx1.CreateJourney(ctx, &storage.Journey{JourneyID: "J1"}))
	require.NoError(t, tx2.CreateJourney(ctx, &storage.Journey{JourneyID: "J1"}))

	require.NoError(t, tx1.Commit())
	require.ErrorIs(t, tx2.Commit(), storage.ErrIntegrity)
}

func TestStore_DeleteJourneyDataCascades(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx, _ := store.Begin(ctx)
	require.NoError(t, tx.CreateJourney(ctx, &storage.Journey{JourneyID: "J1"}))
	require.NoError(t, tx.CreateStep(ctx, &storage.Step{JourneyID: "J1", StepName: "StageA"}))
	require.NoError(t, tx.CreateSubProcess(ctx, &storage.SubProcess{JourneyID: "J1", Name: "Verification"}))
	require.NoError(t, tx.AppendEventFact(ctx, &storage.EventFact{JourneyID: "J1", EventTS: ts("2024-03-01T10:00:00Z")}))
	require.NoError(t, tx.Commit())

	require.NoError(t, store.DeleteJourneyData(ctx, "J1"))

	_, err := store.GetJourney(ctx, "J1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	steps, _ := store.ListSteps(ctx, "J1")
	require.Empty(t, steps)
	subs, _ := store.ListSubProcesses(ctx, "J1")
	require.Empty(t, subs)
	facts, _ := store.ListEventFacts(ctx, "J1")
	require.Empty(t, facts)
}

func TestStore_ListEventFactsFilter(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx, _ := store.Begin(ctx)
	require.NoError(t, tx.AppendEventFact(ctx, &storage.EventFact{JourneyID: "J1"}))
	require.NoError(t, tx.AppendEventFact(ctx, &storage.EventFact{JourneyID: "J2"}))
	require.NoError(t, tx.Commit())

	all, err := store.ListEventFacts(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	one, err := store.ListEventFacts(ctx, "J2")
	require.NoError(t, err)
	require.Len(t, one, 1)
	require.Equal(t, "J2", one[0].JourneyID)
}

func TestStore_ReturnsClones(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx, _ := store.Begin(ctx)
	require.NoError(t, tx.CreateJourney(ctx, &storage.Journey{JourneyID: "J1", Status: "Started"}))
	require.NoError(t, tx.Commit())

	j, _ := store.GetJourney(ctx, "J1")
	j.Status = "mutated"

	again, _ := store.GetJourney(ctx, "J1")
	require.Equal(t, "Started", again.Status)
}
