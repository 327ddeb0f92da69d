package fold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voyage-lab/project-voyage/internal/core/event"
	"github.com/voyage-lab/project-voyage/internal/core/storage"
	"github.com/voyage-lab/project-voyage/internal/core/timing"
)

// Summary is the per-batch result record emitted after a successful fold.
type Summary struct {
	JourneyID        string `json:"journey_id"`
	EventsProcessed  int    `json:"events_processed"`
	StepsSeen        int    `json:"steps_seen"`
	IssuesFromEvents int    `json:"issues_from_events"`
}

// Processor folds one journey's event batch into persisted Journey, Step and
// SubProcess state, appending EventFact audit rows, inside a single
// transaction. A failed fold rolls back entirely — partial state is never
// persisted. Aggregate fields converge under replay (min/max accumulation,
// last-write-wins); issues_count does not: it increments once per event with
// an issue indicator and double-counts on naive replay. That is the recorded
// behavior, mitigated by batch dedup at the ingestion edge.
type Processor struct {
	store storage.StateStore
	locks *KeyedLock
	now   func() time.Time
}

// NewProcessor creates a fold processor on the given state store.
func NewProcessor(store storage.StateStore) *Processor {
	if store == nil {
		panic("fold: store must not be nil")
	}
	return &Processor{
		store: store,
		locks: NewKeyedLock(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Process folds the journey's events in chronological order. Events need not
// arrive pre-sorted: the processor performs the final (event_ts, stage_end_ts)
// nulls-last sort before folding. Folds for the same journey are serialized;
// different journeys may run concurrently.
func (p *Processor) Process(ctx context.Context, journeyID string, events []event.Event) (Summary, error) {
	if journeyID == "" {
		return Summary{}, fmt.Errorf("fold: journey_id must not be empty")
	}

	p.locks.Lock(journeyID)
	defer p.locks.Unlock(journeyID)

	sorted := append([]event.Event(nil), events...)
	event.SortEvents(sorted)

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("fold journey %q: %w", journeyID, err)
	}

	summary, err := p.fold(ctx, tx, journeyID, sorted)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("[Fold] Rollback failed", "journey_id", journeyID, "error", rbErr)
		}
		slog.Error("[Fold] Journey batch rolled back", "journey_id", journeyID, "error", err)
		return Summary{}, fmt.Errorf("fold journey %q: %w", journeyID, err)
	}

	if err := tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("fold journey %q: %w", journeyID, err)
	}

	slog.Info("[Fold] Journey batch committed",
		"journey_id", summary.JourneyID,
		"events", summary.EventsProcessed,
		"steps_seen", summary.StepsSeen,
		"issues_from_events", summary.IssuesFromEvents)
	return summary, nil
}

func (p *Processor) fold(ctx context.Context, tx storage.StateTx, journeyID string, events []event.Event) (Summary, error) {
	journey, err := p.ensureJourney(ctx, tx, journeyID)
	if err != nil {
		return Summary{}, err
	}

	steps := make(map[string]*storage.Step)
	subs := make(map[string]*storage.SubProcess)
	issues := 0

	for _, evt := range events {
		step, err := p.ensureStep(ctx, tx, steps, journeyID, evt.EffectiveStepName())
		if err != nil {
			return Summary{}, err
		}

		var sub *storage.SubProcess
		if evt.SubProcess != "" {
			if sub, err = p.ensureSubProcess(ctx, tx, subs, journeyID, evt.SubProcess); err != nil {
				return Summary{}, err
			}
		}

		if applyIssues(step, evt) {
			issues++
		}
		applyStatus(journey, step, sub, evt)
		applyTiming(journey, step, sub, evt, p.now())

		if evt.PerformedBy != "" {
			step.PerformedBy = evt.PerformedBy
		}

		if err := tx.AppendEventFact(ctx, factFromEvent(journeyID, evt)); err != nil {
			return Summary{}, err
		}
	}

	if journey.StartTime != nil && journey.EndTime != nil && !journey.EndTime.Before(*journey.StartTime) {
		tat := timing.TATMinutes(*journey.StartTime, *journey.EndTime)
		journey.TATMinutes = &tat
	}

	journey.LastUpdated = p.now()
	if err := tx.UpdateJourney(ctx, journey); err != nil {
		return Summary{}, err
	}
	for _, step := range steps {
		if err := tx.UpdateStep(ctx, step); err != nil {
			return Summary{}, err
		}
	}
	for _, sub := range subs {
		if err := tx.UpdateSubProcess(ctx, sub); err != nil {
			return Summary{}, err
		}
	}

	return Summary{
		JourneyID:        journeyID,
		EventsProcessed:  len(events),
		StepsSeen:        len(steps),
		IssuesFromEvents: issues,
	}, nil
}

// ensureJourney loads the journey row, creating a fresh one with null timing
// and status on first contact.
func (p *Processor) ensureJourney(ctx context.Context, tx storage.StateTx, journeyID string) (*storage.Journey, error) {
	j, err := tx.GetJourney(ctx, journeyID)
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	j = &storage.Journey{JourneyID: journeyID, LastUpdated: p.now()}
	if err := tx.CreateJourney(ctx, j); err != nil {
		return nil, err
	}
	slog.Info("[Fold] Journey created", "journey_id", journeyID)
	return j, nil
}

func (p *Processor) ensureStep(ctx context.Context, tx storage.StateTx, cache map[string]*storage.Step, journeyID, stepName string) (*storage.Step, error) {
	if s, ok := cache[stepName]; ok {
		return s, nil
	}
	s, err := tx.GetStep(ctx, journeyID, stepName)
	if errors.Is(err, storage.ErrNotFound) {
		s = &storage.Step{JourneyID: journeyID, StepName: stepName}
		if err := tx.CreateStep(ctx, s); err != nil {
			return nil, err
		}
		slog.Debug("[Fold] Step created", "journey_id", journeyID, "step_name", stepName)
	} else if err != nil {
		return nil, err
	}
	cache[stepName] = s
	return s, nil
}

func (p *Processor) ensureSubProcess(ctx context.Context, tx storage.StateTx, cache map[string]*storage.SubProcess, journeyID, name string) (*storage.SubProcess, error) {
	if sp, ok := cache[name]; ok {
		return sp, nil
	}
	sp, err := tx.GetSubProcess(ctx, journeyID, name)
	if errors.Is(err, storage.ErrNotFound) {
		sp = &storage.SubProcess{JourneyID: journeyID, Name: name}
		if err := tx.CreateSubProcess(ctx, sp); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	cache[name] = sp
	return sp, nil
}

// applyIssues increments the step's issue counter when the event carries an
// issue indicator. No dedup across repeated events.
func applyIssues(step *storage.Step, evt event.Event) bool {
	if !evt.HasIssue() {
		return false
	}
	step.IssuesCount++
	return true
}

// applyStatus overwrites step and journey status with status_after when
// present. Journey status tracks the most recently processed event across
// all steps — last writer wins globally, not per step.
func applyStatus(journey *storage.Journey, step *storage.Step, sub *storage.SubProcess, evt event.Event) {
	if evt.StatusAfter == "" {
		return
	}
	step.Status = evt.StatusAfter
	journey.Status = evt.StatusAfter
	if sub != nil {
		sub.Status = evt.StatusAfter
	}
}

// applyTiming folds the event's timestamps into step and journey accumulators:
// step start is the min of stage_start_ts values, falling back to event_ts
// only while unset; step end is the max of stage_end_ts values; journey
// start/end accumulate min/max over event_ts regardless of step.
func applyTiming(journey *storage.Journey, step *storage.Step, sub *storage.SubProcess, evt event.Event, now time.Time) {
	if evt.StageStartTS != nil {
		step.StartTime = timing.MinTime(step.StartTime, *evt.StageStartTS)
	} else if evt.EventTS != nil && step.StartTime == nil {
		step.StartTime = evt.EventTS
	}
	if evt.StageEndTS != nil {
		step.EndTime = timing.MaxTime(step.EndTime, *evt.StageEndTS)
	}
	if step.StartTime != nil && step.EndTime != nil && !step.EndTime.Before(*step.StartTime) {
		tat := timing.TATMinutes(*step.StartTime, *step.EndTime)
		step.TATMinutes = &tat
	}

	if sub != nil {
		if evt.StageStartTS != nil {
			sub.StartTime = timing.MinTime(sub.StartTime, *evt.StageStartTS)
		} else if evt.EventTS != nil && sub.StartTime == nil {
			sub.StartTime = evt.EventTS
		}
		if evt.StageEndTS != nil {
			sub.EndTime = timing.MaxTime(sub.EndTime, *evt.StageEndTS)
		}
	}

	if evt.EventTS != nil {
		journey.StartTime = timing.MinTime(journey.StartTime, *evt.EventTS)
		journey.EndTime = timing.MaxTime(journey.EndTime, *evt.EventTS)
	}
	if journey.StartTime != nil {
		age := timing.AgeDays(*journey.StartTime, now)
		journey.AgeDays = &age
	}
}

func factFromEvent(journeyID string, evt event.Event) *storage.EventFact {
	return &storage.EventFact{
		JourneyID:    journeyID,
		SubProcess:   evt.SubProcess,
		StepName:     evt.StepName,
		EventTS:      evt.EventTS,
		StageStartTS: evt.StageStartTS,
		StageEndTS:   evt.StageEndTS,
		StatusAfter:  evt.StatusAfter,
		PerformedBy:  evt.PerformedBy,
		RiskGrade:    evt.RiskGrade,
		UWDecision:   evt.UWDecision,
		IssueFlag:    evt.IssueFlag,
		IssueCode:    evt.IssueCode,
		Extra:        evt.Extra,
	}
}
