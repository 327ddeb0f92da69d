package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/voyage-lab/project-voyage/internal/core/storage"
)

// Store is an in-memory StateStore. Used by tests and dev mode; semantics
// track the postgres adapter, including ErrIntegrity on uniqueness races.
type Store struct {
	mu       sync.Mutex
	journeys map[string]storage.Journey
	steps    map[string]map[string]storage.Step
	subs     map[string]map[string]storage.SubProcess
	facts    []storage.EventFact

	nextStepID int64
	nextSubID  int64
	nextFactID int64
}

// NewStore creates an empty in-memory state store.
func NewStore() *Store {
	return &Store{
		journeys: make(map[string]storage.Journey),
		steps:    make(map[string]map[string]storage.Step),
		subs:     make(map[string]map[string]storage.SubProcess),
	}
}

func (s *Store) Begin(_ context.Context) (storage.StateTx, error) {
	return &tx{
		store:    s,
		journeys: make(map[string]*storage.Journey),
		created:  make(map[string]bool),
		steps:    make(map[string]*storage.Step),
		subs:     make(map[string]*storage.SubProcess),
	}, nil
}

func (s *Store) GetJourney(_ context.Context, journeyID string) (*storage.Journey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.journeys[journeyID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := cloneJourney(j)
	return &cp, nil
}

func (s *Store) ListSteps(_ context.Context, journeyID string) ([]storage.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Step
	for _, st := range s.steps[journeyID] {
		out = append(out, cloneStep(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepName < out[j].StepName })
	return out, nil
}

func (s *Store) ListSubProcesses(_ context.Context, journeyID string) ([]storage.SubProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.SubProcess
	for _, sp := range s.subs[journeyID] {
		out = append(out, cloneSubProcess(sp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListEventFacts(_ context.Context, journeyID string) ([]storage.EventFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.EventFact
	for _, f := range s.facts {
		if journeyID != "" && f.JourneyID != journeyID {
			continue
		}
		out = append(out, cloneFact(f))
	}
	return out, nil
}

func (s *Store) DeleteJourneyData(_ context.Context, journeyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.journeys, journeyID)
	delete(s.steps, journeyID)
	delete(s.subs, journeyID)
	kept := s.facts[:0]
	for _, f := range s.facts {
		if f.JourneyID != journeyID {
			kept = append(kept, f)
		}
	}
	s.facts = kept
	return nil
}

// tx stages all writes and applies them atomically on Commit.
type tx struct {
	store    *Store
	journeys map[string]*storage.Journey
	created  map[string]bool // journey IDs created inside this tx
	steps    map[string]*storage.Step
	subs     map[string]*storage.SubProcess
	facts    []*storage.EventFact
	done     bool
}

func stepKey(journeyID, stepName string) string { return journeyID + "\x00" + stepName }

func (t *tx) GetJourney(_ context.Context, journeyID string) (*storage.Journey, error) {
	if j, ok := t.journeys[journeyID]; ok {
		return j, nil
	}
	t.store.mu.Lock()
	j, ok := t.store.journeys[journeyID]
	t.store.mu.Unlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := cloneJourney(j)
	t.journeys[journeyID] = &cp
	return &cp, nil
}

func (t *tx) CreateJourney(ctx context.Context, j *storage.Journey) error {
	if _, err := t.GetJourney(ctx, j.JourneyID); err == nil {
		return fmt.Errorf("journey %q: %w", j.JourneyID, storage.ErrIntegrity)
	}
	j.LastUpdated = time.Now().UTC()
	t.journeys[j.JourneyID] = j
	t.created[j.JourneyID] = true
	return nil
}

func (t *tx) UpdateJourney(_ context.Context, j *storage.Journey) error {
	j.LastUpdated = time.Now().UTC()
	t.journeys[j.JourneyID] = j
	return nil
}

func (t *tx) GetStep(_ context.Context, journeyID, stepName string) (*storage.Step, error) {
	key := stepKey(journeyID, stepName)
	if s, ok := t.steps[key]; ok {
		return s, nil
	}
	t.store.mu.Lock()
	s, ok := t.store.steps[journeyID][stepName]
	t.store.mu.Unlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := cloneStep(s)
	t.steps[key] = &cp
	return &cp, nil
}

func (t *tx) CreateStep(ctx context.Context, s *storage.Step) error {
	if _, err := t.GetStep(ctx, s.JourneyID, s.StepName); err == nil {
		return fmt.Errorf("step (%s, %s): %w", s.JourneyID, s.StepName, storage.ErrIntegrity)
	}
	t.steps[stepKey(s.JourneyID, s.StepName)] = s
	return nil
}

func (t *tx) UpdateStep(_ context.Context, s *storage.Step) error {
	t.steps[stepKey(s.JourneyID, s.StepName)] = s
	return nil
}

func (t *tx) GetSubProcess(_ context.Context, journeyID, name string) (*storage.SubProcess, error) {
	key := stepKey(journeyID, name)
	if sp, ok := t.subs[key]; ok {
		return sp, nil
	}
	t.store.mu.Lock()
	sp, ok := t.store.subs[journeyID][name]
	t.store.mu.Unlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := cloneSubProcess(sp)
	t.subs[key] = &cp
	return &cp, nil
}

func (t *tx) CreateSubProcess(ctx context.Context, sp *storage.SubProcess) error {
	if _, err := t.GetSubProcess(ctx, sp.JourneyID, sp.Name); err == nil {
		return fmt.Errorf("sub_process (%s, %s): %w", sp.JourneyID, sp.Name, storage.ErrIntegrity)
	}
	t.subs[stepKey(sp.JourneyID, sp.Name)] = sp
	return nil
}

func (t *tx) UpdateSubProcess(_ context.Context, sp *storage.SubProcess) error {
	t.subs[stepKey(sp.JourneyID, sp.Name)] = sp
	return nil
}

func (t *tx) AppendEventFact(_ context.Context, f *storage.EventFact) error {
	t.facts = append(t.facts, f)
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return fmt.Errorf("memory tx already finished")
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check create uniqueness under the store lock: a concurrent tx may
	// have committed the same row since this tx staged it.
	for id := range t.created {
		if _, exists := s.journeys[id]; exists {
			return fmt.Errorf("journey %q: %w", id, storage.ErrIntegrity)
		}
	}
	for _, st := range t.steps {
		if st.ID == 0 {
			if _, exists := s.steps[st.JourneyID][st.StepName]; exists {
				return fmt.Errorf("step (%s, %s): %w", st.JourneyID, st.StepName, storage.ErrIntegrity)
			}
		}
	}

	for id, j := range t.journeys {
		s.journeys[id] = cloneJourney(*j)
	}
	for _, st := range t.steps {
		if st.ID == 0 {
			s.nextStepID++
			st.ID = s.nextStepID
		}
		if s.steps[st.JourneyID] == nil {
			s.steps[st.JourneyID] = make(map[string]storage.Step)
		}
		s.steps[st.JourneyID][st.StepName] = cloneStep(*st)
	}
	for _, sp := range t.subs {
		if sp.ID == 0 {
			s.nextSubID++
			sp.ID = s.nextSubID
		}
		if s.subs[sp.JourneyID] == nil {
			s.subs[sp.JourneyID] = make(map[string]storage.SubProcess)
		}
		s.subs[sp.JourneyID][sp.Name] = cloneSubProcess(*sp)
	}
	for _, f := range t.facts {
		s.nextFactID++
		f.ID = s.nextFactID
		s.facts = append(s.facts, cloneFact(*f))
	}
	return nil
}

func (t *tx) Rollback() error {
	t.done = true
	return nil
}

func cloneJourney(j storage.Journey) storage.Journey {
	j.StartTime = cloneTime(j.StartTime)
	j.EndTime = cloneTime(j.EndTime)
	if j.TATMinutes != nil {
		d := *j.TATMinutes
		j.TATMinutes = &d
	}
	if j.AgeDays != nil {
		n := *j.AgeDays
		j.AgeDays = &n
	}
	return j
}

func cloneStep(s storage.Step) storage.Step {
	s.StartTime = cloneTime(s.StartTime)
	s.EndTime = cloneTime(s.EndTime)
	if s.TATMinutes != nil {
		d := *s.TATMinutes
		s.TATMinutes = &d
	}
	return s
}

func cloneSubProcess(sp storage.SubProcess) storage.SubProcess {
	sp.StartTime = cloneTime(sp.StartTime)
	sp.EndTime = cloneTime(sp.EndTime)
	return sp
}

func cloneFact(f storage.EventFact) storage.EventFact {
	f.EventTS = cloneTime(f.EventTS)
	f.StageStartTS = cloneTime(f.StageStartTS)
	f.StageEndTS = cloneTime(f.StageEndTS)
	if f.Extra != nil {
		cp := make(map[string]interface{}, len(f.Extra))
		for k, v := range f.Extra {
			cp[k] = v
		}
		f.Extra = cp
	}
	return f
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
