package projection

import (
	"context"
	"fmt"

	"github.com/voyage-lab/project-voyage/internal/core/storage"
)

// JourneyView is the observable folded state of one journey.
type JourneyView struct {
	Journey      storage.Journey      `json:"journey"`
	Steps        []storage.Step       `json:"steps"`
	SubProcesses []storage.SubProcess `json:"sub_processes,omitempty"`
}

// Service reads and retires folded journey state.
type Service struct {
	store storage.StateStore
}

func NewService(store storage.StateStore) *Service {
	if store == nil {
		panic("projection: store must not be nil")
	}
	return &Service{store: store}
}

// GetJourney returns the journey aggregate with its steps and sub-processes.
// Returns storage.ErrNotFound when the journey was never folded.
func (s *Service) GetJourney(ctx context.Context, journeyID string) (JourneyView, error) {
	journey, err := s.store.GetJourney(ctx, journeyID)
	if err != nil {
		return JourneyView{}, err
	}

	steps, err := s.store.ListSteps(ctx, journeyID)
	if err != nil {
		return JourneyView{}, fmt.Errorf("list steps for %s: %w", journeyID, err)
	}
	subs, err := s.store.ListSubProcesses(ctx, journeyID)
	if err != nil {
		return JourneyView{}, fmt.Errorf("list sub-processes for %s: %w", journeyID, err)
	}

	return JourneyView{Journey: *journey, Steps: steps, SubProcesses: subs}, nil
}

// DeleteJourney removes the journey and everything hanging off it. The fold
// engine never deletes; this is the explicit retention path.
func (s *Service) DeleteJourney(ctx context.Context, journeyID string) error {
	if _, err := s.store.GetJourney(ctx, journeyID); err != nil {
		return err
	}
	return s.store.DeleteJourneyData(ctx, journeyID)
}
