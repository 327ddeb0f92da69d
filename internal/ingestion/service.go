package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voyage-lab/project-voyage/internal/core/event"
	"github.com/voyage-lab/project-voyage/internal/core/standardise"
	"github.com/voyage-lab/project-voyage/internal/fold"
	"golang.org/x/sync/errgroup"
)

// Service runs the batch workflow: standardise the raw frame, group by
// journey, fold each journey in parallel.
type Service struct {
	pipeline         *standardise.Pipeline
	processor        *fold.Processor
	idem             *IdempotencyStore
	workers          int
	maxBodySizeBytes int
}

// NewService wires the ingestion workflow.
func NewService(pipeline *standardise.Pipeline, processor *fold.Processor, idem *IdempotencyStore, workers, maxBodySizeMB int) *Service {
	if pipeline == nil {
		panic("ingestion: pipeline must not be nil")
	}
	if processor == nil {
		panic("ingestion: processor must not be nil")
	}
	if idem == nil {
		idem = NewIdempotencyStore(0)
	}
	if workers <= 0 {
		workers = 4
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 8
	}
	return &Service{
		pipeline:         pipeline,
		processor:        processor,
		idem:             idem,
		workers:          workers,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// BatchSummary reports what one batch did to durable state.
type BatchSummary struct {
	RowsReceived    int `json:"rows_received"`
	Journeys        int `json:"journeys"`
	EventsProcessed int `json:"events_processed"`
	IssuesFound     int `json:"issues_found"`
}

// ProcessBatch standardises the frame, splits it into per-journey event
// groups and folds each group. Journeys fold independently so one journey's
// rollback does not affect the others.
func (s *Service) ProcessBatch(ctx context.Context, frame event.Frame) (BatchSummary, error) {
	summary := BatchSummary{RowsReceived: len(frame.Rows)}

	standardised, err := s.pipeline.Run(frame)
	if err != nil {
		return summary, err
	}
	if !standardised.HasColumn("journey_id") {
		return summary, fmt.Errorf("journey_id missing after standardisation")
	}

	events := make([]event.Event, 0, len(standardised.Rows))
	for i, row := range standardised.Rows {
		evt, err := event.FromRow(row)
		if err != nil {
			return summary, fmt.Errorf("row %d: %w", i, err)
		}
		events = append(events, evt)
	}

	groups := event.GroupByJourney(events)
	summary.Journeys = len(groups)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for journeyID, group := range groups {
		g.Go(func() error {
			res, err := s.processor.Process(gctx, journeyID, group)
			if err != nil {
				return fmt.Errorf("journey %s: %w", journeyID, err)
			}
			mu.Lock()
			summary.EventsProcessed += res.EventsProcessed
			summary.IssuesFound += res.IssuesFromEvents
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	slog.Info("[Ingestion] Batch folded",
		"rows", summary.RowsReceived,
		"journeys", summary.Journeys,
		"events_processed", summary.EventsProcessed,
		"issues_found", summary.IssuesFound)
	return summary, nil
}
