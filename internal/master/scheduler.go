package master

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler rebuilds the reporting masters on a periodic interval.
// It is stateless: each tick rebuilds from the full event fact log.
type Scheduler struct {
	interval time.Duration
	service  *Service
}

// NewScheduler creates a periodic rebuild loop around the service.
func NewScheduler(interval time.Duration, service *Service) *Scheduler {
	return &Scheduler{interval: interval, service: service}
}

// Start begins periodic rebuilds. Runs until context is cancelled; a final
// rebuild runs on shutdown so the masters reflect everything folded so far.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting master rebuild scheduler", "interval", s.interval)

	s.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			slog.Info("[Scheduler] Running final rebuild before shutdown...")
			s.runOnce(shutdownCtx)
			slog.Info("[Scheduler] Final rebuild complete")

			return nil
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.service.Rebuild(ctx); err != nil {
		slog.Error("[Scheduler] Master rebuild failed", "error", err)
	}
}
