package master

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voyage-lab/project-voyage/internal/core/event"
	"github.com/voyage-lab/project-voyage/internal/core/storage"
)

// GoldenConfig points at the reference datasets used for drift validation.
// Empty paths disable the corresponding check.
type GoldenConfig struct {
	StagePath       string `koanf:"stage_path"`
	ApplicationPath string `koanf:"application_path"`
}

// Service rebuilds the reporting masters from stored event facts and
// validates the result against golden datasets.
type Service struct {
	facts   storage.StateStore
	masters MastersStore
	builder *Builder
	golden  GoldenConfig
	tol     Tolerances
}

// NewService wires the rebuild pipeline. masters may be nil, in which case
// Rebuild computes and validates but does not persist (dry-run mode).
func NewService(facts storage.StateStore, masters MastersStore, builder *Builder, golden GoldenConfig, tol Tolerances) *Service {
	if facts == nil {
		panic("master: nil state store")
	}
	if builder == nil {
		builder = NewBuilder(0)
	}
	return &Service{
		facts:   facts,
		masters: masters,
		builder: builder,
		golden:  golden,
		tol:     tol,
	}
}

// RebuildResult summarises one rebuild run.
type RebuildResult struct {
	StageRows       int               `json:"stage_rows"`
	ApplicationRows int               `json:"application_rows"`
	Skipped         []GroupBuildError `json:"skipped_groups,omitempty"`
	Reports         []Report          `json:"validation,omitempty"`
	Persisted       bool              `json:"persisted"`
	Duration        time.Duration     `json:"-"`
}

// Rebuild reads every stored event fact, rebuilds both masters, persists
// them atomically, then runs drift validation. Validation failures are
// reported but do not roll back the rebuild.
func (s *Service) Rebuild(ctx context.Context) (RebuildResult, error) {
	started := time.Now()

	facts, err := s.facts.ListEventFacts(ctx, "")
	if err != nil {
		return RebuildResult{}, fmt.Errorf("load event facts: %w", err)
	}

	built, err := s.builder.Build(ctx, FrameFromFacts(facts))
	if err != nil {
		return RebuildResult{}, fmt.Errorf("build masters: %w", err)
	}

	res := RebuildResult{
		StageRows:       len(built.Stage),
		ApplicationRows: len(built.Application),
		Skipped:         built.Skipped,
	}

	if s.masters != nil {
		if err := s.masters.Replace(ctx, built.Stage, built.Application); err != nil {
			return res, fmt.Errorf("persist masters: %w", err)
		}
		res.Persisted = true
	}

	res.Reports = s.validate(built)
	res.Duration = time.Since(started)

	slog.Info("[Master] Rebuild finished",
		"stage_rows", res.StageRows,
		"application_rows", res.ApplicationRows,
		"skipped_groups", len(res.Skipped),
		"persisted", res.Persisted,
		"duration", res.Duration)
	return res, nil
}

func (s *Service) validate(built Result) []Report {
	var reports []Report
	if s.golden.StagePath != "" {
		reports = append(reports, s.validateOne(s.golden.StagePath, func(golden event.Frame) Report {
			return ValidateStage(built.Stage, golden, s.tol)
		}))
	}
	if s.golden.ApplicationPath != "" {
		reports = append(reports, s.validateOne(s.golden.ApplicationPath, func(golden event.Frame) Report {
			return ValidateApplication(built.Application, golden, s.tol)
		}))
	}
	for _, rep := range reports {
		if !rep.OK() {
			slog.Warn("[Master] Drift validation failed",
				"dataset", rep.Dataset, "issues", len(rep.Issues))
			for _, issue := range rep.Issues {
				slog.Warn("[Master] Drift issue",
					"dataset", rep.Dataset, "check", issue.Check,
					"column", issue.Column, "detail", issue.Detail)
			}
		}
	}
	return reports
}

func (s *Service) validateOne(path string, run func(event.Frame) Report) Report {
	golden, err := LoadGoldenCSV(path)
	if err != nil {
		return Report{
			Dataset: path,
			Issues:  []DriftIssue{{Check: "golden", Detail: err.Error()}},
		}
	}
	return run(golden)
}
