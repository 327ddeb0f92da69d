package master

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/voyage-lab/project-voyage/internal/core/event"
	"github.com/voyage-lab/project-voyage/internal/core/timing"
	"golang.org/x/sync/errgroup"
)

// Raw input column names. The builder consumes the batch before
// standardisation, so these are the upstream system's labels.
const (
	ColApplicationID = "Application_ID"
	ColStage         = "Stage"
	ColActivityTS    = "Activity_Timestamp"
	ColStageStartTS  = "Stage_Start_Timestamp"
	ColStageEndTS    = "Stage_End_Timestamp"
	ColRiskGrade     = "Risk_Grade"
	ColUWDecision    = "UW_Decision"
	ColStatusAfter   = "Status_After_Activity"
	ColPerformedBy   = "Performed_By"
	ColProductType   = "Product_Type"
	ColChannel       = "Channel"
	ColIssueFlag     = "Issue_Flag"
	ColIssueCode     = "Issue_Code"
)

// StageMasterColumns is the durable column contract of the stage master
// table, checked by schema-drift tests against reference files.
var StageMasterColumns = []string{
	"Application_ID", "Stage", "Stage_Start", "Stage_End",
	"TAT_Minutes", "Age_Days", "Risk_Grade", "UW_Decision",
	"Stage_Status", "Performed_By", "Issues_Count",
}

// ApplicationMasterColumns is the application master's column contract.
var ApplicationMasterColumns = []string{
	"Application_ID", "Product_Type", "Channel",
	"Application_Start", "Application_End",
	"Total_TAT_Minutes", "Age_Days",
	"Final_Risk_Grade", "Final_UW_Decision", "Application_Status",
	"Performed_By", "Issues_Count",
}

// StageMasterRow is one (application, stage) reporting row.
type StageMasterRow struct {
	ApplicationID string           `json:"Application_ID"`
	Stage         string           `json:"Stage"`
	StageStart    *time.Time       `json:"Stage_Start"`
	StageEnd      *time.Time       `json:"Stage_End"`
	TATMinutes    *decimal.Decimal `json:"TAT_Minutes"`
	AgeDays       *int             `json:"Age_Days"`
	RiskGrade     string           `json:"Risk_Grade"`
	UWDecision    string           `json:"UW_Decision"`
	StageStatus   string           `json:"Stage_Status"`
	PerformedBy   string           `json:"Performed_By"`
	IssuesCount   int              `json:"Issues_Count"`
}

// ApplicationMasterRow is one per-application reporting row.
type ApplicationMasterRow struct {
	ApplicationID     string           `json:"Application_ID"`
	ProductType       string           `json:"Product_Type"`
	Channel           string           `json:"Channel"`
	ApplicationStart  *time.Time       `json:"Application_Start"`
	ApplicationEnd    *time.Time       `json:"Application_End"`
	TotalTATMinutes   *decimal.Decimal `json:"Total_TAT_Minutes"`
	AgeDays           *int             `json:"Age_Days"`
	FinalRiskGrade    string           `json:"Final_Risk_Grade"`
	FinalUWDecision   string           `json:"Final_UW_Decision"`
	ApplicationStatus string           `json:"Application_Status"`
	PerformedBy       string           `json:"Performed_By"`
	IssuesCount       int              `json:"Issues_Count"`
}

// GroupBuildError records one skipped group. The builder never aborts the
// whole batch for a single bad group.
type GroupBuildError struct {
	ApplicationID string `json:"application_id"`
	Stage         string `json:"stage,omitempty"`
	Reason        string `json:"reason"`
}

// Result carries both reporting datasets plus the groups that were skipped.
type Result struct {
	Stage       []StageMasterRow
	Application []ApplicationMasterRow
	Skipped     []GroupBuildError
}

// Builder rebuilds the stage and application master tables from a raw event
// batch. Group computations run on a bounded worker pool; rows come back in
// deterministic key order.
type Builder struct {
	workers int
	now     func() time.Time
}

// NewBuilder creates a builder. workers <= 0 falls back to GOMAXPROCS.
func NewBuilder(workers int) *Builder {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{
		workers: workers,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Build groups the frame by (application, stage) and by application and
// computes both masters. Malformed groups are logged and skipped.
func (b *Builder) Build(ctx context.Context, f event.Frame) (Result, error) {
	stageGroups, appGroups, appOrder := groupRows(f)

	// journey start = min activity timestamp per application, over the whole
	// frame. Stage age is measured against this anchor.
	journeyStarts := make(map[string]*time.Time, len(appGroups))
	for app, rows := range appGroups {
		start, err := minTimeCell(rows, ColActivityTS)
		if err != nil {
			// Anchor unusable: the stage groups of this application will
			// carry a nil age rather than fail.
			slog.Warn("[Master] Journey start anchor unparsable", "application_id", app, "error", err)
			continue
		}
		journeyStarts[app] = start
	}

	res := Result{}
	stage, stageSkipped := b.buildStage(ctx, stageGroups, journeyStarts)
	app, appSkipped := b.buildApplication(ctx, appGroups, appOrder)
	res.Stage = stage
	res.Application = app
	res.Skipped = append(stageSkipped, appSkipped...)

	slog.Info("[Master] Build complete",
		"stage_rows", len(res.Stage),
		"application_rows", len(res.Application),
		"skipped_groups", len(res.Skipped))
	return res, nil
}

type stageKey struct {
	app   string
	stage string
}

func groupRows(f event.Frame) (map[stageKey][]event.Row, map[string][]event.Row, []string) {
	stageGroups := make(map[stageKey][]event.Row)
	appGroups := make(map[string][]event.Row)
	var appOrder []string
	for _, row := range f.Rows {
		app := event.CoerceString(row[ColApplicationID])
		if app == "" {
			continue
		}
		st := event.CoerceString(row[ColStage])
		stageGroups[stageKey{app: app, stage: st}] = append(stageGroups[stageKey{app: app, stage: st}], row)
		if _, seen := appGroups[app]; !seen {
			appOrder = append(appOrder, app)
		}
		appGroups[app] = append(appGroups[app], row)
	}
	return stageGroups, appGroups, appOrder
}

func (b *Builder) buildStage(ctx context.Context, groups map[stageKey][]event.Row, journeyStarts map[string]*time.Time) ([]StageMasterRow, []GroupBuildError) {
	keys := make([]stageKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].app != keys[j].app {
			return keys[i].app < keys[j].app
		}
		return keys[i].stage < keys[j].stage
	})

	rows := make([]*StageMasterRow, len(keys))
	skips := make([]*GroupBuildError, len(keys))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, key := range keys {
		g.Go(func() error {
			row, err := b.stageRow(key, groups[key], journeyStarts[key.app])
			if err != nil {
				slog.Error("[Master] Stage group build failed, skipping",
					"application_id", key.app, "stage", key.stage, "error", err)
				skips[i] = &GroupBuildError{ApplicationID: key.app, Stage: key.stage, Reason: err.Error()}
				return nil
			}
			rows[i] = row
			return nil
		})
	}
	g.Wait() //nolint:errcheck // group goroutines never return errors

	var out []StageMasterRow
	var skipped []GroupBuildError
	for i := range keys {
		if rows[i] != nil {
			out = append(out, *rows[i])
		}
		if skips[i] != nil {
			skipped = append(skipped, *skips[i])
		}
	}
	return out, skipped
}

func (b *Builder) stageRow(key stageKey, rows []event.Row, journeyStart *time.Time) (*StageMasterRow, error) {
	start, err := minTimeCell(rows, ColStageStartTS)
	if err != nil {
		return nil, err
	}
	end, err := maxTimeCell(rows, ColStageEndTS)
	if err != nil {
		return nil, err
	}

	row := StageMasterRow{
		ApplicationID: key.app,
		Stage:         key.stage,
		StageStart:    start,
		StageEnd:      end,
		RiskGrade:     lastNonEmpty(rows, ColRiskGrade),
		UWDecision:    lastNonEmpty(rows, ColUWDecision),
		StageStatus:   lastNonEmpty(rows, ColStatusAfter),
		PerformedBy:   distinctJoined(rows, ColPerformedBy),
		IssuesCount:   issueCount(rows),
	}
	if start != nil && end != nil {
		tat := timing.TATMinutes(*start, *end)
		row.TATMinutes = &tat
	}
	if end != nil && journeyStart != nil {
		age := timing.AgeDays(*journeyStart, *end)
		row.AgeDays = &age
	}
	return &row, nil
}

func (b *Builder) buildApplication(ctx context.Context, groups map[string][]event.Row, order []string) ([]ApplicationMasterRow, []GroupBuildError) {
	apps := append([]string(nil), order...)
	sort.Strings(apps)

	rows := make([]*ApplicationMasterRow, len(apps))
	skips := make([]*GroupBuildError, len(apps))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, app := range apps {
		g.Go(func() error {
			row, err := b.applicationRow(app, groups[app])
			if err != nil {
				slog.Error("[Master] Application group build failed, skipping",
					"application_id", app, "error", err)
				skips[i] = &GroupBuildError{ApplicationID: app, Reason: err.Error()}
				return nil
			}
			rows[i] = row
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	var out []ApplicationMasterRow
	var skipped []GroupBuildError
	for i := range apps {
		if rows[i] != nil {
			out = append(out, *rows[i])
		}
		if skips[i] != nil {
			skipped = append(skipped, *skips[i])
		}
	}
	return out, skipped
}

func (b *Builder) applicationRow(app string, rows []event.Row) (*ApplicationMasterRow, error) {
	start, err := minTimeCell(rows, ColActivityTS)
	if err != nil {
		return nil, err
	}
	end, err := maxTimeCell(rows, ColActivityTS)
	if err != nil {
		return nil, err
	}

	row := ApplicationMasterRow{
		ApplicationID:     app,
		ProductType:       firstNonEmpty(rows, ColProductType),
		Channel:           firstNonEmpty(rows, ColChannel),
		ApplicationStart:  start,
		ApplicationEnd:    end,
		FinalRiskGrade:    lastNonEmpty(rows, ColRiskGrade),
		FinalUWDecision:   lastNonEmpty(rows, ColUWDecision),
		ApplicationStatus: lastNonEmpty(rows, ColStatusAfter),
		PerformedBy:       distinctJoined(rows, ColPerformedBy),
		IssuesCount:       issueCount(rows),
	}
	if start != nil && end != nil {
		tat := timing.TATMinutes(*start, *end)
		row.TotalTATMinutes = &tat
	}
	if start != nil {
		age := timing.AgeDays(*start, b.now())
		row.AgeDays = &age
	}
	return &row, nil
}

// minTimeCell coerces the column over all rows and returns the earliest
// value. A non-empty unparsable cell is a group failure, not a silent skip —
// the builder consumes the raw batch, before any tolerant casting.
func minTimeCell(rows []event.Row, col string) (*time.Time, error) {
	var out *time.Time
	for _, row := range rows {
		t, ok := event.CoerceTime(row[col])
		if !ok {
			return nil, fmt.Errorf("unparsable timestamp in %s: %v", col, row[col])
		}
		if t != nil {
			out = timing.MinTime(out, *t)
		}
	}
	return out, nil
}

func maxTimeCell(rows []event.Row, col string) (*time.Time, error) {
	var out *time.Time
	for _, row := range rows {
		t, ok := event.CoerceTime(row[col])
		if !ok {
			return nil, fmt.Errorf("unparsable timestamp in %s: %v", col, row[col])
		}
		if t != nil {
			out = timing.MaxTime(out, *t)
		}
	}
	return out, nil
}

func lastNonEmpty(rows []event.Row, col string) string {
	for i := len(rows) - 1; i >= 0; i-- {
		if v := event.CoerceString(rows[i][col]); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(rows []event.Row, col string) string {
	for _, row := range rows {
		if v := event.CoerceString(row[col]); v != "" {
			return v
		}
	}
	return ""
}

// distinctJoined unions distinct performers in order of appearance.
func distinctJoined(rows []event.Row, col string) string {
	var names []string
	seen := make(map[string]bool)
	for _, row := range rows {
		v := event.CoerceString(row[col])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		names = append(names, v)
	}
	return strings.Join(names, ", ")
}

func issueCount(rows []event.Row) int {
	n := 0
	for _, row := range rows {
		if event.CoerceString(row[ColIssueFlag]) != "" || event.CoerceString(row[ColIssueCode]) != "" {
			n++
		}
	}
	return n
}
