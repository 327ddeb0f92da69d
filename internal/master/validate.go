package master

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/voyage-lab/project-voyage/internal/core/event"
)

// Tolerances bound how far a freshly built master may drift from its golden
// reference before validation fails.
type Tolerances struct {
	RowCountPct     float64 `koanf:"rowcount_pct"`
	MeanMinutesAbs  float64 `koanf:"mean_minutes_abs"`
	MeanMinutesRel  float64 `koanf:"mean_minutes_rel"`
	DistTVD         float64 `koanf:"dist_tvd"`
	AllowNewColumns bool    `koanf:"allow_new_columns"`
}

// DriftIssue is one failed check.
type DriftIssue struct {
	Check  string `json:"check"`
	Column string `json:"column,omitempty"`
	Detail string `json:"detail"`
}

// Report collects every drift issue found in one validation run.
type Report struct {
	Dataset string       `json:"dataset"`
	Issues  []DriftIssue `json:"issues,omitempty"`
}

// OK reports whether the dataset passed all checks.
func (r Report) OK() bool { return len(r.Issues) == 0 }

func (r *Report) add(check, column, format string, args ...interface{}) {
	r.Issues = append(r.Issues, DriftIssue{
		Check:  check,
		Column: column,
		Detail: fmt.Sprintf(format, args...),
	})
}

// stage master drift checks TAT_Minutes numerically and the status and
// decision columns distributionally. The application master mirrors that.
var (
	stageNumericCols           = []string{"TAT_Minutes"}
	stageCategoricalCols       = []string{"Stage", "Stage_Status", "UW_Decision"}
	applicationNumericCols     = []string{"Total_TAT_Minutes"}
	applicationCategoricalCols = []string{"Application_Status", "Final_UW_Decision", "Product_Type"}
)

// LoadGoldenCSV reads a reference dataset. The first record is the header;
// every cell stays a string, matching how the golden files are produced.
func LoadGoldenCSV(path string) (event.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return event.Frame{}, fmt.Errorf("open golden dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return event.Frame{}, fmt.Errorf("read golden dataset %s: %w", path, err)
	}
	if len(records) == 0 {
		return event.Frame{}, fmt.Errorf("golden dataset %s is empty", path)
	}

	frame := event.Frame{Columns: records[0]}
	for _, rec := range records[1:] {
		row := make(event.Row, len(frame.Columns))
		for i, col := range frame.Columns {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		frame.Rows = append(frame.Rows, row)
	}
	return frame, nil
}

// ValidateStage compares a freshly built stage master to its golden frame.
func ValidateStage(rows []StageMasterRow, golden event.Frame, tol Tolerances) Report {
	return validateFrames("stage_master", stageFrame(rows), golden, stageNumericCols, stageCategoricalCols, tol)
}

// ValidateApplication compares the application master to its golden frame.
func ValidateApplication(rows []ApplicationMasterRow, golden event.Frame, tol Tolerances) Report {
	return validateFrames("application_master", applicationFrame(rows), golden, applicationNumericCols, applicationCategoricalCols, tol)
}

func validateFrames(dataset string, current, golden event.Frame, numeric, categorical []string, tol Tolerances) Report {
	rep := Report{Dataset: dataset}

	checkSchema(&rep, current.Columns, golden.Columns, tol.AllowNewColumns)
	checkRowCount(&rep, len(current.Rows), len(golden.Rows), tol.RowCountPct)
	for _, col := range numeric {
		checkMeanDrift(&rep, current, golden, col, tol)
	}
	for _, col := range categorical {
		checkDistribution(&rep, current, golden, col, tol.DistTVD)
	}
	return rep
}

func checkSchema(rep *Report, current, golden []string, allowNew bool) {
	cur := make(map[string]bool, len(current))
	for _, c := range current {
		cur[c] = true
	}
	gold := make(map[string]bool, len(golden))
	for _, c := range golden {
		gold[c] = true
	}

	var missing, added []string
	for _, c := range golden {
		if !cur[c] {
			missing = append(missing, c)
		}
	}
	for _, c := range current {
		if !gold[c] {
			added = append(added, c)
		}
	}
	sort.Strings(missing)
	sort.Strings(added)

	for _, c := range missing {
		rep.add("schema", c, "column missing from current dataset")
	}
	if !allowNew {
		for _, c := range added {
			rep.add("schema", c, "column not present in golden dataset")
		}
	}
}

func checkRowCount(rep *Report, current, golden int, pct float64) {
	if golden == 0 {
		if current != 0 {
			rep.add("rowcount", "", "golden dataset empty, current has %d rows", current)
		}
		return
	}
	diff := float64(current-golden) / float64(golden) * 100
	if diff < 0 {
		diff = -diff
	}
	if diff > pct {
		rep.add("rowcount", "", "row count drift %.2f%% exceeds %.2f%% (current=%d golden=%d)",
			diff, pct, current, golden)
	}
}

// checkMeanDrift flags a numeric column when its mean moves beyond both the
// absolute and relative tolerance. Requiring both keeps tiny baselines from
// tripping on noise.
func checkMeanDrift(rep *Report, current, golden event.Frame, col string, tol Tolerances) {
	curMean, curN := columnMean(current, col)
	goldMean, goldN := columnMean(golden, col)
	if curN == 0 || goldN == 0 {
		return
	}

	abs := curMean.Sub(goldMean).Abs()
	absLimit := decimal.NewFromFloat(tol.MeanMinutesAbs)
	if abs.Cmp(absLimit) <= 0 {
		return
	}
	if !goldMean.IsZero() {
		rel := abs.Div(goldMean.Abs())
		if rel.Cmp(decimal.NewFromFloat(tol.MeanMinutesRel)) <= 0 {
			return
		}
	}
	rep.add("mean", col, "mean drift: current=%s golden=%s", curMean.StringFixed(4), goldMean.StringFixed(4))
}

func columnMean(f event.Frame, col string) (decimal.Decimal, int) {
	sum := decimal.Zero
	n := 0
	for _, row := range f.Rows {
		d, ok := decimalCell(row[col])
		if !ok {
			continue
		}
		sum = sum.Add(d)
		n++
	}
	if n == 0 {
		return decimal.Zero, 0
	}
	return sum.Div(decimal.NewFromInt(int64(n))), n
}

func decimalCell(v interface{}) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return x, true
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, false
		}
		return *x, true
	case float64:
		return decimal.NewFromFloat(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case string:
		if x == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(x)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// checkDistribution computes total variation distance between the value
// distributions of one categorical column.
func checkDistribution(rep *Report, current, golden event.Frame, col string, limit float64) {
	cur, curN := valueCounts(current, col)
	gold, goldN := valueCounts(golden, col)
	if curN == 0 || goldN == 0 {
		return
	}

	values := make(map[string]bool)
	for v := range cur {
		values[v] = true
	}
	for v := range gold {
		values[v] = true
	}

	tvd := 0.0
	for v := range values {
		p := float64(cur[v]) / float64(curN)
		q := float64(gold[v]) / float64(goldN)
		d := p - q
		if d < 0 {
			d = -d
		}
		tvd += d
	}
	tvd /= 2
	if tvd > limit {
		rep.add("distribution", col, "total variation distance %.4f exceeds %.4f", tvd, limit)
	}
}

func valueCounts(f event.Frame, col string) (map[string]int, int) {
	counts := make(map[string]int)
	n := 0
	for _, row := range f.Rows {
		v := event.CoerceString(row[col])
		if v == "" {
			continue
		}
		counts[v]++
		n++
	}
	return counts, n
}

func stageFrame(rows []StageMasterRow) event.Frame {
	f := event.Frame{Columns: StageMasterColumns}
	for _, r := range rows {
		f.Rows = append(f.Rows, event.Row{
			"Application_ID": r.ApplicationID,
			"Stage":          r.Stage,
			"Stage_Start":    timeCellString(r.StageStart),
			"Stage_End":      timeCellString(r.StageEnd),
			"TAT_Minutes":    decimalCellString(r.TATMinutes),
			"Age_Days":       intCellString(r.AgeDays),
			"Risk_Grade":     r.RiskGrade,
			"UW_Decision":    r.UWDecision,
			"Stage_Status":   r.StageStatus,
			"Performed_By":   r.PerformedBy,
			"Issues_Count":   strconv.Itoa(r.IssuesCount),
		})
	}
	return f
}

func applicationFrame(rows []ApplicationMasterRow) event.Frame {
	f := event.Frame{Columns: ApplicationMasterColumns}
	for _, r := range rows {
		f.Rows = append(f.Rows, event.Row{
			"Application_ID":     r.ApplicationID,
			"Product_Type":       r.ProductType,
			"Channel":            r.Channel,
			"Application_Start":  timeCellString(r.ApplicationStart),
			"Application_End":    timeCellString(r.ApplicationEnd),
			"Total_TAT_Minutes":  decimalCellString(r.TotalTATMinutes),
			"Age_Days":           intCellString(r.AgeDays),
			"Final_Risk_Grade":   r.FinalRiskGrade,
			"Final_UW_Decision":  r.FinalUWDecision,
			"Application_Status": r.ApplicationStatus,
			"Performed_By":       r.PerformedBy,
			"Issues_Count":       strconv.Itoa(r.IssuesCount),
		})
	}
	return f
}

func timeCellString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func decimalCellString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func intCellString(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}
