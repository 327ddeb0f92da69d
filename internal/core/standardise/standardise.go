package standardise

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/voyage-lab/project-voyage/internal/core/event"
)

// StepKind enumerates the closed set of column-level transforms.
// The pipeline dispatches through Appliers — a typed variant table, not a
// runtime string→function registry.
type StepKind string

const (
	KindSnakeCase StepKind = "to_snake_case"
	KindRename    StepKind = "rename"
	KindCast      StepKind = "cast"
	KindValueMap  StepKind = "value_map"
	KindRequire   StepKind = "require"
)

// Step is one compiled transform with its typed parameters.
// Only the fields relevant to Kind are populated.
type Step struct {
	Kind     StepKind
	Rename   map[string]string // lower(old) → new
	Cast     map[string]string // lower(col) → type name
	Column   string            // value_map target, lower-cased
	ValueMap map[string]string // old value → new value
	Require  []string          // lower-cased required columns
}

// Applier transforms a frame. Implementations are pure: they clone before
// touching cells.
type Applier func(Step, event.Frame) (event.Frame, error)

// Appliers is the dispatch table for all step kinds, built once at startup.
// Adding a transform means a new StepKind, an Applier, and an entry here.
var Appliers = map[StepKind]Applier{
	KindSnakeCase: applySnakeCase,
	KindRename:    applyRename,
	KindCast:      applyCast,
	KindValueMap:  applyValueMap,
	KindRequire:   applyRequire,
}

// ValidationError is the hard-stop failure of a require step. Columns lists
// every required column that is absent or contains at least one missing value.
type ValidationError struct {
	Columns []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("required columns missing or null: %s", strings.Join(e.Columns, ", "))
}

// Details returns structured context for boundary error responses.
func (e *ValidationError) Details() map[string]interface{} {
	return map[string]interface{}{"columns": e.Columns}
}

// Pipeline is an ordered sequence of compiled steps.
type Pipeline struct {
	steps []Step
}

// NewPipeline compiles a declarative spec into the fixed step order:
// snake_case → rename → cast → value_map → require.
func NewPipeline(spec Spec) *Pipeline {
	return &Pipeline{steps: spec.compile()}
}

// Run applies every configured step in order and returns a new frame.
// The input frame is never mutated. The only failure mode is a require
// violation (*ValidationError); all other steps are tolerant.
func (p *Pipeline) Run(f event.Frame) (event.Frame, error) {
	out := f.Clone()
	for i, step := range p.steps {
		apply, ok := Appliers[step.Kind]
		if !ok {
			return event.Frame{}, fmt.Errorf("standardise: unknown step kind %q", step.Kind)
		}
		next, err := apply(step, out)
		if err != nil {
			return event.Frame{}, err
		}
		slog.Debug("[Standardise] Applied step",
			"index", i+1,
			"kind", step.Kind,
			"columns", len(next.Columns),
			"rows", len(next.Rows))
		out = next
	}
	return out, nil
}

var (
	reCamelBoundary = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	reLowerUpper    = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	reMultiUnder    = regexp.MustCompile(`__+`)
)

// SnakeCaseLabel normalises one column label: spaces to underscores,
// camelCase/PascalCase boundaries split, runs of underscores collapsed.
func SnakeCaseLabel(label string) string {
	s := strings.ReplaceAll(strings.TrimSpace(label), " ", "_")
	s = reCamelBoundary.ReplaceAllString(s, "${1}_${2}")
	s = reLowerUpper.ReplaceAllString(s, "${1}_${2}")
	s = reMultiUnder.ReplaceAllString(s, "_")
	return strings.ToLower(s)
}

func applySnakeCase(_ Step, f event.Frame) (event.Frame, error) {
	renames := make(map[string]string, len(f.Columns))
	for _, c := range f.Columns {
		renames[c] = SnakeCaseLabel(c)
	}
	return renameColumns(f, func(c string) string { return renames[c] }), nil
}

func applyRename(step Step, f event.Frame) (event.Frame, error) {
	return renameColumns(f, func(c string) string {
		if target, ok := step.Rename[strings.ToLower(c)]; ok {
			return target
		}
		return c
	}), nil
}

// renameColumns rewrites both the column list and every row's keys.
func renameColumns(f event.Frame, mapper func(string) string) event.Frame {
	out := event.Frame{
		Columns: make([]string, len(f.Columns)),
		Rows:    make([]event.Row, len(f.Rows)),
	}
	for i, c := range f.Columns {
		out.Columns[i] = mapper(c)
	}
	for i, row := range f.Rows {
		cp := make(event.Row, len(row))
		for k, v := range row {
			cp[mapper(k)] = v
		}
		out.Rows[i] = cp
	}
	return out
}

func applyCast(step Step, f event.Frame) (event.Frame, error) {
	targets := matchColumns(f.Columns, step.Cast)
	if len(targets) == 0 {
		return f, nil
	}
	out := f.Clone()
	for col, typeName := range targets {
		for _, row := range out.Rows {
			v, ok := row[col]
			if !ok {
				continue
			}
			row[col] = castCell(v, typeName)
		}
	}
	return out, nil
}

// castCell converts one cell. Datetime casts are error-tolerant: an
// unparsable value becomes absent, never an error. Other casts are
// best-effort and leave the cell untouched on failure.
func castCell(v interface{}, typeName string) interface{} {
	if strings.HasPrefix(typeName, "datetime") {
		t, ok := event.CoerceTime(v)
		if !ok || t == nil {
			return nil
		}
		return *t
	}
	switch typeName {
	case "int", "int64":
		switch val := v.(type) {
		case float64:
			return int64(val)
		case int:
			return int64(val)
		case int64:
			return val
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
				return n
			}
		}
	case "float", "float64":
		switch val := v.(type) {
		case float64:
			return val
		case int:
			return float64(val)
		case int64:
			return float64(val)
		case string:
			if x, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				return x
			}
		}
	case "str", "string":
		return event.CoerceString(v)
	}
	return v
}

func applyValueMap(step Step, f event.Frame) (event.Frame, error) {
	col, ok := matchColumn(f.Columns, step.Column)
	if !ok {
		return f, nil
	}
	out := f.Clone()
	for _, row := range out.Rows {
		v, present := row[col]
		if !present {
			continue
		}
		if mapped, hit := step.ValueMap[event.CoerceString(v)]; hit {
			row[col] = mapped
		}
	}
	return out, nil
}

func applyRequire(step Step, f event.Frame) (event.Frame, error) {
	var failing []string
	for _, required := range step.Require {
		col, present := matchColumn(f.Columns, required)
		if !present {
			failing = append(failing, required)
			continue
		}
		for _, row := range f.Rows {
			if isMissing(row[col]) {
				failing = append(failing, required)
				break
			}
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		return event.Frame{}, &ValidationError{Columns: failing}
	}
	return f, nil
}

func isMissing(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// matchColumn resolves a lower-cased config key against the frame's actual
// column names, case-insensitively.
func matchColumn(columns []string, lowered string) (string, bool) {
	for _, c := range columns {
		if strings.ToLower(c) == lowered {
			return c, true
		}
	}
	return "", false
}

// matchColumns resolves a lower-cased key→value map to actual column names.
func matchColumns(columns []string, keyed map[string]string) map[string]string {
	out := make(map[string]string)
	for _, c := range columns {
		if v, ok := keyed[strings.ToLower(c)]; ok {
			out[c] = v
		}
	}
	return out
}
