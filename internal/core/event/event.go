package event

import (
	"fmt"
	"sort"
	"time"
)

// UnknownStep is the sentinel step name used when an event arrives without one.
const UnknownStep = "__UNKNOWN_STEP__"

// Event is one standardised record of a journey's activity stream.
// Typed fields cover the known columns; everything the input carried beyond
// them lands in Extra untouched. Events are immutable once built — the fold
// engine consumes them, it never writes them back.
type Event struct {
	JourneyID  string `json:"journey_id"`
	SubProcess string `json:"sub_process,omitempty"`
	StepName   string `json:"step_name,omitempty"`

	EventTS      *time.Time `json:"event_ts,omitempty"`
	StageStartTS *time.Time `json:"stage_start_ts,omitempty"`
	StageEndTS   *time.Time `json:"stage_end_ts,omitempty"`

	StatusAfter string `json:"status_after,omitempty"`
	PerformedBy string `json:"performed_by,omitempty"`
	RiskGrade   string `json:"risk_grade,omitempty"`
	UWDecision  string `json:"uw_decision,omitempty"`
	IssueFlag   string `json:"issue_flag,omitempty"`
	IssueCode   string `json:"issue_code,omitempty"`

	// Extra holds unrecognized input columns. Never dropped, never interpreted.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// knownColumns are the standardised column names that map to typed fields.
var knownColumns = map[string]bool{
	"journey_id":     true,
	"sub_process":    true,
	"step_name":      true,
	"event_ts":       true,
	"stage_start_ts": true,
	"stage_end_ts":   true,
	"status_after":   true,
	"performed_by":   true,
	"risk_grade":     true,
	"uw_decision":    true,
	"issue_flag":     true,
	"issue_code":     true,
}

// FromRow builds an Event from one standardised row. Known columns map to
// typed fields; timestamp cells are coerced tolerantly (unparsable → absent);
// all other columns flow into Extra.
func FromRow(row Row) (Event, error) {
	e := Event{
		JourneyID:   CoerceString(row["journey_id"]),
		SubProcess:  CoerceString(row["sub_process"]),
		StepName:    CoerceString(row["step_name"]),
		StatusAfter: CoerceString(row["status_after"]),
		PerformedBy: CoerceString(row["performed_by"]),
		RiskGrade:   CoerceString(row["risk_grade"]),
		UWDecision:  CoerceString(row["uw_decision"]),
		IssueFlag:   CoerceString(row["issue_flag"]),
		IssueCode:   CoerceString(row["issue_code"]),
	}
	if e.JourneyID == "" {
		return Event{}, fmt.Errorf("event row has no journey_id")
	}

	e.EventTS, _ = CoerceTime(row["event_ts"])
	e.StageStartTS, _ = CoerceTime(row["stage_start_ts"])
	e.StageEndTS, _ = CoerceTime(row["stage_end_ts"])

	for k, v := range row {
		if knownColumns[k] {
			continue
		}
		if e.Extra == nil {
			e.Extra = make(map[string]interface{})
		}
		e.Extra[k] = v
	}
	return e, nil
}

// EffectiveStepName returns the step name, substituting the sentinel when absent.
func (e Event) EffectiveStepName() string {
	if e.StepName == "" {
		return UnknownStep
	}
	return e.StepName
}

// HasIssue reports whether the event carries an issue indicator: a non-empty
// issue_flag or issue_code after trimming.
func (e Event) HasIssue() bool {
	return e.IssueFlag != "" || e.IssueCode != ""
}

// SortEvents orders events by (event_ts, stage_end_ts) ascending with nils
// last. The sort is stable so physically-interleaved input batches fold to
// identical state — the last-write-wins fields depend on this order.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if c := compareTimePtr(events[i].EventTS, events[j].EventTS); c != 0 {
			return c < 0
		}
		return compareTimePtr(events[i].StageEndTS, events[j].StageEndTS) < 0
	})
}

// compareTimePtr orders timestamps ascending with nil sorted after any value.
func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	default:
		return 0
	}
}

// GroupByJourney splits events into per-journey slices preserving input order
// within each journey.
func GroupByJourney(events []Event) map[string][]Event {
	groups := make(map[string][]Event)
	for _, e := range events {
		groups[e.JourneyID] = append(groups[e.JourneyID], e)
	}
	return groups
}
