package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	t = t.UTC()
	return &t
}

func TestFromRow(t *testing.T) {
	row := Row{
		"journey_id":   "J1",
		"step_name":    "Underwriting",
		"event_ts":     "2024-03-01T10:00:00Z",
		"status_after": "In Progress",
		"issue_flag":   "Y",
		"product_type": "credit_card",
		"channel":      "branch",
	}

	e, err := FromRow(row)
	require.NoError(t, err)
	require.Equal(t, "J1", e.JourneyID)
	require.Equal(t, "Underwriting", e.StepName)
	require.Equal(t, *ts("2024-03-01T10:00:00Z"), *e.EventTS)
	require.Equal(t, "In Progress", e.StatusAfter)
	require.True(t, e.HasIssue())

	// Unrecognized columns survive in Extra, untouched.
	require.Equal(t, map[string]interface{}{
		"product_type": "credit_card",
		"channel":      "branch",
	}, e.Extra)
}

func TestFromRow_MissingJourneyID(t *testing.T) {
	_, err := FromRow(Row{"step_name": "Underwriting"})
	require.Error(t, err)

	_, err = FromRow(Row{"journey_id": "   "})
	require.Error(t, err)
}

func TestFromRow_UnparsableTimestampTolerated(t *testing.T) {
	e, err := FromRow(Row{"journey_id": "J1", "event_ts": "garbage"})
	require.NoError(t, err)
	require.Nil(t, e.EventTS)
}

func TestEffectiveStepName(t *testing.T) {
	e := Event{JourneyID: "J1"}
	require.Equal(t, UnknownStep, e.EffectiveStepName())

	e.StepName = "Docs"
	require.Equal(t, "Docs", e.EffectiveStepName())
}

func TestHasIssue(t *testing.T) {
	require.False(t, Event{}.HasIssue())
	require.True(t, Event{IssueFlag: "Y"}.HasIssue())
	require.True(t, Event{IssueCode: "DOC_MISSING"}.HasIssue())

	// Whitespace-only indicators are trimmed away by FromRow.
	e, err := FromRow(Row{"journey_id": "J1", "issue_flag": "  "})
	require.NoError(t, err)
	require.False(t, e.HasIssue())
}

func TestSortEvents_NilsLast(t *testing.T) {
	events := []Event{
		{JourneyID: "J1", StepName: "c"},
		{JourneyID: "J1", StepName: "b", EventTS: ts("2024-03-02T00:00:00Z")},
		{JourneyID: "J1", StepName: "a", EventTS: ts("2024-03-01T00:00:00Z")},
	}

	SortEvents(events)
	require.Equal(t, "a", events[0].StepName)
	require.Equal(t, "b", events[1].StepName)
	require.Equal(t, "c", events[2].StepName)
}

func TestSortEvents_TiesBreakOnStageEnd(t *testing.T) {
	same := ts("2024-03-01T00:00:00Z")
	events := []Event{
		{JourneyID: "J1", StepName: "later", EventTS: same, StageEndTS: ts("2024-03-03T00:00:00Z")},
		{JourneyID: "J1", StepName: "earlier", EventTS: same, StageEndTS: ts("2024-03-02T00:00:00Z")},
	}

	SortEvents(events)
	require.Equal(t, "earlier", events[0].StepName)
	require.Equal(t, "later", events[1].StepName)
}

func TestSortEvents_StableForEqualKeys(t *testing.T) {
	same := ts("2024-03-01T00:00:00Z")
	events := []Event{
		{JourneyID: "J1", StatusAfter: "first", EventTS: same},
		{JourneyID: "J1", StatusAfter: "second", EventTS: same},
	}

	SortEvents(events)
	require.Equal(t, "first", events[0].StatusAfter)
	require.Equal(t, "second", events[1].StatusAfter)
}

func TestGroupByJourney(t *testing.T) {
	events := []Event{
		{JourneyID: "J1", StepName: "a"},
		{JourneyID: "J2", StepName: "b"},
		{JourneyID: "J1", StepName: "c"},
	}

	groups := GroupByJourney(events)
	require.Len(t, groups, 2)
	require.Len(t, groups["J1"], 2)
	require.Equal(t, "a", groups["J1"][0].StepName)
	require.Equal(t, "c", groups["J1"][1].StepName)
}

func TestCoerceTime(t *testing.T) {
	got, ok := CoerceTime("2024-03-01 10:30:00")
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), *got)

	got, ok = CoerceTime("")
	require.True(t, ok)
	require.Nil(t, got)

	got, ok = CoerceTime(nil)
	require.True(t, ok)
	require.Nil(t, got)

	got, ok = CoerceTime("not a date")
	require.False(t, ok)
	require.Nil(t, got)
}

func TestCoerceString(t *testing.T) {
	require.Equal(t, "J1", CoerceString(" J1 "))
	require.Equal(t, "", CoerceString(nil))
	require.Equal(t, "1001", CoerceString(float64(1001)))
	require.Equal(t, "1.5", CoerceString(1.5))
	require.Equal(t, "true", CoerceString(true))
}
