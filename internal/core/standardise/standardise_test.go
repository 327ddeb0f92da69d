package standardise

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/voyage-lab/project-voyage/internal/core/event"
)

func TestSnakeCaseLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Application_ID", "application_id"},
		{"Stage_Start_Timestamp", "stage_start_timestamp"},
		{"PerformedBy", "performed_by"},
		{"UWDecision", "uw_decision"},
		{"Status After Activity", "status_after_activity"},
		{"already_snake", "already_snake"},
		{"Mixed__Label", "mixed_label"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			require.Equal(t, tc.want, SnakeCaseLabel(tc.in))
		})
	}
}

func TestPipeline_SnakeCaseAndRename(t *testing.T) {
	p := NewPipeline(Spec{
		ToSnakeCase: true,
		Rename: map[string]string{
			"application_id": "journey_id",
			"stage":          "step_name",
		},
	})

	frame := event.NewFrame(
		[]string{"Application_ID", "Stage", "Performed_By"},
		[]event.Row{{"Application_ID": "J1", "Stage": "Underwriting", "Performed_By": "nina"}},
	)

	out, err := p.Run(frame)
	require.NoError(t, err)
	require.Equal(t, []string{"journey_id", "step_name", "performed_by"}, out.Columns)
	require.Equal(t, "J1", out.Rows[0]["journey_id"])
	require.Equal(t, "Underwriting", out.Rows[0]["step_name"])
}

func TestPipeline_DoesNotMutateInput(t *testing.T) {
	p := NewPipeline(Spec{ToSnakeCase: true})

	frame := event.NewFrame(
		[]string{"Application_ID"},
		[]event.Row{{"Application_ID": "J1"}},
	)

	_, err := p.Run(frame)
	require.NoError(t, err)
	require.Equal(t, []string{"Application_ID"}, frame.Columns)
	require.Equal(t, "J1", frame.Rows[0]["Application_ID"])
}

func TestPipeline_CastDatetime(t *testing.T) {
	p := NewPipeline(Spec{
		Cast: map[string]string{"event_ts": "datetime"},
	})

	frame := event.NewFrame(
		[]string{"event_ts"},
		[]event.Row{
			{"event_ts": "2024-03-01T10:00:00Z"},
			{"event_ts": "not a timestamp"},
			{"event_ts": nil},
		},
	)

	out, err := p.Run(frame)
	require.NoError(t, err)

	ts, ok := out.Rows[0]["event_ts"].(time.Time)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), ts.UTC())

	// Unparsable values become nil instead of failing the batch.
	require.Nil(t, out.Rows[1]["event_ts"])
	require.Nil(t, out.Rows[2]["event_ts"])
}

func TestPipeline_CastNumericAndString(t *testing.T) {
	p := NewPipeline(Spec{
		Cast: map[string]string{"journey_id": "str", "attempts": "int"},
	})

	frame := event.NewFrame(
		[]string{"journey_id", "attempts"},
		[]event.Row{{"journey_id": 1001, "attempts": "3"}},
	)

	out, err := p.Run(frame)
	require.NoError(t, err)
	require.Equal(t, "1001", out.Rows[0]["journey_id"])
	require.Equal(t, int64(3), out.Rows[0]["attempts"])
}

func TestPipeline_ValueMap(t *testing.T) {
	p := NewPipeline(Spec{
		ValueMap: map[string]map[string]string{
			"uw_decision": {"APPROVE": "Approved", "DECLINE": "Declined"},
		},
	})

	frame := event.NewFrame(
		[]string{"uw_decision"},
		[]event.Row{
			{"uw_decision": "APPROVE"},
			{"uw_decision": "REFER"},
		},
	)

	out, err := p.Run(frame)
	require.NoError(t, err)
	require.Equal(t, "Approved", out.Rows[0]["uw_decision"])
	// Unmapped values pass through untouched.
	require.Equal(t, "REFER", out.Rows[1]["uw_decision"])
}

func TestPipeline_RequireMissingColumn(t *testing.T) {
	p := NewPipeline(Spec{
		Require: []string{"journey_id", "event_ts"},
	})

	frame := event.NewFrame(
		[]string{"journey_id"},
		[]event.Row{{"journey_id": "J1"}},
	)

	_, err := p.Run(frame)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{"event_ts"}, verr.Columns)
}

func TestPipeline_RequireNullValues(t *testing.T) {
	p := NewPipeline(Spec{
		Require: []string{"journey_id", "event_ts"},
	})

	frame := event.NewFrame(
		[]string{"journey_id", "event_ts"},
		[]event.Row{
			{"journey_id": "J1", "event_ts": "2024-03-01T10:00:00Z"},
			{"journey_id": nil, "event_ts": ""},
		},
	)

	_, err := p.Run(frame)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	// All failing columns reported at once, sorted.
	require.Equal(t, []string{"event_ts", "journey_id"}, verr.Columns)
}

func TestPipeline_FullRun(t *testing.T) {
	p := NewPipeline(Spec{
		ToSnakeCase: true,
		Rename: map[string]string{
			"application_id":     "journey_id",
			"stage":              "step_name",
			"activity_timestamp": "event_ts",
		},
		Cast: map[string]string{"event_ts": "datetime"},
		ValueMap: map[string]map[string]string{
			"uw_decision": {"APPROVE": "Approved"},
		},
		Require: []string{"journey_id"},
	})

	frame := event.NewFrame(
		[]string{"Application_ID", "Stage", "Activity_Timestamp", "UW_Decision"},
		[]event.Row{{
			"Application_ID":     "J1",
			"Stage":              "Underwriting",
			"Activity_Timestamp": "2024-03-01 10:00:00",
			"UW_Decision":        "APPROVE",
		}},
	)

	out, err := p.Run(frame)
	require.NoError(t, err)

	row := out.Rows[0]
	require.Equal(t, "J1", row["journey_id"])
	require.Equal(t, "Underwriting", row["step_name"])
	require.IsType(t, time.Time{}, row["event_ts"])
	require.Equal(t, "Approved", row["uw_decision"])
}
