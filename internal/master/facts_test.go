package master

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voyage-lab/project-voyage/internal/core/storage"
)

func TestFrameFromFacts(t *testing.T) {
	eventTS := time.Date(2024, 3, 8, 11, 0, 0, 0, time.UTC)
	start := time.Date(2024, 3, 8, 11, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)

	facts := []storage.EventFact{
		{
			JourneyID:    "APP-1",
			StepName:     "Underwriting",
			EventTS:      &eventTS,
			StageStartTS: &start,
			StageEndTS:   &end,
			StatusAfter:  "Approved",
			PerformedBy:  "uw.bob",
			RiskGrade:    "B",
			UWDecision:   "Approved",
			IssueFlag:    "Y",
			IssueCode:    "DOC_MISSING",
			Extra:        map[string]interface{}{"product_type": "Term Life", "channel": "Broker"},
		},
		{
			JourneyID: "APP-2",
			StepName:  "Data Entry",
		},
	}

	f := FrameFromFacts(facts)
	require.Len(t, f.Rows, 2)
	require.Contains(t, f.Columns, ColActivityTS)

	row := f.Rows[0]
	require.Equal(t, "APP-1", row[ColApplicationID])
	require.Equal(t, "Underwriting", row[ColStage])
	require.Equal(t, eventTS, row[ColActivityTS])
	require.Equal(t, end, row[ColStageEndTS])
	require.Equal(t, "Term Life", row[ColProductType])
	require.Equal(t, "Broker", row[ColChannel])

	// Absent timestamps and extras stay absent instead of zero values.
	bare := f.Rows[1]
	require.NotContains(t, bare, ColActivityTS)
	require.NotContains(t, bare, ColStageStartTS)
	require.NotContains(t, bare, ColProductType)
}

func TestFrameFromFacts_FeedsBuilder(t *testing.T) {
	ts1 := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	ts2 := ts1.Add(2 * time.Hour)

	facts := []storage.EventFact{
		{JourneyID: "APP-1", StepName: "Data Entry", EventTS: &ts1, StatusAfter: "In Progress"},
		{JourneyID: "APP-1", StepName: "Decision", EventTS: &ts2, StatusAfter: "Approved", UWDecision: "Approved"},
	}

	res, err := NewBuilder(1).Build(context.Background(), FrameFromFacts(facts))
	require.NoError(t, err)
	require.Len(t, res.Stage, 2)
	require.Len(t, res.Application, 1)
	require.Empty(t, res.Skipped)
	require.Equal(t, "Approved", res.Application[0].FinalUWDecision)
}
