package master

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/voyage-lab/project-voyage/internal/core/event"
	"github.com/voyage-lab/project-voyage/internal/core/storage"
)

func rawFrame(rows []event.Row) event.Frame {
	return event.NewFrame([]string{
		ColApplicationID, ColStage, ColActivityTS,
		ColStageStartTS, ColStageEndTS,
		ColStatusAfter, ColPerformedBy,
		ColRiskGrade, ColUWDecision,
		ColIssueFlag, ColIssueCode,
		ColProductType, ColChannel,
	}, rows)
}

func TestBuild_StageMaster(t *testing.T) {
	b := NewBuilder(2)
	b.now = func() time.Time { return time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC) }

	frame := rawFrame([]event.Row{
		{
			ColApplicationID: "A1",
			ColStage:         "Underwriting",
			ColActivityTS:    "2024-03-01T10:00:00Z",
			ColStageStartTS:  "2024-03-01T10:00:00Z",
			ColStatusAfter:   "In Progress",
			ColPerformedBy:   "nina",
		},
		{
			ColApplicationID: "A1",
			ColStage:         "Underwriting",
			ColActivityTS:    "2024-03-02T10:00:00Z",
			ColStageEndTS:    "2024-03-02T10:00:00Z",
			ColStatusAfter:   "Approved",
			ColPerformedBy:   "omar",
			ColUWDecision:    "Approved",
			ColIssueFlag:     "Y",
		},
	})

	res, err := b.Build(context.Background(), frame)
	require.NoError(t, err)
	require.Empty(t, res.Skipped)
	require.Len(t, res.Stage, 1)

	row := res.Stage[0]
	require.Equal(t, "A1", row.ApplicationID)
	require.Equal(t, "Underwriting", row.Stage)
	require.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), row.StageStart.UTC())
	require.Equal(t, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), row.StageEnd.UTC())
	require.NotNil(t, row.TATMinutes)
	require.True(t, row.TATMinutes.Equal(decimal.NewFromInt(1440)))
	require.Equal(t, "Approved", row.StageStatus)
	require.Equal(t, "Approved", row.UWDecision)
	require.Equal(t, "nina, omar", row.PerformedBy)
	require.Equal(t, 1, row.IssuesCount)
	require.NotNil(t, row.AgeDays)
	require.Equal(t, 1, *row.AgeDays) // stage end vs journey start anchor
}

func TestBuild_ApplicationMaster(t *testing.T) {
	b := NewBuilder(2)
	b.now = func() time.Time { return time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC) }

	frame := rawFrame([]event.Row{
		{
			ColApplicationID: "A1",
			ColStage:         "Docs",
			ColActivityTS:    "2024-03-01T10:00:00Z",
			ColProductType:   "credit_card",
			ColChannel:       "branch",
			ColStatusAfter:   "Started",
			ColPerformedBy:   "nina",
		},
		{
			ColApplicationID: "A1",
			ColStage:         "Underwriting",
			ColActivityTS:    "2024-03-03T10:00:00Z",
			ColStatusAfter:   "Approved",
			ColRiskGrade:     "B",
			ColUWDecision:    "Approved",
			ColPerformedBy:   "nina",
		},
		{
			ColApplicationID: "A2",
			ColStage:         "Docs",
			ColActivityTS:    "2024-03-05T10:00:00Z",
			ColStatusAfter:   "Started",
		},
	})

	res, err := b.Build(context.Background(), frame)
	require.NoError(t, err)
	require.Len(t, res.Application, 2)

	a1 := res.Application[0]
	require.Equal(t, "A1", a1.ApplicationID)
	require.Equal(t, "credit_card", a1.ProductType)
	require.Equal(t, "branch", a1.Channel)
	require.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), a1.ApplicationStart.UTC())
	require.Equal(t, time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC), a1.ApplicationEnd.UTC())
	require.NotNil(t, a1.TotalTATMinutes)
	require.True(t, a1.TotalTATMinutes.Equal(decimal.NewFromInt(2880)))
	require.Equal(t, "Approved", a1.ApplicationStatus)
	require.Equal(t, "B", a1.FinalRiskGrade)
	require.Equal(t, "Approved", a1.FinalUWDecision)
	require.Equal(t, "nina", a1.PerformedBy)
	require.NotNil(t, a1.AgeDays)
	require.Equal(t, 8, *a1.AgeDays)

	require.Equal(t, "A2", res.Application[1].ApplicationID)
}

func TestBuild_SkipsBadGroupKeepsRest(t *testing.T) {
	b := NewBuilder(2)

	frame := rawFrame([]event.Row{
		{
			ColApplicationID: "A1",
			ColStage:         "Docs",
			ColActivityTS:    "2024-03-01T10:00:00Z",
			ColStageStartTS:  "definitely not a timestamp",
		},
		{
			ColApplicationID: "A2",
			ColStage:         "Docs",
			ColActivityTS:    "2024-03-02T10:00:00Z",
			ColStageStartTS:  "2024-03-02T10:00:00Z",
		},
	})

	res, err := b.Build(context.Background(), frame)
	require.NoError(t, err)

	// The malformed (A1, Docs) stage group is skipped and reported; A2's
	// group and both application rows still build.
	require.Len(t, res.Stage, 1)
	require.Equal(t, "A2", res.Stage[0].ApplicationID)
	require.Len(t, res.Application, 2)

	require.Len(t, res.Skipped, 1)
	require.Equal(t, "A1", res.Skipped[0].ApplicationID)
	require.Equal(t, "Docs", res.Skipped[0].Stage)
	require.Contains(t, res.Skipped[0].Reason, "unparsable timestamp")
}

func TestBuild_RowsWithoutApplicationIDIgnored(t *testing.T) {
	b := NewBuilder(1)

	frame := rawFrame([]event.Row{
		{ColStage: "Docs", ColActivityTS: "2024-03-01T10:00:00Z"},
		{ColApplicationID: "A1", ColStage: "Docs", ColActivityTS: "2024-03-01T10:00:00Z"},
	})

	res, err := b.Build(context.Background(), frame)
	require.NoError(t, err)
	require.Len(t, res.Application, 1)
	require.Len(t, res.Stage, 1)
}

func TestBuild_DeterministicOrder(t *testing.T) {
	b := NewBuilder(4)

	frame := rawFrame([]event.Row{
		{ColApplicationID: "A3", ColStage: "Z", ColActivityTS: "2024-03-01T10:00:00Z"},
		{ColApplicationID: "A1", ColStage: "B", ColActivityTS: "2024-03-01T10:00:00Z"},
		{ColApplicationID: "A1", ColStage: "A", ColActivityTS: "2024-03-01T10:00:00Z"},
		{ColApplicationID: "A2", ColStage: "A", ColActivityTS: "2024-03-01T10:00:00Z"},
	})

	res, err := b.Build(context.Background(), frame)
	require.NoError(t, err)

	var keys []string
	for _, r := range res.Stage {
		keys = append(keys, r.ApplicationID+"/"+r.Stage)
	}
	require.Equal(t, []string{"A1/A", "A1/B", "A2/A", "A3/Z"}, keys)

	var apps []string
	for _, r := range res.Application {
		apps = append(apps, r.ApplicationID)
	}
	require.Equal(t, []string{"A1", "A2", "A3"}, apps)
}

func TestFrameFromFacts_MappedColumns(t *testing.T) {
	et := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	facts := []storage.EventFact{
		{
			JourneyID:   "J1",
			StepName:    "Underwriting",
			EventTS:     &et,
			StatusAfter: "Approved",
			PerformedBy: "nina",
			Extra:       map[string]interface{}{"product_type": "credit_card", "channel": "online"},
		},
	}

	frame := FrameFromFacts(facts)
	require.Len(t, frame.Rows, 1)

	row := frame.Rows[0]
	require.Equal(t, "J1", row[ColApplicationID])
	require.Equal(t, "Underwriting", row[ColStage])
	require.Equal(t, et, row[ColActivityTS])
	require.Equal(t, "Approved", row[ColStatusAfter])
	require.Equal(t, "credit_card", row[ColProductType])
	require.Equal(t, "online", row[ColChannel])
	_, hasStart := row[ColStageStartTS]
	require.False(t, hasStart)
}
