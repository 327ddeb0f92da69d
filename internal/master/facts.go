package master

import (
	"github.com/voyage-lab/project-voyage/internal/core/event"
	"github.com/voyage-lab/project-voyage/internal/core/storage"
)

// FrameFromFacts re-expresses stored event facts in the raw upstream column
// layout so the builder can rebuild the masters from durable state instead
// of a live batch.
func FrameFromFacts(facts []storage.EventFact) event.Frame {
	f := event.Frame{
		Columns: []string{
			ColApplicationID, ColStage, ColActivityTS,
			ColStageStartTS, ColStageEndTS,
			ColStatusAfter, ColPerformedBy,
			ColRiskGrade, ColUWDecision,
			ColIssueFlag, ColIssueCode,
			ColProductType, ColChannel,
		},
	}
	for _, fact := range facts {
		row := event.Row{
			ColApplicationID: fact.JourneyID,
			ColStage:         fact.StepName,
			ColStatusAfter:   fact.StatusAfter,
			ColPerformedBy:   fact.PerformedBy,
			ColRiskGrade:     fact.RiskGrade,
			ColUWDecision:    fact.UWDecision,
			ColIssueFlag:     fact.IssueFlag,
			ColIssueCode:     fact.IssueCode,
		}
		if fact.EventTS != nil {
			row[ColActivityTS] = *fact.EventTS
		}
		if fact.StageStartTS != nil {
			row[ColStageStartTS] = *fact.StageStartTS
		}
		if fact.StageEndTS != nil {
			row[ColStageEndTS] = *fact.StageEndTS
		}
		if v, ok := fact.Extra["product_type"]; ok {
			row[ColProductType] = v
		}
		if v, ok := fact.Extra["channel"]; ok {
			row[ColChannel] = v
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}
