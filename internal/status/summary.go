package status

import (
	"time"

	"github.com/draftsmith/draftsmith/internal/types"
)

// RunSummary contains computed information about a run for display.
type RunSummary struct {
	ID         string          `json:"id"`
	Workflow   string          `json:"workflow"`
	Topic      string          `json:"topic"`
	Status     types.RunStatus `json:"status"`
	Mode       types.RunMode   `json:"mode"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Error      string          `json:"error,omitempty"`

	StepStats StepStats  `json:"step_stats"`
	Steps     []StepLine `json:"steps,omitempty"`
	NextStep  string     `json:"next_step,omitempty"`
	Iteration int        `json:"iteration,omitempty"`

	TotalTokens int     `json:"total_tokens"`
	CostUSD     float64 `json:"cost_usd"`
}

// StepStats contains the step count breakdown. Total and Done count
// workflow steps; Passes counts history records, so a looping step can
// contribute several passes to one done step.
type StepStats struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Pending int `json:"pending"`
	Passes  int `json:"passes"`
	Failed  int `json:"failed"`
	Edited  int `json:"edited"`
	Capped  int `json:"capped"`
}

// StepLine is one history record prepared for display.
type StepLine struct {
	Step       string        `json:"step"`
	Iteration  int           `json:"iteration"`
	Status     string        `json:"status"`
	Score      *float64      `json:"score,omitempty"`
	Tokens     int           `json:"tokens"`
	CostUSD    float64       `json:"cost_usd"`
	Duration   time.Duration `json:"duration"`
	LoopCapped bool          `json:"loop_capped,omitempty"`
	Edited     bool          `json:"edited,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// NewRunSummary builds a summary from a run and its workflow's steps.
// Steps may be nil when the workflow definition is unavailable; progress
// then falls back to counting distinct completed steps.
func NewRunSummary(run *types.Run, steps []types.StepDescriptor) *RunSummary {
	summary := &RunSummary{
		ID:         run.ID,
		Workflow:   run.Workflow,
		Topic:      run.Topic,
		Status:     run.Status,
		Mode:       run.Mode,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Error:      run.Error,
	}

	totals := run.TotalMetrics()
	summary.TotalTokens = totals.TotalTokens
	summary.CostUSD = totals.CostUSD

	for _, rec := range run.Records {
		summary.Steps = append(summary.Steps, StepLine{
			Step:       rec.Step,
			Iteration:  rec.Iteration,
			Status:     string(rec.Status),
			Score:      rec.Metrics.Score,
			Tokens:     rec.Metrics.TotalTokens,
			CostUSD:    rec.Metrics.CostUSD,
			Duration:   rec.Metrics.Duration,
			LoopCapped: rec.LoopCapped,
			Edited:     rec.Edited,
			Error:      rec.Error,
		})

		switch rec.Status {
		case types.RecordCompleted:
			summary.StepStats.Passes++
		case types.RecordFailed:
			summary.StepStats.Failed++
		}
		if rec.Edited {
			summary.StepStats.Edited++
		}
		if rec.LoopCapped {
			summary.StepStats.Capped++
		}
	}

	if len(steps) > 0 {
		summary.StepStats.Total = len(steps)
		pos := run.Position(steps)
		if pos.Done {
			summary.StepStats.Done = len(steps)
		} else {
			summary.StepStats.Done = pos.Index
			summary.NextStep = pos.Step
			summary.Iteration = pos.Iteration
		}
	} else {
		seen := make(map[string]bool)
		for _, rec := range run.Records {
			if rec.Status == types.RecordCompleted {
				seen[rec.Step] = true
			}
		}
		summary.StepStats.Total = len(seen)
		summary.StepStats.Done = len(seen)
	}
	summary.StepStats.Pending = summary.StepStats.Total - summary.StepStats.Done

	return summary
}
