package status

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftsmith/draftsmith/internal/types"
)

func articleSteps() []types.StepDescriptor {
	return []types.StepDescriptor{
		{Name: "research", Capability: "research"},
		{Name: "outline", Capability: "outline"},
		{Name: "draft", Capability: "draft", Loop: &types.LoopSpec{MinScore: 8, MaxPasses: 3}},
		{Name: "review", Capability: "review", Approval: true},
		{Name: "format", Capability: "format"},
		{Name: "export", Capability: "export"},
	}
}

func record(step string, iteration int, score float64, tokens int) types.StepRecord {
	rec := types.NewStepRecord(step, iteration,
		types.NewArtifact(types.ArtifactDraft, "body"),
		types.Metrics{TotalTokens: tokens, CostUSD: float64(tokens) / 1e6, Duration: 2 * time.Second},
		time.Now())
	if score > 0 {
		rec.Metrics.Score = types.ScoreOf(score)
	}
	return rec
}

func TestNewRunSummaryMidRun(t *testing.T) {
	run := types.NewRun("demo-20260314-120000", "article", "profiling go services", types.ModeAuto, nil)
	require.NoError(t, run.Start())
	run.AppendRecord(record("research", 1, 0, 800))
	run.AppendRecord(record("outline", 1, 0, 600))
	run.AppendRecord(record("draft", 1, 6.0, 1500))

	summary := NewRunSummary(run, articleSteps())

	assert.Equal(t, 6, summary.StepStats.Total)
	assert.Equal(t, 2, summary.StepStats.Done, "an unsatisfied loop step is not done")
	assert.Equal(t, 3, summary.StepStats.Passes)
	assert.Equal(t, "draft", summary.NextStep)
	assert.Equal(t, 2, summary.Iteration)
	assert.Equal(t, 2900, summary.TotalTokens)
	assert.Len(t, summary.Steps, 3)
}

func TestNewRunSummaryCountsFailedAndEdited(t *testing.T) {
	run := types.NewRun("demo-20260314-120000", "article", "topic", types.ModeInteractive, nil)
	require.NoError(t, run.Start())
	run.AppendRecord(types.NewFailedRecord("research", 1, assert.AnError, time.Now()))
	edited := record("research", 1, 0, 0)
	edited.Edited = true
	run.AppendRecord(edited)

	summary := NewRunSummary(run, articleSteps())

	assert.Equal(t, 1, summary.StepStats.Failed)
	assert.Equal(t, 1, summary.StepStats.Edited)
	assert.Equal(t, 1, summary.StepStats.Done)
	assert.Equal(t, "outline", summary.NextStep)
}

func TestNewRunSummaryWithoutDefinition(t *testing.T) {
	run := types.NewRun("demo-20260314-120000", "article", "topic", types.ModeAuto, nil)
	require.NoError(t, run.Start())
	run.AppendRecord(record("research", 1, 0, 100))
	run.AppendRecord(record("draft", 1, 8.5, 100))
	run.AppendRecord(record("draft", 2, 9.0, 100))

	summary := NewRunSummary(run, nil)

	assert.Equal(t, 2, summary.StepStats.Total, "distinct steps, not passes")
	assert.Equal(t, 0, summary.StepStats.Pending)
	assert.Empty(t, summary.NextStep)
}

func TestFormatDetailedRun(t *testing.T) {
	run := types.NewRun("demo-20260314-120000", "article", "profiling go services", types.ModeAuto, nil)
	require.NoError(t, run.Start())
	run.AppendRecord(record("research", 1, 0, 800))
	capped := record("draft", 3, 6.5, 900)
	capped.LoopCapped = true
	run.AppendRecord(capped)

	summary := NewRunSummary(run, articleSteps())
	out := FormatDetailedRun(summary, FormatOptions{NoColor: true, AllSteps: true})

	assert.Contains(t, out, "Run:      demo-20260314-120000")
	assert.Contains(t, out, "Workflow: article")
	assert.Contains(t, out, "Status:   ● running")
	assert.Contains(t, out, "Progress:")
	assert.Contains(t, out, "loop-capped")
	assert.Contains(t, out, "draft (pass 3)")
	assert.Contains(t, out, "score 6.5")
	assert.NotContains(t, out, "\033[", "NoColor output carries no escape codes")
}

func TestFormatDetailedRunShowsError(t *testing.T) {
	run := types.NewRun("demo-20260314-120000", "article", "topic", types.ModeAuto, nil)
	require.NoError(t, run.Start())
	require.NoError(t, run.Fail("step research failed on pass 1"))

	summary := NewRunSummary(run, articleSteps())
	out := FormatDetailedRun(summary, FormatOptions{NoColor: true})

	assert.Contains(t, out, "Status:   ✗ failed")
	assert.Contains(t, out, "Error: step research failed on pass 1")
}

func TestFormatRunListNewestFirst(t *testing.T) {
	older := types.NewRun("older-20260313-080000", "article", "first topic", types.ModeAuto, nil)
	older.StartedAt = time.Now().Add(-2 * time.Hour)
	newer := types.NewRun("newer-20260314-090000", "article", "second topic", types.ModeAuto, nil)
	newer.StartedAt = time.Now().Add(-time.Hour)

	out := FormatRunList([]*RunSummary{
		NewRunSummary(older, nil),
		NewRunSummary(newer, nil),
	}, FormatOptions{NoColor: true})

	assert.Contains(t, out, "Found 2 run(s)")
	assert.Less(t, strings.Index(out, "newer-20260314-090000"), strings.Index(out, "older-20260313-080000"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h1m", formatDuration(61*time.Minute))
}
