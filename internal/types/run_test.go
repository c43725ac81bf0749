package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to RunStatus
		ok       bool
	}{
		{RunPending, RunRunning, true},
		{RunPending, RunAborted, true},
		{RunPending, RunCompleted, false},
		{RunRunning, RunAwaitingReview, true},
		{RunRunning, RunCompleted, true},
		{RunRunning, RunAborted, true},
		{RunRunning, RunFailed, true},
		{RunRunning, RunPending, false},
		{RunAwaitingReview, RunRunning, true},
		{RunAwaitingReview, RunAborted, true},
		{RunAwaitingReview, RunCompleted, false},
		{RunCompleted, RunRunning, false},
		{RunAborted, RunRunning, false},
		{RunFailed, RunRunning, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestRunStatusTerminal(t *testing.T) {
	assert.False(t, RunPending.IsTerminal())
	assert.False(t, RunRunning.IsTerminal())
	assert.False(t, RunAwaitingReview.IsTerminal())
	assert.True(t, RunCompleted.IsTerminal())
	assert.True(t, RunAborted.IsTerminal())
	assert.True(t, RunFailed.IsTerminal())
}

func TestRunLifecycle(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		run := NewRun("go-gc-20260301-120000", "article", "Go GC tuning", ModeAuto, nil)
		require.Equal(t, RunPending, run.Status)

		require.NoError(t, run.Start())
		require.Equal(t, RunRunning, run.Status)

		require.NoError(t, run.Complete())
		require.Equal(t, RunCompleted, run.Status)
		require.NotNil(t, run.FinishedAt)
	})

	t.Run("gate park and unpark", func(t *testing.T) {
		run := NewRun("r1", "article", "t", ModeInteractive, nil)
		require.NoError(t, run.Start())
		require.NoError(t, run.Park())
		require.Equal(t, RunAwaitingReview, run.Status)
		require.NoError(t, run.Unpark())
		require.Equal(t, RunRunning, run.Status)
	})

	t.Run("cannot restart terminal run", func(t *testing.T) {
		run := NewRun("r1", "article", "t", ModeAuto, nil)
		require.NoError(t, run.Start())
		require.NoError(t, run.Fail("step draft failed"))
		require.Error(t, run.Start())
		assert.Equal(t, "step draft failed", run.Error)
	})

	t.Run("unpark requires parked run", func(t *testing.T) {
		run := NewRun("r1", "article", "t", ModeAuto, nil)
		require.NoError(t, run.Start())
		require.Error(t, run.Unpark())
	})
}

func stepSeq() []StepDescriptor {
	return []StepDescriptor{
		{Name: "research", Capability: "research"},
		{Name: "outline", Capability: "outline"},
		{Name: "draft", Capability: "draft", Loop: &LoopSpec{MinScore: 8, MaxPasses: 3}},
		{Name: "export", Capability: "export"},
	}
}

func TestRunPosition(t *testing.T) {
	steps := stepSeq()

	t.Run("fresh run starts at first step", func(t *testing.T) {
		run := NewRun("r1", "article", "t", ModeAuto, nil)
		pos := run.Position(steps)
		require.False(t, pos.Done)
		assert.Equal(t, "research", pos.Step)
		assert.Equal(t, 1, pos.Iteration)
	})

	t.Run("advances past completed steps", func(t *testing.T) {
		run := NewRun("r1", "article", "t", ModeAuto, nil)
		run.AppendRecord(NewStepRecord("research", 1, NewArtifact(ArtifactResearch, ""), Metrics{}, run.StartedAt))
		pos := run.Position(steps)
		assert.Equal(t, "outline", pos.Step)
		assert.Equal(t, 1, pos.Iteration)
	})

	t.Run("looping step repeats below the score bar", func(t *testing.T) {
		run := NewRun("r1", "article", "t", ModeAuto, nil)
		run.AppendRecord(NewStepRecord("research", 1, NewArtifact(ArtifactResearch, ""), Metrics{}, run.StartedAt))
		run.AppendRecord(NewStepRecord("outline", 1, NewArtifact(ArtifactOutline, ""), Metrics{}, run.StartedAt))
		run.AppendRecord(NewStepRecord("draft", 1, NewArtifact(ArtifactDraft, ""), Metrics{Score: ScoreOf(6)}, run.StartedAt))
		pos := run.Position(steps)
		assert.Equal(t, "draft", pos.Step)
		assert.Equal(t, 2, pos.Iteration)
	})

	t.Run("looping step advances once satisfied", func(t *testing.T) {
		run := NewRun("r1", "article", "t", ModeAuto, nil)
		run.AppendRecord(NewStepRecord("research", 1, NewArtifact(ArtifactResearch, ""), Metrics{}, run.StartedAt))
		run.AppendRecord(NewStepRecord("outline", 1, NewArtifact(ArtifactOutline, ""), Metrics{}, run.StartedAt))
		run.AppendRecord(NewStepRecord("draft", 1, NewArtifact(ArtifactDraft, ""), Metrics{Score: ScoreOf(9)}, run.StartedAt))
		pos := run.Position(steps)
		assert.Equal(t, "export", pos.Step)
	})

	t.Run("capped loop advances", func(t *testing.T) {
		run := NewRun("r1", "article", "t", ModeAuto, nil)
		run.AppendRecord(NewStepRecord("research", 1, NewArtifact(ArtifactResearch, ""), Metrics{}, run.StartedAt))
		run.AppendRecord(NewStepRecord("outline", 1, NewArtifact(ArtifactOutline, ""), Metrics{}, run.StartedAt))
		for i := 1; i <= 3; i++ {
			rec := NewStepRecord("draft", i, NewArtifact(ArtifactDraft, ""), Metrics{Score: ScoreOf(6)}, run.StartedAt)
			if i == 3 {
				rec.LoopCapped = true
			}
			run.AppendRecord(rec)
		}
		pos := run.Position(steps)
		assert.Equal(t, "export", pos.Step)
	})

	t.Run("all steps satisfied", func(t *testing.T) {
		run := NewRun("r1", "article", "t", ModeAuto, nil)
		run.AppendRecord(NewStepRecord("research", 1, NewArtifact(ArtifactResearch, ""), Metrics{}, run.StartedAt))
		run.AppendRecord(NewStepRecord("outline", 1, NewArtifact(ArtifactOutline, ""), Metrics{}, run.StartedAt))
		run.AppendRecord(NewStepRecord("draft", 1, NewArtifact(ArtifactDraft, ""), Metrics{Score: ScoreOf(8)}, run.StartedAt))
		run.AppendRecord(NewStepRecord("export", 1, NewArtifact(ArtifactExport, ""), Metrics{}, run.StartedAt))
		pos := run.Position(steps)
		assert.True(t, pos.Done)
	})

	t.Run("failed records do not satisfy a step", func(t *testing.T) {
		run := NewRun("r1", "article", "t", ModeAuto, nil)
		run.AppendRecord(NewFailedRecord("research", 1, assert.AnError, run.StartedAt))
		pos := run.Position(steps)
		assert.Equal(t, "research", pos.Step)
		assert.Equal(t, 1, pos.Iteration)
	})
}

func TestRunLastArtifact(t *testing.T) {
	run := NewRun("r1", "article", "Profiling Go services", ModeAuto, map[string]string{"audience": "sre"})

	t.Run("seed artifact before any record", func(t *testing.T) {
		a := run.LastArtifact()
		assert.Equal(t, ArtifactTopic, a.Kind)
		assert.Equal(t, "Profiling Go services", a.Body)
		assert.Equal(t, "sre", a.MetaString("audience"))
	})

	t.Run("latest completed wins over failed", func(t *testing.T) {
		run.AppendRecord(NewStepRecord("research", 1, NewArtifact(ArtifactResearch, "notes"), Metrics{}, run.StartedAt))
		run.AppendRecord(NewFailedRecord("outline", 1, assert.AnError, run.StartedAt))
		a := run.LastArtifact()
		assert.Equal(t, ArtifactResearch, a.Kind)
		assert.Equal(t, "notes", a.Body)
	})
}

func TestRunTotalMetrics(t *testing.T) {
	run := NewRun("r1", "article", "t", ModeAuto, nil)
	run.AppendRecord(NewStepRecord("research", 1, Artifact{}, Metrics{TotalTokens: 100, CostUSD: 0.01}, run.StartedAt))
	run.AppendRecord(NewStepRecord("draft", 1, Artifact{}, Metrics{TotalTokens: 250, CostUSD: 0.05, Score: ScoreOf(7)}, run.StartedAt))

	total := run.TotalMetrics()
	assert.Equal(t, 350, total.TotalTokens)
	assert.InDelta(t, 0.06, total.CostUSD, 1e-9)
	score, ok := total.ScoreValue()
	require.True(t, ok)
	assert.Equal(t, 7.0, score)
}
