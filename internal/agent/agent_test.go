package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "github.com/draftsmith/draftsmith/internal/errors"
	"github.com/draftsmith/draftsmith/internal/logging"
	"github.com/draftsmith/draftsmith/internal/provider"
	"github.com/draftsmith/draftsmith/internal/types"
)

// failingGenerator always returns the configured error.
type failingGenerator struct {
	err error
}

func (f *failingGenerator) Generate(_ context.Context, _ provider.Request) (*provider.Response, error) {
	return nil, f.err
}

func (f *failingGenerator) Close() error { return nil }

func TestResearchProducesNotes(t *testing.T) {
	gen := provider.NewScripted()
	a := New(NewResearchRole(gen, nil), logging.NewForTest())

	out, metrics, err := a.Run(context.Background(), Request{
		Input:     types.TopicArtifact("profiling go services", nil),
		Topic:     "profiling go services",
		MaxRounds: 4,
	})
	require.NoError(t, err)

	assert.Equal(t, types.ArtifactResearch, out.Kind)
	assert.Contains(t, out.Body, "Key points")
	assert.Equal(t, "profiling go services", out.MetaString("topic"))
	assert.Equal(t, 1, metrics.Rounds, "clean first round should end the call")
	assert.Positive(t, metrics.TotalTokens)
	assert.Positive(t, metrics.CostUSD)
	assert.Equal(t, 1, gen.Calls("research"))
}

func TestRepairRoundRecoversFromBadJSON(t *testing.T) {
	gen := provider.NewScripted().Stub("outline",
		"this is not json",
		`{"title": "Recovered", "sections": [{"heading": "Intro", "points": ["p"]}]}`,
	)
	a := New(NewOutlineRole(gen), logging.NewForTest())

	out, metrics, err := a.Run(context.Background(), Request{
		Input:     types.NewArtifact(types.ArtifactResearch, "## Notes"),
		Topic:     "topic",
		MaxRounds: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, metrics.Rounds)
	assert.Equal(t, "Recovered", out.MetaString("title"))
	assert.NotContains(t, out.Meta, metaParseError)
}

func TestRoundBudgetExhaustedKeepsRawReply(t *testing.T) {
	gen := provider.NewScripted().Stub("outline", "still not json")
	a := New(NewOutlineRole(gen), logging.NewForTest())

	out, metrics, err := a.Run(context.Background(), Request{
		Input:     types.NewArtifact(types.ArtifactResearch, "## Notes"),
		Topic:     "topic",
		MaxRounds: 2,
	})
	require.NoError(t, err, "exhausting rounds degrades, it does not fail")

	assert.Equal(t, 2, metrics.Rounds)
	assert.Equal(t, "still not json", out.Body)
	assert.Contains(t, out.Meta, metaParseError)
}

func TestDraftSelfScoresAndStopsEarly(t *testing.T) {
	// Default scripted review scores 8.5, clearing the 8.0 target.
	gen := provider.NewScripted()
	a := New(NewDraftRole(gen), logging.NewForTest())

	out, metrics, err := a.Run(context.Background(), Request{
		Input:     types.NewArtifact(types.ArtifactOutline, "# Working Title\n\n## Background\n- context"),
		Topic:     "topic",
		MaxRounds: 6,
	})
	require.NoError(t, err)

	assert.Equal(t, types.ArtifactDraft, out.Kind)
	assert.Equal(t, 1, metrics.Rounds)
	score, ok := metrics.ScoreValue()
	require.True(t, ok)
	assert.InDelta(t, 8.5, score, 0.001)
	assert.Equal(t, 1, gen.Calls("draft"))
	assert.Equal(t, 1, gen.Calls("review"))
}

func TestDraftRevisesWhileScoreBelowTarget(t *testing.T) {
	gen := provider.NewScripted().Stub("review",
		`{"score": 6, "summary": "needs work", "issues": ["thin intro"]}`,
	)
	a := New(NewDraftRole(gen), logging.NewForTest())

	_, metrics, err := a.Run(context.Background(), Request{
		Input:     types.NewArtifact(types.ArtifactOutline, "# T\n\n## S\n- p"),
		Topic:     "topic",
		MaxRounds: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, metrics.Rounds, "a 6 never clears the bar, so every round is used")
	assert.Equal(t, 3, gen.Calls("draft"))
	score, ok := metrics.ScoreValue()
	require.True(t, ok)
	assert.InDelta(t, 6, score, 0.001)
}

func TestReviewCarriesDraftThrough(t *testing.T) {
	gen := provider.NewScripted()
	a := New(NewReviewRole(gen), logging.NewForTest())

	draft := "# Title\n\nBody text."
	out, metrics, err := a.Run(context.Background(), Request{
		Input:     types.NewArtifact(types.ArtifactDraft, draft),
		Topic:     "topic",
		MaxRounds: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, types.ArtifactCritique, out.Kind)
	assert.Equal(t, draft, out.Body, "the draft must survive the review step")
	assert.NotEmpty(t, out.MetaString("critique"))
	_, ok := metrics.ScoreValue()
	assert.True(t, ok)
}

func TestProviderErrorsAreClassified(t *testing.T) {
	t.Run("transient", func(t *testing.T) {
		gen := &failingGenerator{err: &provider.Error{
			Provider: "gemini", Op: "generate", StatusCode: 429, Retryable: true,
			Cause: errors.New("rate limited"),
		}}
		a := New(NewOutlineRole(gen), logging.NewForTest())

		_, _, err := a.Run(context.Background(), Request{
			Input: types.NewArtifact(types.ArtifactResearch, "notes"), Topic: "t", MaxRounds: 1,
		})
		assert.True(t, derrors.HasCode(err, derrors.CodeProviderTransient))
	})

	t.Run("permanent", func(t *testing.T) {
		gen := &failingGenerator{err: &provider.Error{
			Provider: "gemini", Op: "generate", StatusCode: 401,
			Cause: errors.New("bad key"),
		}}
		a := New(NewOutlineRole(gen), logging.NewForTest())

		_, _, err := a.Run(context.Background(), Request{
			Input: types.NewArtifact(types.ArtifactResearch, "notes"), Topic: "t", MaxRounds: 1,
		})
		assert.True(t, derrors.HasCode(err, derrors.CodeProviderPermanent))
	})
}

func TestRegistryCoversBuiltinCapabilities(t *testing.T) {
	roles := Registry(Deps{Generator: provider.NewScripted()})
	for _, name := range []string{"research", "outline", "draft", "review", "format", "export"} {
		role, ok := roles[name]
		require.True(t, ok, name)
		assert.Equal(t, name, role.Name())
	}
}
