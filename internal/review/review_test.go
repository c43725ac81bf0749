package review

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "github.com/draftsmith/draftsmith/internal/errors"
	"github.com/draftsmith/draftsmith/internal/orchestrator"
	"github.com/draftsmith/draftsmith/internal/types"
)

func draftRecord() types.StepRecord {
	a := types.NewArtifact(types.ArtifactDraft, "# Draft\n\nBody text.")
	return types.StepRecord{
		Step: "review", Iteration: 1, Status: types.RecordCompleted,
		Artifact: a,
		Metrics:  types.Metrics{TotalTokens: 500, CostUSD: 0.01, Score: types.ScoreOf(7.5)},
	}
}

func newReviewer(input string) (*TerminalReviewer, *strings.Builder) {
	var out strings.Builder
	r := NewTerminalReviewer(strings.NewReader(input), &out, map[string]types.ArtifactKind{
		"research": types.ArtifactResearch,
	})
	return r, &out
}

func TestReviewStepApprove(t *testing.T) {
	r, out := newReviewer("a\n")
	dec, err := r.ReviewStep(context.Background(), nil, draftRecord())
	require.NoError(t, err)
	assert.Equal(t, orchestrator.VerdictApprove, dec.Verdict)
	assert.Contains(t, out.String(), "score: 7.5/10")
	assert.Contains(t, out.String(), "Body text.")
}

func TestReviewStepRejectCollectsReason(t *testing.T) {
	r, _ := newReviewer("r\ntoo shallow\n")
	dec, err := r.ReviewStep(context.Background(), nil, draftRecord())
	require.NoError(t, err)
	assert.Equal(t, orchestrator.VerdictReject, dec.Verdict)
	assert.Equal(t, "too shallow", dec.Reason)
}

func TestReviewStepEditKeepsKindAndMeta(t *testing.T) {
	r, _ := newReviewer("e\n")
	r.editFn = func(_ context.Context, content string) (string, error) {
		return content + "\n\nAppended by hand.", nil
	}

	rec := draftRecord()
	rec.Artifact.SetMeta("title", "Draft")
	dec, err := r.ReviewStep(context.Background(), nil, rec)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.VerdictEdit, dec.Verdict)
	require.NotNil(t, dec.Artifact)
	assert.Equal(t, types.ArtifactDraft, dec.Artifact.Kind)
	assert.Equal(t, "Draft", dec.Artifact.MetaString("title"))
	assert.Contains(t, dec.Artifact.Body, "Appended by hand.")
}

func TestReviewStepEmptyEditReprompts(t *testing.T) {
	// The blanked edit fails validation; the second choice aborts.
	r, out := newReviewer("e\nb\n\n")
	r.editFn = func(_ context.Context, _ string) (string, error) { return "  ", nil }

	dec, err := r.ReviewStep(context.Background(), nil, draftRecord())
	require.NoError(t, err)
	assert.Equal(t, orchestrator.VerdictAbort, dec.Verdict)
	assert.Contains(t, out.String(), "Edit not accepted")
}

func TestReviewStepUnknownChoiceReprompts(t *testing.T) {
	r, out := newReviewer("x\na\n")
	dec, err := r.ReviewStep(context.Background(), nil, draftRecord())
	require.NoError(t, err)
	assert.Equal(t, orchestrator.VerdictApprove, dec.Verdict)
	assert.Contains(t, out.String(), `Unrecognized choice "x"`)
}

func TestConsultFailureRetry(t *testing.T) {
	r, _ := newReviewer("r\n")
	dec, err := r.ConsultFailure(context.Background(), nil, "research", assert.AnError)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.VerdictReject, dec.Verdict)
}

func TestConsultFailureEditUsesStepKind(t *testing.T) {
	r, _ := newReviewer("e\n")
	r.editFn = func(_ context.Context, _ string) (string, error) {
		return "## Notes\n\nHand-written research.", nil
	}
	dec, err := r.ConsultFailure(context.Background(), nil, "research", assert.AnError)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.VerdictEdit, dec.Verdict)
	require.NotNil(t, dec.Artifact)
	assert.Equal(t, types.ArtifactResearch, dec.Artifact.Kind)
}

func TestConsultFailureEditWithoutKindReprompts(t *testing.T) {
	r, out := newReviewer("e\na\n")
	dec, err := r.ConsultFailure(context.Background(), nil, "mystery", assert.AnError)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.VerdictAbort, dec.Verdict)
	assert.Contains(t, out.String(), "No artifact kind known")
}

func TestValidateArtifact(t *testing.T) {
	good := types.NewArtifact(types.ArtifactDraft, "# Title\n\nText.")
	assert.NoError(t, ValidateArtifact("draft", good))

	empty := types.NewArtifact(types.ArtifactDraft, "   ")
	err := ValidateArtifact("draft", empty)
	assert.True(t, derrors.HasCode(err, derrors.CodeReviewInvalidEdit))

	unknown := types.Artifact{Kind: "sculpture", Body: "x"}
	err = ValidateArtifact("draft", unknown)
	assert.True(t, derrors.HasCode(err, derrors.CodeReviewInvalidEdit))

	critique := types.NewArtifact(types.ArtifactCritique, "Looks fine.")
	critique.SetMeta("score", 15.0)
	err = ValidateArtifact("review", critique)
	assert.True(t, derrors.HasCode(err, derrors.CodeReviewInvalidEdit), "score over 10 must fail")
}

func TestLoadArtifactFileMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("## Notes\n\nContent."), 0o644))

	a, err := LoadArtifactFile(path, "research", types.ArtifactResearch)
	require.NoError(t, err)
	assert.Equal(t, types.ArtifactResearch, a.Kind)
	assert.Contains(t, a.Body, "Content.")
}

func TestLoadArtifactFileJSON(t *testing.T) {
	doc := types.NewArtifact(types.ArtifactOutline, "# Outline\n\n## Part One")
	doc.SetMeta("title", "Outline")
	doc.SetMeta("sections", []string{"Part One"})
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "outline.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	a, err := LoadArtifactFile(path, "outline", types.ArtifactOutline)
	require.NoError(t, err)
	assert.Equal(t, types.ArtifactOutline, a.Kind)
	assert.Equal(t, "Outline", a.MetaString("title"))
}

func TestLoadArtifactFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.md")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))

	_, err := LoadArtifactFile(path, "draft", types.ArtifactDraft)
	assert.True(t, derrors.HasCode(err, derrors.CodeReviewInvalidEdit))

	_, err = LoadArtifactFile(filepath.Join(t.TempDir(), "missing.md"), "draft", types.ArtifactDraft)
	assert.Error(t, err)
}

func TestRendererFallsBackToPlainText(t *testing.T) {
	var out strings.Builder
	r := NewRenderer(&out)
	md := "# Heading\n\nSome **bold** text."
	assert.Equal(t, md, r.Render(md), "non-TTY output stays verbatim")
}
