package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/draftsmith/draftsmith/internal/provider"
	"github.com/draftsmith/draftsmith/internal/types"
)

type reviewParams struct {
	Rubric string `mapstructure:"rubric"`
}

// critiqueResult is the JSON shape of a review verdict. The draft role's
// self-scoring uses the same shape so prompts and stubs stay in one place.
type critiqueResult struct {
	Score     float64  `json:"score" validate:"min=0,max=10"`
	Summary   string   `json:"summary" validate:"required"`
	Strengths []string `json:"strengths"`
	Issues    []string `json:"issues"`
}

// critiquePrompt asks for a scored critique of a draft.
func critiquePrompt(topic, draft, rubric, repair string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review this draft of a technical article about %q:\n\n", topic)
	b.WriteString(draft)
	b.WriteString("\n\nJudge accuracy, structure, and clarity")
	if rubric != "" {
		fmt.Fprintf(&b, " against this rubric: %s", rubric)
	}
	b.WriteString(".\nScore it from 0 (unusable) to 10 (publishable as is).\n")
	b.WriteString(`Reply with JSON: {"score": 0.0, "summary": "...", "strengths": ["..."], "issues": ["..."]}` + "\n")
	b.WriteString(repair)
	return b.String()
}

// renderCritique formats a critique for humans.
func renderCritique(res critiqueResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score: %.1f/10\n\n%s\n", res.Score, res.Summary)
	if len(res.Strengths) > 0 {
		b.WriteString("\nStrengths:\n")
		for _, s := range res.Strengths {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	if len(res.Issues) > 0 {
		b.WriteString("\nIssues:\n")
		for _, s := range res.Issues {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	return b.String()
}

// ReviewRole scores a draft and records the critique. The draft body
// passes through unchanged so downstream steps keep working on the
// article text; the verdict lands in the artifact meta and the metrics.
type ReviewRole struct {
	generative
}

// NewReviewRole binds the review capability to a generator.
func NewReviewRole(gen provider.Generator) *ReviewRole {
	return &ReviewRole{generative: generative{gen: gen, name: "review"}}
}

func (r *ReviewRole) Name() string             { return "review" }
func (r *ReviewRole) Kind() types.ArtifactKind { return types.ArtifactCritique }

func (r *ReviewRole) Reason(ctx context.Context, sp *Scratchpad) (string, error) {
	return "critique the draft and score it", nil
}

func (r *ReviewRole) Act(ctx context.Context, sp *Scratchpad, plan string) (string, error) {
	var p reviewParams
	if err := decodeParams(sp.Params, &p); err != nil {
		return "", err
	}
	prompt := critiquePrompt(sp.Topic, sp.Input.Body, p.Rubric, repairNote(sp))
	return r.generate(ctx, sp, provider.Request{Prompt: prompt, JSON: true})
}

func (r *ReviewRole) Observe(ctx context.Context, sp *Scratchpad, raw string) (Observation, error) {
	var res critiqueResult
	if err := parseInto(raw, &res); err != nil {
		sp.Log.Warn("review reply unparseable", "round", sp.Round, "error", err)
		return unclean(raw, err), nil
	}

	// The draft rides through; the critique is metadata on it.
	meta := map[string]any{
		"score":     res.Score,
		"summary":   res.Summary,
		"strengths": res.Strengths,
		"issues":    res.Issues,
		"critique":  renderCritique(res),
	}
	for _, key := range []string{"title"} {
		if v, ok := sp.Input.Meta[key]; ok {
			meta[key] = v
		}
	}
	return Observation{
		Plan:   "critique",
		Output: sp.Input.Body,
		Score:  types.ScoreOf(res.Score),
		Meta:   meta,
	}, nil
}

func (r *ReviewRole) Done(sp *Scratchpad) bool { return cleanDone(sp) }

var _ Role = (*ReviewRole)(nil)
