package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/draftsmith/draftsmith/internal/provider"
	"github.com/draftsmith/draftsmith/internal/types"
)

// defaultTargetScore is the self-review bar that ends a draft call early.
const defaultTargetScore = 8.0

type draftParams struct {
	Tone        string  `mapstructure:"tone"`
	TargetScore float64 `mapstructure:"target_score"`
}

// DraftRole writes the article body. Each round generates a draft and
// then self-scores it through the review lane; rounds continue, revising
// against the critique, until the score clears the target or the round
// budget runs out. The score also feeds the step's loop predicate, so a
// workflow can send the whole step back around.
type DraftRole struct {
	generative
}

// NewDraftRole binds the draft capability to a generator.
func NewDraftRole(gen provider.Generator) *DraftRole {
	return &DraftRole{generative: generative{gen: gen, name: "draft"}}
}

func (r *DraftRole) Name() string             { return "draft" }
func (r *DraftRole) Kind() types.ArtifactKind { return types.ArtifactDraft }

func (r *DraftRole) Reason(ctx context.Context, sp *Scratchpad) (string, error) {
	if last := sp.Last(); last != nil {
		return "revise the draft against its critique", nil
	}
	if sp.Input.Kind == types.ArtifactDraft {
		return "revise the previous pass against its critique", nil
	}
	return "write a first draft from the outline", nil
}

func (r *DraftRole) Act(ctx context.Context, sp *Scratchpad, plan string) (string, error) {
	var p draftParams
	if err := decodeParams(sp.Params, &p); err != nil {
		return "", err
	}

	var b strings.Builder
	switch {
	case sp.Last() != nil:
		// In-call revision round.
		last := sp.Last()
		fmt.Fprintf(&b, "Revise this draft of a technical article about %q.\n\n", sp.Topic)
		b.WriteString(last.Output)
		if critique, _ := last.Meta["critique"].(string); critique != "" {
			b.WriteString("\n\nA reviewer raised these points:\n\n")
			b.WriteString(critique)
		}
		b.WriteString("\n\nAddress every issue. Keep what the reviewer praised.\n")
	case sp.Input.Kind == types.ArtifactDraft:
		// Loop pass: the previous record's draft comes back for another go.
		fmt.Fprintf(&b, "Revise this draft of a technical article about %q.\n\n", sp.Topic)
		b.WriteString(sp.Input.Body)
		if critique := sp.Input.MetaString("critique"); critique != "" {
			b.WriteString("\n\nA reviewer raised these points:\n\n")
			b.WriteString(critique)
		}
		b.WriteString("\n\nAddress every issue. Keep what the reviewer praised.\n")
	default:
		fmt.Fprintf(&b, "Write a technical article about %q following this outline:\n\n", sp.Topic)
		b.WriteString(sp.Input.Body)
		b.WriteString("\n\nWrite the full article body.\n")
	}
	if p.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s.\n", p.Tone)
	}
	b.WriteString("Reply with the article in Markdown, starting at the title heading. No commentary.\n")

	return r.generate(ctx, sp, provider.Request{Prompt: b.String()})
}

func (r *DraftRole) Observe(ctx context.Context, sp *Scratchpad, raw string) (Observation, error) {
	draft := strings.TrimSpace(raw)
	obs := Observation{
		Plan:   "draft",
		Output: draft,
		Meta:   map[string]any{},
	}
	if title := firstHeading(draft); title != "" {
		obs.Meta["title"] = title
	} else if v, ok := sp.Input.Meta["title"]; ok {
		obs.Meta["title"] = v
	}

	// Self-score through the review lane so the loop predicate has a
	// signal. A failed or unparseable critique leaves the draft standing
	// with no score.
	scored, err := r.generate(ctx, sp, provider.Request{
		Role:   "review",
		Prompt: critiquePrompt(sp.Topic, draft, "", ""),
		JSON:   true,
	})
	if err != nil {
		return Observation{}, err
	}
	var res critiqueResult
	if err := parseInto(scored, &res); err != nil {
		sp.Log.Warn("self-review unparseable, draft kept unscored", "round", sp.Round, "error", err)
		return obs, nil
	}

	obs.Score = types.ScoreOf(res.Score)
	obs.Meta["score"] = res.Score
	obs.Meta["critique"] = renderCritique(res)
	obs.Meta["issues"] = res.Issues
	return obs, nil
}

// Done ends the call once the self-review clears the target score, or
// immediately when no score is available to steer further rounds.
func (r *DraftRole) Done(sp *Scratchpad) bool {
	last := sp.Last()
	if last == nil {
		return false
	}
	if last.Score == nil {
		return true
	}

	var p draftParams
	_ = decodeParams(sp.Params, &p)
	target := p.TargetScore
	if target <= 0 {
		target = defaultTargetScore
	}
	return *last.Score >= target
}

// firstHeading extracts the first markdown H1, if any.
func firstHeading(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

var _ Role = (*DraftRole)(nil)
