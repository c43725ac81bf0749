package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/draftsmith/draftsmith/internal/provider"
	"github.com/draftsmith/draftsmith/internal/types"
)

type outlineParams struct {
	MaxSections int `mapstructure:"max_sections"`
}

type outlineSection struct {
	Heading string   `json:"heading" validate:"required"`
	Points  []string `json:"points"`
}

type outlineResult struct {
	Title    string           `json:"title" validate:"required"`
	Sections []outlineSection `json:"sections" validate:"required,min=1,dive"`
}

// OutlineRole turns research notes into a section structure for the
// draft step.
type OutlineRole struct {
	generative
}

// NewOutlineRole binds the outline capability to a generator.
func NewOutlineRole(gen provider.Generator) *OutlineRole {
	return &OutlineRole{generative: generative{gen: gen, name: "outline"}}
}

func (r *OutlineRole) Name() string             { return "outline" }
func (r *OutlineRole) Kind() types.ArtifactKind { return types.ArtifactOutline }

func (r *OutlineRole) Reason(ctx context.Context, sp *Scratchpad) (string, error) {
	return "structure the research notes into titled sections", nil
}

func (r *OutlineRole) Act(ctx context.Context, sp *Scratchpad, plan string) (string, error) {
	var p outlineParams
	if err := decodeParams(sp.Params, &p); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plan a technical article about %q from these research notes:\n\n", sp.Topic)
	b.WriteString(sp.Input.Body)
	b.WriteString("\n\nProduce a working title and an ordered list of sections, each with the points it covers.\n")
	if p.MaxSections > 0 {
		fmt.Fprintf(&b, "Use at most %d sections.\n", p.MaxSections)
	}
	b.WriteString(`Reply with JSON: {"title": "...", "sections": [{"heading": "...", "points": ["..."]}]}` + "\n")
	b.WriteString(repairNote(sp))

	return r.generate(ctx, sp, provider.Request{Prompt: b.String(), JSON: true})
}

func (r *OutlineRole) Observe(ctx context.Context, sp *Scratchpad, raw string) (Observation, error) {
	var res outlineResult
	if err := parseInto(raw, &res); err != nil {
		sp.Log.Warn("outline reply unparseable", "round", sp.Round, "error", err)
		return unclean(raw, err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", res.Title)
	sections := make([]any, 0, len(res.Sections))
	for _, sec := range res.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n", sec.Heading)
		for _, pt := range sec.Points {
			fmt.Fprintf(&b, "- %s\n", pt)
		}
		sections = append(sections, map[string]any{"heading": sec.Heading, "points": sec.Points})
	}

	return Observation{
		Plan:   "outline",
		Output: b.String(),
		Meta:   map[string]any{"title": res.Title, "sections": sections},
	}, nil
}

func (r *OutlineRole) Done(sp *Scratchpad) bool { return cleanDone(sp) }

var _ Role = (*OutlineRole)(nil)
