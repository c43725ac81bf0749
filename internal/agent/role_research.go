package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/draftsmith/draftsmith/internal/provider"
	"github.com/draftsmith/draftsmith/internal/research"
	"github.com/draftsmith/draftsmith/internal/types"
)

type researchParams struct {
	Sources  []string `mapstructure:"sources"`
	Audience string   `mapstructure:"audience"`
}

type researchResult struct {
	Summary   string   `json:"summary" validate:"required"`
	Angles    []string `json:"angles"`
	KeyPoints []string `json:"key_points"`
}

// ResearchRole collects source material for a topic and condenses it into
// notes the outline step works from. When the step's params list source
// URLs they are fetched once, on the first round, and their digest rides
// along in every prompt.
type ResearchRole struct {
	generative
	fetcher *research.Fetcher
}

// NewResearchRole binds the research capability to a generator and an
// optional source fetcher. A nil fetcher skips source collection.
func NewResearchRole(gen provider.Generator, fetcher *research.Fetcher) *ResearchRole {
	return &ResearchRole{generative: generative{gen: gen, name: "research"}, fetcher: fetcher}
}

func (r *ResearchRole) Name() string             { return "research" }
func (r *ResearchRole) Kind() types.ArtifactKind { return types.ArtifactResearch }

func (r *ResearchRole) Reason(ctx context.Context, sp *Scratchpad) (string, error) {
	var p researchParams
	if err := decodeParams(sp.Params, &p); err != nil {
		return "", err
	}

	if sp.Round == 1 && len(p.Sources) > 0 && r.fetcher != nil {
		sources, err := r.fetcher.FetchAll(ctx, p.Sources)
		if err != nil {
			return "", err
		}
		sp.Stash["digest"] = research.Digest(sources)
		sp.Stash["source_count"] = len(sources)
	}
	if p.Audience != "" {
		sp.Stash["audience"] = p.Audience
	}

	if digest, _ := sp.Stash["digest"].(string); digest != "" {
		return "synthesize notes from the fetched sources", nil
	}
	return "synthesize notes from model knowledge", nil
}

func (r *ResearchRole) Act(ctx context.Context, sp *Scratchpad, plan string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are researching material for a technical article about %q.\n", sp.Topic)
	if audience, _ := sp.Stash["audience"].(string); audience != "" {
		fmt.Fprintf(&b, "The intended audience: %s.\n", audience)
	}
	if digest, _ := sp.Stash["digest"].(string); digest != "" {
		b.WriteString("\n")
		b.WriteString(digest)
		b.WriteString("\n")
	}
	b.WriteString("\nSummarize the most useful material, list candidate angles for the article, ")
	b.WriteString("and extract the key points it must cover.\n")
	b.WriteString(`Reply with JSON: {"summary": "...", "angles": ["..."], "key_points": ["..."]}` + "\n")
	b.WriteString(repairNote(sp))

	return r.generate(ctx, sp, provider.Request{Prompt: b.String(), JSON: true})
}

func (r *ResearchRole) Observe(ctx context.Context, sp *Scratchpad, raw string) (Observation, error) {
	var res researchResult
	if err := parseInto(raw, &res); err != nil {
		sp.Log.Warn("research reply unparseable", "round", sp.Round, "error", err)
		return unclean(raw, err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Research notes: %s\n\n%s\n", sp.Topic, res.Summary)
	if len(res.KeyPoints) > 0 {
		b.WriteString("\n### Key points\n\n")
		for _, p := range res.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if len(res.Angles) > 0 {
		b.WriteString("\n### Candidate angles\n\n")
		for _, a := range res.Angles {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	meta := map[string]any{
		"summary":    res.Summary,
		"angles":     res.Angles,
		"key_points": res.KeyPoints,
	}
	if n, ok := sp.Stash["source_count"].(int); ok {
		meta["source_count"] = n
	}
	return Observation{Plan: "research synthesis", Output: b.String(), Meta: meta}, nil
}

func (r *ResearchRole) Done(sp *Scratchpad) bool { return cleanDone(sp) }

var _ Role = (*ResearchRole)(nil)
