package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/draftsmith/draftsmith/internal/types"
)

type formatParams struct {
	Author string   `mapstructure:"author"`
	Tags   []string `mapstructure:"tags"`
}

// FormatRole applies deterministic metadata rules to the reviewed draft:
// YAML front matter, exactly one H1, normalized blank lines, and a word
// count. No model call is involved.
type FormatRole struct {
	neverDone

	// now is swappable for tests.
	now func() time.Time
}

// NewFormatRole creates the format capability.
func NewFormatRole() *FormatRole {
	return &FormatRole{now: time.Now}
}

func (r *FormatRole) Name() string             { return "format" }
func (r *FormatRole) Kind() types.ArtifactKind { return types.ArtifactArticle }

func (r *FormatRole) Reason(ctx context.Context, sp *Scratchpad) (string, error) {
	return "assemble front matter and normalize the body", nil
}

func (r *FormatRole) Act(ctx context.Context, sp *Scratchpad, plan string) (string, error) {
	return sp.Input.Body, nil
}

func (r *FormatRole) Observe(ctx context.Context, sp *Scratchpad, raw string) (Observation, error) {
	var p formatParams
	if err := decodeParams(sp.Params, &p); err != nil {
		return Observation{}, err
	}

	title := sp.Input.MetaString("title")
	if title == "" {
		title = firstHeading(raw)
	}
	if title == "" {
		title = sp.Topic
	}

	body := normalizeBody(raw, title)
	words := len(strings.Fields(body))

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %q\n", title)
	fmt.Fprintf(&b, "date: %s\n", r.now().Format("2006-01-02"))
	if p.Author != "" {
		fmt.Fprintf(&b, "author: %q\n", p.Author)
	}
	if len(p.Tags) > 0 {
		fmt.Fprintf(&b, "tags: [%s]\n", strings.Join(p.Tags, ", "))
	}
	if score, ok := sp.Input.MetaFloat("score"); ok {
		fmt.Fprintf(&b, "review_score: %.1f\n", score)
	}
	fmt.Fprintf(&b, "words: %d\n", words)
	b.WriteString("---\n\n")
	b.WriteString(body)
	b.WriteString("\n")

	return Observation{
		Plan:   "format",
		Output: b.String(),
		Meta:   map[string]any{"title": title, "words": words},
	}, nil
}

// normalizeBody ensures the article opens with a single H1 carrying the
// title and collapses runs of blank lines.
func normalizeBody(raw, title string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	out := make([]string, 0, len(lines)+2)
	sawH1 := false
	blank := 0
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			blank++
			if blank > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		if strings.HasPrefix(trimmed, "# ") {
			if sawH1 {
				// Demote stray extra H1s.
				trimmed = "#" + trimmed
			}
			sawH1 = true
		}
		out = append(out, trimmed)
	}
	if !sawH1 {
		out = append([]string{"# " + title, ""}, out...)
	}
	return strings.Join(out, "\n")
}

var _ Role = (*FormatRole)(nil)
