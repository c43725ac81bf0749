package provider

import (
	"context"
	"fmt"
	"sync"
)

// scriptedRate is the flat USD-per-million-token rate the scripted
// provider reports, so cost plumbing stays observable offline.
const scriptedRate = 0.25

// Scripted is a deterministic offline generator. Each role gets a canned
// response sequence; calls past the end repeat the last entry. Used by
// --offline runs and tests.
type Scripted struct {
	mu        sync.Mutex
	responses map[string][]string
	calls     map[string]int
}

// NewScripted creates a scripted generator with canned responses for the
// built-in roles.
func NewScripted() *Scripted {
	return &Scripted{
		responses: map[string][]string{
			"research": {`{"summary": "Collected notes on the topic from configured sources.", "angles": ["practical walkthrough", "pitfalls and fixes"], "key_points": ["define the problem", "show measurements", "close with tradeoffs"]}`},
			"outline":  {`{"title": "Working Title", "sections": [{"heading": "Background", "points": ["context", "terminology"]}, {"heading": "Approach", "points": ["setup", "measurement"]}, {"heading": "Results", "points": ["findings", "tradeoffs"]}]}`},
			"draft":    {"# Working Title\n\n## Background\n\nOpening paragraph covering context and terminology.\n\n## Approach\n\nSetup and measurement narrative.\n\n## Results\n\nFindings and tradeoffs.\n"},
			"review":   {`{"score": 8.5, "summary": "Solid structure, minor wording issues.", "strengths": ["clear sections"], "issues": ["tighten the intro"]}`},
		},
		calls: make(map[string]int),
	}
}

// Stub replaces the response sequence for a role. Sequences advance one
// entry per call and stick on the last entry.
func (s *Scripted) Stub(role string, texts ...string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[role] = texts
	return s
}

// Generate returns the next canned response for the request's role.
func (s *Scripted) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	seq, ok := s.responses[req.Role]
	if !ok || len(seq) == 0 {
		s.mu.Unlock()
		return nil, &Error{Provider: "scripted", Op: "generate",
			Cause: fmt.Errorf("no scripted response for role %q", req.Role)}
	}
	idx := s.calls[req.Role]
	s.calls[req.Role]++
	s.mu.Unlock()

	if idx >= len(seq) {
		idx = len(seq) - 1
	}
	text := seq[idx]

	usage := Usage{
		PromptTokens:     len(req.Prompt)/4 + 1,
		CompletionTokens: len(text)/4 + 1,
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return &Response{
		Text:    text,
		Model:   "scripted",
		Usage:   usage,
		CostUSD: float64(usage.TotalTokens) * scriptedRate / 1e6,
	}, nil
}

// Calls reports how many times a role has been invoked.
func (s *Scripted) Calls(role string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[role]
}

// Close implements Generator.
func (s *Scripted) Close() error {
	return nil
}

// Ensure Scripted implements Generator
var _ Generator = (*Scripted)(nil)
