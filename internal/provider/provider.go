// Package provider abstracts text generation behind a small interface.
// The orchestration layers treat generated text as opaque; everything
// interesting about a response is its text, token usage, and cost.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/draftsmith/draftsmith/internal/config"
)

// Request is a single generation call.
type Request struct {
	// Prompt is the full prompt text.
	Prompt string

	// Role hints which capability is asking. Deterministic providers key
	// canned responses on it; real providers ignore it.
	Role string

	// Profile overrides the client's default model tier when set.
	Profile config.Profile

	// JSON requests a JSON response body.
	JSON bool

	// Temperature in [0,2]. Zero means the provider default.
	Temperature float32
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the result of a generation call.
type Response struct {
	Text    string
	Model   string
	Usage   Usage
	CostUSD float64
}

// Generator is the provider interface. Implementations must be safe for
// concurrent use.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// Error is a typed provider failure. Retryable marks failures worth
// retrying with backoff (rate limits, 5xx, transport resets); everything
// else is permanent.
type Error struct {
	Provider   string
	Op         string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	retry := "permanent"
	if e.Retryable {
		retry = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %s failure (HTTP %d): %v", e.Provider, e.Op, retry, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s %s: %s failure: %v", e.Provider, e.Op, retry, e.Cause)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	return false
}

// New constructs a Generator from provider configuration.
func New(ctx context.Context, cfg config.ProviderConfig) (Generator, error) {
	switch cfg.Name {
	case config.ProviderScripted:
		return NewScripted(), nil
	case config.ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Name)
	}
}
