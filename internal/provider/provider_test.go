package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/draftsmith/draftsmith/internal/config"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		status    int
	}{
		{"rate limited", &googleapi.Error{Code: 429, Message: "quota"}, true, 429},
		{"server error", &googleapi.Error{Code: 503, Message: "unavailable"}, true, 503},
		{"bad request", &googleapi.Error{Code: 400, Message: "invalid"}, false, 400},
		{"unauthorized", &googleapi.Error{Code: 401, Message: "key"}, false, 401},
		{"wrapped api error", fmt.Errorf("call: %w", &googleapi.Error{Code: 500}), true, 500},
		{"deadline", context.DeadlineExceeded, true, 0},
		{"plain error", errors.New("boom"), false, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			perr := classify("generate", tc.err)
			assert.Equal(t, tc.retryable, perr.Retryable)
			assert.Equal(t, tc.status, perr.StatusCode)
			assert.True(t, errors.Is(perr, tc.err) || perr.Cause == tc.err)
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&Error{Retryable: true}))
	assert.True(t, IsTransient(fmt.Errorf("wrap: %w", &Error{Retryable: true})))
	assert.False(t, IsTransient(&Error{}))
	assert.False(t, IsTransient(errors.New("plain")))
}

func TestCost(t *testing.T) {
	t.Run("known model", func(t *testing.T) {
		cost := Cost("gemini-2.5-flash", Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000})
		assert.InDelta(t, 2.80, cost, 1e-9)
	})

	t.Run("longest prefix wins", func(t *testing.T) {
		lite := Cost("gemini-2.5-flash-lite-001", Usage{PromptTokens: 1_000_000})
		assert.InDelta(t, 0.10, lite, 1e-9)
	})

	t.Run("unknown model is free", func(t *testing.T) {
		assert.Zero(t, Cost("mystery-model", Usage{PromptTokens: 500}))
	})
}

func TestCleanJSONBlock(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSONBlock("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSONBlock("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSONBlock(`{"a":1}`))
}

func TestScripted(t *testing.T) {
	ctx := context.Background()

	t.Run("default responses cover the built-in roles", func(t *testing.T) {
		s := NewScripted()
		for _, role := range []string{"research", "outline", "draft", "review"} {
			resp, err := s.Generate(ctx, Request{Role: role, Prompt: "p"})
			require.NoError(t, err, role)
			assert.NotEmpty(t, resp.Text, role)
			assert.Equal(t, "scripted", resp.Model)
			assert.Positive(t, resp.Usage.TotalTokens)
			assert.Positive(t, resp.CostUSD)
		}
	})

	t.Run("stubbed sequence advances and sticks", func(t *testing.T) {
		s := NewScripted().Stub("review", `{"score": 5}`, `{"score": 7}`)
		first, err := s.Generate(ctx, Request{Role: "review"})
		require.NoError(t, err)
		second, err := s.Generate(ctx, Request{Role: "review"})
		require.NoError(t, err)
		third, err := s.Generate(ctx, Request{Role: "review"})
		require.NoError(t, err)
		assert.Equal(t, `{"score": 5}`, first.Text)
		assert.Equal(t, `{"score": 7}`, second.Text)
		assert.Equal(t, `{"score": 7}`, third.Text)
		assert.Equal(t, 3, s.Calls("review"))
	})

	t.Run("unknown role errors", func(t *testing.T) {
		s := NewScripted()
		_, err := s.Generate(ctx, Request{Role: "publish"})
		require.Error(t, err)
		assert.False(t, IsTransient(err))
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		s := NewScripted()
		_, err := s.Generate(cancelled, Request{Role: "draft"})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("scripted", func(t *testing.T) {
		cfg := config.Default().Provider
		cfg.Name = config.ProviderScripted
		gen, err := New(ctx, cfg)
		require.NoError(t, err)
		_, ok := gen.(*Scripted)
		assert.True(t, ok)
	})

	t.Run("gemini without a key fails", func(t *testing.T) {
		cfg := config.Default().Provider
		cfg.APIKeyEnv = "DRAFTSMITH_TEST_MISSING_KEY"
		_, err := New(ctx, cfg)
		require.Error(t, err)
	})

	t.Run("unknown provider fails", func(t *testing.T) {
		cfg := config.Default().Provider
		cfg.Name = "mystery"
		_, err := New(ctx, cfg)
		require.Error(t, err)
	})
}
