package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/draftsmith/draftsmith/internal/config"
)

func TestBackoffGrowsGeometricallyAndClamps(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
	}

	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
	assert.Equal(t, 5*time.Second, p.Backoff(9))
}

func TestRetryPolicyFromConfigFillsGaps(t *testing.T) {
	p := RetryPolicyFromConfig(config.OrchestratorConfig{MaxAttempts: 7})
	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, DefaultRetryPolicy().InitialBackoff, p.InitialBackoff)
	assert.Equal(t, DefaultRetryPolicy().MaxBackoff, p.MaxBackoff)
	assert.Equal(t, DefaultRetryPolicy().Multiplier, p.Multiplier)

	full := RetryPolicyFromConfig(config.OrchestratorConfig{
		MaxAttempts:       2,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 3,
	})
	assert.Equal(t, RetryPolicy{2, 50 * time.Millisecond, time.Second, 3}, full)
}

func TestSleepHonorsCancellation(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Minute, MaxBackoff: time.Minute, Multiplier: 2}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := p.Sleep(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
