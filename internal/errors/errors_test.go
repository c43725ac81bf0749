package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftsmithError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DraftsmithError
		wantStr string
	}{
		{
			name: "simple error",
			err: &DraftsmithError{
				Code:    "TEST_001",
				Message: "test error",
			},
			wantStr: "[TEST_001] test error",
		},
		{
			name: "error with cause",
			err: &DraftsmithError{
				Code:    "TEST_002",
				Message: "wrapped error",
				Cause:   errors.New("underlying"),
			},
			wantStr: "[TEST_002] wrapped error: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStr, tt.err.Error())
		})
	}
}

func TestDraftsmithError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap("TEST_001", "test", underlying)

	assert.Equal(t, underlying, err.Unwrap())
	assert.True(t, errors.Is(err, underlying))
}

func TestDraftsmithError_WithDetail(t *testing.T) {
	err := New("TEST_001", "test").
		WithDetail("run_id", "r1").
		WithDetail("iteration", 2)

	assert.Equal(t, "r1", err.Details["run_id"])
	assert.Equal(t, 2, err.Details["iteration"])
}

func TestDraftsmithError_MarshalJSON(t *testing.T) {
	err := Wrap("CKPT_002", "checkpoint corrupted", errors.New("unexpected EOF")).
		WithDetail("run_id", "r1")

	data, merr := json.Marshal(err)
	require.NoError(t, merr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "CKPT_002", decoded["code"])
	assert.Equal(t, "unexpected EOF", decoded["cause"])
	details := decoded["details"].(map[string]any)
	assert.Equal(t, "r1", details["run_id"])
}

func TestHasCode(t *testing.T) {
	t.Run("direct error", func(t *testing.T) {
		err := CheckpointNotFound("r1")
		assert.True(t, HasCode(err, CodeCheckpointNotFound))
		assert.False(t, HasCode(err, CodeCheckpointCorrupted))
	})

	t.Run("wrapped error", func(t *testing.T) {
		err := fmt.Errorf("loading run: %w", CheckpointCorrupted("r1", errors.New("bad yaml")))
		assert.True(t, HasCode(err, CodeCheckpointCorrupted))
		assert.Equal(t, CodeCheckpointCorrupted, Code(err))
	})

	t.Run("plain error", func(t *testing.T) {
		err := errors.New("plain")
		assert.False(t, HasCode(err, CodeCheckpointNotFound))
		assert.Empty(t, Code(err))
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ProviderTransient("gemini", errors.New("503"))))
	assert.True(t, IsRetryable(fmt.Errorf("generate: %w", ProviderTransient("gemini", errors.New("reset")))))
	assert.False(t, IsRetryable(ProviderPermanent("gemini", errors.New("400"))))
	assert.False(t, IsRetryable(ProviderAuth("gemini", errors.New("401"))))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestConstructorDetails(t *testing.T) {
	t.Run("step failed", func(t *testing.T) {
		err := StepFailed("draft", 2, errors.New("boom"))
		assert.Equal(t, CodeStepFailed, err.Code)
		assert.Equal(t, "draft", err.Details["step"])
		assert.Equal(t, 2, err.Details["iteration"])
	})

	t.Run("budget exceeded", func(t *testing.T) {
		err := BudgetExceeded("r1", 1.2345, 1.0)
		assert.Equal(t, CodeBudgetExceeded, err.Code)
		assert.Equal(t, 1.2345, err.Details["spent_usd"])
	})

	t.Run("checkpoint errors are distinct", func(t *testing.T) {
		assert.NotEqual(t, Code(CheckpointNotFound("r1")), Code(CheckpointCorrupted("r1", errors.New("x"))))
	})

	t.Run("review rejected carries an optional reason", func(t *testing.T) {
		err := ReviewRejected("draft", "tone is off")
		assert.Equal(t, "tone is off", err.Details["reason"])
		err = ReviewRejected("draft", "")
		_, ok := err.Details["reason"]
		assert.False(t, ok)
	})
}
