package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftsmith/draftsmith/internal/config"
)

func TestNewFromConfig(t *testing.T) {
	t.Run("stderr only without a file", func(t *testing.T) {
		cfg := config.Default()
		logger, closer, err := NewFromConfig(cfg, t.TempDir())
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.Nil(t, closer)
	})

	t.Run("file logging creates the file", func(t *testing.T) {
		dir := t.TempDir()
		cfg := config.Default()
		cfg.Logging.File = "logs/draftsmith.log"

		logger, closer, err := NewFromConfig(cfg, dir)
		require.NoError(t, err)
		require.NotNil(t, closer)
		defer closer.Close()

		logger.Info("hello", "run_id", "r1")

		data, err := os.ReadFile(filepath.Join(dir, "logs", "draftsmith.log"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "hello")
		assert.Contains(t, string(data), "run_id=r1")
	})
}

func TestNewRunLogger(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()

	logger, closer, err := NewRunLogger(cfg, dir, "gc-tuning-20260301-120000")
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("step done", "step", "draft")

	data, err := os.ReadFile(filepath.Join(dir, ".draftsmith", "logs", "gc-tuning-20260301-120000.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "step done")
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogLevelDebug, slog.LevelDebug},
		{config.LogLevelInfo, slog.LevelInfo},
		{config.LogLevelWarn, slog.LevelWarn},
		{config.LogLevelError, slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseLevel(tc.in))
	}
}

func TestWithHelpers(t *testing.T) {
	logger := NewForTest()
	assert.NotNil(t, WithRun(logger, "r1"))
	assert.NotNil(t, WithStep(logger, "draft", 2))
	assert.NotNil(t, WithCapability(logger, "review"))
}
