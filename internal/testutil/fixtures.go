// Package testutil provides shared fixtures for draftsmith tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/draftsmith/draftsmith/internal/config"
	"github.com/draftsmith/draftsmith/internal/types"
)

// NewTestConfig returns a config rooted at a temp directory, with every
// path directory created. The directory is cleaned up with the test.
func NewTestConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Provider.Name = config.ProviderScripted
	cfg.Logging.Level = config.LogLevelDebug

	for _, d := range []string{
		cfg.RunsDir(dir),
		cfg.TelemetryDir(dir),
		cfg.ArticlesDir(dir),
		cfg.LogsDir(dir),
	} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("creating %s: %v", d, err)
		}
	}
	return cfg, dir
}

// NewTestRun returns a running article run with a unique ID.
func NewTestRun(t *testing.T, topic string) *types.Run {
	t.Helper()
	id := fmt.Sprintf("test-%d", time.Now().UnixNano()%1_000_000)
	run := types.NewRun(id, "article", topic, types.ModeAuto, nil)
	if err := run.Start(); err != nil {
		t.Fatalf("starting run: %v", err)
	}
	return run
}

// CompletedRecord returns a completed step record with plausible metrics.
func CompletedRecord(step string, iteration int, kind types.ArtifactKind, body string) types.StepRecord {
	return types.NewStepRecord(
		step, iteration,
		types.NewArtifact(kind, body),
		types.Metrics{
			PromptTokens:     300,
			CompletionTokens: 600,
			TotalTokens:      900,
			CostUSD:          0.0011,
			Model:            "scripted",
		},
		time.Now().Add(-2*time.Second),
	)
}

// WriteProjectConfig writes a minimal project config file under
// dir/.draftsmith so LoadFromDir picks it up.
func WriteProjectConfig(t *testing.T, dir, toml string) {
	t.Helper()
	cfgDir := filepath.Join(dir, ".draftsmith")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("creating config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte(toml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}
