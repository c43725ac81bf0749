package cmd

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// captureOutput redirects stdout while fn runs and returns what it printed.
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := fn()

	w.Close()
	os.Stdout = oldStdout

	out, _ := io.ReadAll(r)
	return string(out), err
}

// withWorkDir points the global --workdir at a temp directory for one test.
func withWorkDir(t *testing.T) string {
	t.Helper()
	old := workDir
	workDir = t.TempDir()
	t.Cleanup(func() { workDir = old })
	return workDir
}

func TestInitCreatesProjectStructure(t *testing.T) {
	dir := withWorkDir(t)

	output, err := captureOutput(t, func() error {
		return runInit(initCmd, nil)
	})
	if err != nil {
		t.Fatalf("runInit failed: %v", err)
	}

	for _, sub := range []string{"workflows", "runs", "telemetry", "articles", "logs"} {
		path := filepath.Join(dir, ".draftsmith", sub)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
	}

	configBytes, err := os.ReadFile(filepath.Join(dir, ".draftsmith", "config.toml"))
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if !strings.Contains(string(configBytes), "[provider]") {
		t.Fatalf("expected provider section, got: %s", configBytes)
	}

	// Built-in workflows get copied so the project can customize them.
	if _, err := os.Stat(filepath.Join(dir, ".draftsmith", "workflows", "article.toml")); err != nil {
		t.Fatalf("expected article workflow copied: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, ".env.example")); err != nil {
		t.Fatalf("expected .env.example: %v", err)
	}

	gitignore, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatalf("failed to read .gitignore: %v", err)
	}
	if !strings.Contains(string(gitignore), ".draftsmith/runs/") {
		t.Fatalf("expected runs dir gitignored, got: %s", gitignore)
	}

	if !strings.Contains(output, "Initialized draftsmith project") {
		t.Fatalf("expected init message, got: %s", output)
	}
}

func TestInitRefusesExistingProject(t *testing.T) {
	dir := withWorkDir(t)
	if err := os.MkdirAll(filepath.Join(dir, ".draftsmith"), 0o755); err != nil {
		t.Fatalf("failed to create existing dir: %v", err)
	}

	err := runInit(initCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "already initialized") {
		t.Fatalf("expected already-initialized error, got: %v", err)
	}
}

func TestInitPreservesExistingGitignoreLines(t *testing.T) {
	dir := withWorkDir(t)
	existing := "node_modules/\n.draftsmith/runs/\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(existing), 0o644); err != nil {
		t.Fatalf("failed to seed .gitignore: %v", err)
	}

	if _, err := captureOutput(t, func() error {
		return runInit(initCmd, nil)
	}); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatalf("failed to read .gitignore: %v", err)
	}
	if got := strings.Count(string(content), ".draftsmith/runs/"); got != 1 {
		t.Fatalf("expected runs entry exactly once, found %d in: %s", got, content)
	}
	if !strings.Contains(string(content), "node_modules/") {
		t.Fatalf("expected existing entries preserved, got: %s", content)
	}
	if !strings.Contains(string(content), ".draftsmith/telemetry/") {
		t.Fatalf("expected telemetry entry appended, got: %s", content)
	}
}
