package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/draftsmith/draftsmith/internal/workflow"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a draftsmith project",
	Long: `Initialize a new draftsmith project in the current directory.

Creates the following structure:

  .draftsmith/
  ├── config.toml      # Project configuration
  ├── workflows/       # Workflow modules (built-in set copied in)
  │   └── article.toml
  ├── runs/            # Run checkpoints (gitignored)
  ├── telemetry/       # Per-run telemetry JSONL (gitignored)
  ├── articles/        # Exported articles
  └── logs/            # Per-run log files (gitignored)
  .env.example         # Provider API key template

The runs/, telemetry/, and logs/ directories hold ephemeral runtime
state and are added to .gitignore.`,
	RunE: runInit,
}

var initSkipWorkflows bool

func init() {
	initCmd.Flags().BoolVar(&initSkipWorkflows, "skip-workflows", false, "skip copying built-in workflow modules")
	rootCmd.AddCommand(initCmd)
}

const defaultConfigTOML = `# Draftsmith configuration
version = "1"

[paths]
runs_dir = ".draftsmith/runs"
telemetry_dir = ".draftsmith/telemetry"
articles_dir = ".draftsmith/articles"
logs_dir = ".draftsmith/logs"
workflows_dir = ".draftsmith/workflows"

[provider]
name = "gemini"
profile = "standard"
api_key_env = "GEMINI_API_KEY"
timeout = "2m"

[provider.models]
lite = "gemini-2.5-flash-lite"
standard = "gemini-2.5-flash"
advanced = "gemini-2.5-pro"

[orchestrator]
max_attempts = 3
initial_backoff = "1s"
max_backoff = "30s"
backoff_multiplier = 2.0
# budget_usd = 1.50       # fail the run once spend crosses this
# score_threshold = 8.5   # override workflow loop score bars

[checkpoint]
backend = "file"
# backend = "redis" keeps checkpoints in redis instead:
# [checkpoint.redis]
# addr = "localhost:6379"
# key_prefix = "draftsmith"
# password_env = "DRAFTSMITH_REDIS_PASSWORD"

[telemetry]
backend = "jsonl"
prometheus = true
# backend = "postgres" writes step metrics to a database:
# [telemetry.postgres]
# dsn_env = "DRAFTSMITH_POSTGRES_DSN"

[logging]
level = "info"
format = "text"

[review]
renderer = "auto"
# editor = "nvim"         # overrides $EDITOR for gate edits
`

const envExample = `# Draftsmith provider credentials. Copy to .env and fill in.
GEMINI_API_KEY=

# Only needed with checkpoint.backend = "redis":
# DRAFTSMITH_REDIS_PASSWORD=

# Only needed with telemetry.backend = "postgres":
# DRAFTSMITH_POSTGRES_DSN=
`

const gitignoreEntries = `.draftsmith/runs/
.draftsmith/telemetry/
.draftsmith/logs/
.env
`

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := getWorkDir()
	if err != nil {
		return err
	}

	dsDir := filepath.Join(dir, ".draftsmith")
	if _, err := os.Stat(dsDir); err == nil {
		return fmt.Errorf("draftsmith project already initialized (found .draftsmith directory)")
	}

	dirs := []string{
		filepath.Join(dsDir, "workflows"),
		filepath.Join(dsDir, "runs"),
		filepath.Join(dsDir, "telemetry"),
		filepath.Join(dsDir, "articles"),
		filepath.Join(dsDir, "logs"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	configPath := filepath.Join(dsDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(defaultConfigTOML), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	if !initSkipWorkflows {
		if err := workflow.CopyEmbedded(filepath.Join(dsDir, "workflows")); err != nil {
			return fmt.Errorf("copying workflows: %w", err)
		}
	}

	envPath := filepath.Join(dir, ".env.example")
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		if err := os.WriteFile(envPath, []byte(envExample), 0o644); err != nil {
			return fmt.Errorf("writing .env.example: %w", err)
		}
	}

	if err := appendGitignore(dir); err != nil {
		// Non-fatal, the project still works.
		fmt.Printf("Warning: could not update .gitignore: %v\n", err)
	}

	fmt.Println("Initialized draftsmith project in", dir)
	fmt.Println("\nCreated:")
	fmt.Println("  .draftsmith/config.toml  - configuration")
	fmt.Println("  .draftsmith/workflows/   - workflow modules")
	fmt.Println("  .draftsmith/runs/        - run checkpoints")
	fmt.Println("  .draftsmith/telemetry/   - per-run telemetry")
	fmt.Println("  .draftsmith/articles/    - exported articles")
	fmt.Println("  .draftsmith/logs/        - per-run log files")
	fmt.Println("  .env.example             - API key template")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Copy .env.example to .env and set GEMINI_API_KEY")
	fmt.Println("  2. Write an article:  draftsmith run \"your topic\"")
	fmt.Println("  3. Watch progress:    draftsmith status")

	return nil
}

// appendGitignore adds runtime-state entries missing from .gitignore,
// creating the file if needed.
func appendGitignore(dir string) error {
	path := filepath.Join(dir, ".gitignore")
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	have := make(map[string]bool)
	for _, l := range strings.Split(string(existing), "\n") {
		have[strings.TrimSpace(l)] = true
	}

	var missing string
	for _, line := range []string{".draftsmith/runs/", ".draftsmith/telemetry/", ".draftsmith/logs/", ".env"} {
		if !have[line] {
			missing += line + "\n"
		}
	}
	if missing == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		missing = "\n" + missing
	}
	_, err = f.WriteString(missing)
	return err
}
