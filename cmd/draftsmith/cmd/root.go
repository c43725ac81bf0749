package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/draftsmith/draftsmith/internal/config"
	"github.com/draftsmith/draftsmith/internal/workflow"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"

	// Global flags
	verbose bool
	workDir string
)

var rootCmd = &cobra.Command{
	Use:   "draftsmith",
	Short: "Draftsmith - an article-writing pipeline on chained LLM calls",
	Long: `Draftsmith turns a topic into a finished technical article by chaining
model calls through a fixed workflow: research, outline, draft, review,
format, export.

Every step is checkpointed, so a crashed or interrupted run resumes from
its last completed step. Drafts loop until they score well enough, review
gates can park a run for human approval, and telemetry records what every
step consumed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// No subcommand: list available workflows (like `make` with no args)
		return listWorkflows()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&workDir, "workdir", "C", "", "working directory (default: current)")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("draftsmith {{.Version}}\n")
}

// getWorkDir returns the effective working directory.
func getWorkDir() (string, error) {
	if workDir != "" {
		return workDir, nil
	}
	return os.Getwd()
}

// loadConfig loads configuration for the working directory.
func loadConfig() (*config.Config, string, error) {
	dir, err := getWorkDir()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFromDir(dir)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, dir, nil
}

// listWorkflows lists workflows from every source.
func listWorkflows() error {
	dir, err := getWorkDir()
	if err != nil {
		return err
	}

	loader := workflow.NewLoader(dir)
	available := loader.ListAvailable()

	total := 0
	for _, wfs := range available {
		total += len(wfs)
	}
	if total == 0 {
		fmt.Println("No workflows found.")
		fmt.Println()
		fmt.Println("Run 'draftsmith init' to set up a project, or add workflow")
		fmt.Println("modules to " + filepath.Join("~", ".draftsmith", "workflows") + " for global access.")
		return nil
	}

	fmt.Println("Available workflows:")
	fmt.Println()

	sourceOrder := []struct {
		key   string
		label string
		path  string
	}{
		{"project", "Project", ".draftsmith/workflows/"},
		{"user", "User", "~/.draftsmith/workflows/"},
		{"embedded", "Built-in", "<embedded>"},
	}

	for _, source := range sourceOrder {
		workflows := available[source.key]
		if len(workflows) == 0 {
			continue
		}

		sort.Slice(workflows, func(i, j int) bool {
			return workflows[i].Name < workflows[j].Name
		})

		fmt.Printf("  %s (%s):\n", source.label, source.path)
		for _, wf := range workflows {
			if wf.Description != "" {
				fmt.Printf("    %-20s %s\n", wf.Name, wf.Description)
			} else {
				fmt.Printf("    %s\n", wf.Name)
			}
		}
		fmt.Println()
	}

	fmt.Println("Run: draftsmith run \"<topic>\" [--workflow name] [--mode interactive]")

	return nil
}
