package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/draftsmith/draftsmith/internal/checkpoint"
	"github.com/draftsmith/draftsmith/internal/config"
	"github.com/draftsmith/draftsmith/internal/types"
	"github.com/draftsmith/draftsmith/internal/workflow"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a run from its checkpoint",
	Long: `Resume an interrupted, aborted, failed, or parked run.

Completed steps are never re-executed; the run picks up at the step its
checkpoint says comes next. A run parked at an approval gate re-presents
that gate first.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

var (
	resumeOffline   bool
	resumeBudget    float64
	resumeThreshold float64
)

func init() {
	resumeCmd.Flags().BoolVar(&resumeOffline, "offline", false, "use the deterministic scripted provider")
	resumeCmd.Flags().Float64Var(&resumeBudget, "budget", 0, "cost ceiling in USD (0 uses configured value)")
	resumeCmd.Flags().Float64Var(&resumeThreshold, "threshold", 0, "override loop score bars (0 uses workflow values)")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	runID := args[0]

	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()

	store, err := checkpoint.New(cfg.Checkpoint, cfg.RunsDir(dir))
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}
	run, err := store.Load(ctx, runID)
	store.Close()
	if err != nil {
		return err
	}

	if run.Status == types.RunCompleted {
		return fmt.Errorf("run %s already completed", runID)
	}
	if run.Profile != "" {
		cfg.Provider.Profile = config.Profile(run.Profile)
	}

	loaded, err := workflow.NewLoader(dir).Load(run.Workflow)
	if err != nil {
		return fmt.Errorf("loading workflow %s for run %s: %w", run.Workflow, runID, err)
	}

	fmt.Printf("Resuming run %s (workflow %s, %d records)\n", run.ID, run.Workflow, len(run.Records))

	return executeRun(ctx, cfg, dir, loaded.Definition, run, runOverrides{
		Offline:   resumeOffline,
		BudgetUSD: resumeBudget,
		Threshold: resumeThreshold,
	})
}
