package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/draftsmith/draftsmith/internal/checkpoint"
	"github.com/draftsmith/draftsmith/internal/control"
	"github.com/draftsmith/draftsmith/internal/status"
	"github.com/draftsmith/draftsmith/internal/types"
	"github.com/draftsmith/draftsmith/internal/workflow"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show run progress",
	Long: `Show a run's progress: step history, loop passes, spend, and what
comes next. Without a run ID, lists every checkpointed run.

A live run is polled over its control socket; otherwise the checkpoint
is read directly.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var (
	statusJSON     bool
	statusAllSteps bool
	statusNoColor  bool
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit JSON instead of formatted text")
	statusCmd.Flags().BoolVar(&statusAllSteps, "all", false, "show every record, not just recent ones")
	statusCmd.Flags().BoolVar(&statusNoColor, "no-color", false, "disable ANSI colors")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := checkpoint.New(cfg.Checkpoint, cfg.RunsDir(dir))
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}
	defer store.Close()

	opts := status.FormatOptions{
		NoColor:  statusNoColor,
		AllSteps: statusAllSteps,
	}

	if len(args) == 0 {
		return listRuns(ctx, store, opts)
	}

	runID := args[0]
	run, err := store.Load(ctx, runID)
	if err != nil {
		return err
	}

	// A live orchestrator may be ahead of the last checkpoint.
	if snap, lerr := control.NewClient(runID).Status(ctx); lerr == nil {
		run.Status = snap.Status
	}

	summary := status.NewRunSummary(run, stepsFor(dir, run))
	if statusJSON {
		return printJSON(summary)
	}
	fmt.Print(status.FormatDetailedRun(summary, opts))
	return nil
}

func listRuns(ctx context.Context, store checkpoint.Store, opts status.FormatOptions) error {
	runs, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	summaries := make([]*status.RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, status.NewRunSummary(run, nil))
	}

	if statusJSON {
		return printJSON(summaries)
	}
	if len(summaries) == 0 {
		fmt.Println("No runs found. Start one with: draftsmith run <topic>")
		return nil
	}
	fmt.Print(status.FormatRunList(summaries, opts))
	return nil
}

// stepsFor loads the run's workflow definition so the summary can show
// pending steps. A missing workflow degrades to record-only output.
func stepsFor(dir string, run *types.Run) []types.StepDescriptor {
	loaded, err := workflow.NewLoader(dir).Load(run.Workflow)
	if err != nil {
		return nil
	}
	return loaded.Definition.Steps
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
