package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/draftsmith/draftsmith/internal/checkpoint"
	"github.com/draftsmith/draftsmith/internal/control"
	"github.com/draftsmith/draftsmith/internal/orchestrator"
	"github.com/draftsmith/draftsmith/internal/review"
	"github.com/draftsmith/draftsmith/internal/types"
)

var reviewCmd = &cobra.Command{
	Use:   "review <run-id>",
	Short: "Decide a parked approval gate",
	Long: `Deliver a decision to a run parked at an approval gate.

Exactly one of --approve, --reject, --edit, or --abort must be given.
--edit replaces the gated step's artifact with the given file: a .json
file holds a full artifact document, anything else is taken as the
markdown body. The decision goes over the run's control socket, so the
run process must be alive.`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

var (
	reviewApprove bool
	reviewReject  string
	reviewEdit    string
	reviewAbort   string
)

func init() {
	reviewCmd.Flags().BoolVar(&reviewApprove, "approve", false, "accept the step's output and advance")
	reviewCmd.Flags().StringVar(&reviewReject, "reject", "", "re-run the step, with this reason")
	reviewCmd.Flags().StringVar(&reviewEdit, "edit", "", "replace the artifact with this file and advance")
	reviewCmd.Flags().StringVar(&reviewAbort, "abort", "", "stop the run, with this reason")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	runID := args[0]

	chosen := 0
	if reviewApprove {
		chosen++
	}
	if reviewReject != "" {
		chosen++
	}
	if reviewEdit != "" {
		chosen++
	}
	if reviewAbort != "" {
		chosen++
	}
	if chosen != 1 {
		return fmt.Errorf("exactly one of --approve, --reject, --edit, or --abort is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var dec orchestrator.Decision
	switch {
	case reviewApprove:
		dec = orchestrator.Decision{Verdict: orchestrator.VerdictApprove}
	case reviewReject != "":
		dec = orchestrator.Decision{Verdict: orchestrator.VerdictReject, Reason: reviewReject}
	case reviewAbort != "":
		dec = orchestrator.Decision{Verdict: orchestrator.VerdictAbort, Reason: reviewAbort}
	case reviewEdit != "":
		artifact, err := loadEditArtifact(ctx, runID, reviewEdit)
		if err != nil {
			return err
		}
		dec = orchestrator.Decision{Verdict: orchestrator.VerdictEdit, Artifact: &artifact}
	}

	client := control.NewClient(runID)
	if err := client.Decide(ctx, dec); err != nil {
		return fmt.Errorf("delivering decision to run %s: %w", runID, err)
	}

	fmt.Printf("Decision %s delivered to run %s.\n", dec.Verdict, runID)
	return nil
}

// loadEditArtifact reads the replacement artifact, taking its kind from
// the gated step's checkpointed record.
func loadEditArtifact(ctx context.Context, runID, path string) (types.Artifact, error) {
	cfg, dir, err := loadConfig()
	if err != nil {
		return types.Artifact{}, err
	}
	store, err := checkpoint.New(cfg.Checkpoint, cfg.RunsDir(dir))
	if err != nil {
		return types.Artifact{}, fmt.Errorf("opening checkpoint store: %w", err)
	}
	defer store.Close()

	run, err := store.Load(ctx, runID)
	if err != nil {
		return types.Artifact{}, err
	}
	last := run.LastRecord()
	if last == nil || last.Status != types.RecordCompleted {
		return types.Artifact{}, fmt.Errorf("run %s has no gated step to edit", runID)
	}

	return review.LoadArtifactFile(path, last.Step, last.Artifact.Kind)
}
