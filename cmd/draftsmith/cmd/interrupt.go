package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/draftsmith/draftsmith/internal/control"
)

var interruptCmd = &cobra.Command{
	Use:   "interrupt <run-id>",
	Short: "Stop a live run at its next step boundary",
	Long: `Ask a running draftsmith process to stop at the next step boundary.

The step in flight finishes and is checkpointed first, so the run stays
resumable. This talks to the run's control socket; it only works while
the run process is alive.`,
	Args: cobra.ExactArgs(1),
	RunE: runInterrupt,
}

func init() {
	rootCmd.AddCommand(interruptCmd)
}

func runInterrupt(cmd *cobra.Command, args []string) error {
	runID := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := control.NewClient(runID)
	if err := client.Interrupt(ctx); err != nil {
		return fmt.Errorf("interrupting run %s (is it running?): %w", runID, err)
	}

	fmt.Printf("Run %s will stop at its next step boundary.\n", runID)
	return nil
}
