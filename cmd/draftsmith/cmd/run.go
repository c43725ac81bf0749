package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/draftsmith/draftsmith/internal/checkpoint"
	"github.com/draftsmith/draftsmith/internal/config"
	derrors "github.com/draftsmith/draftsmith/internal/errors"
	"github.com/draftsmith/draftsmith/internal/orchestrator"
	"github.com/draftsmith/draftsmith/internal/types"
	"github.com/draftsmith/draftsmith/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run <topic>",
	Short: "Start a new article run",
	Long: `Start a run that turns the topic into a finished article.

The workflow (default: article) defines the step sequence. In interactive
mode, approval gates pause the run and present the step's output for
review; in auto mode gates pass without stopping.

Interrupting with Ctrl-C stops the run at the next step boundary and
leaves a resumable checkpoint.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runWorkflow  string
	runMode      string
	runProfile   string
	runBudget    float64
	runThreshold float64
	runOffline   bool
	runVars      []string
)

func init() {
	runCmd.Flags().StringVar(&runWorkflow, "workflow", "article", "workflow to run")
	runCmd.Flags().StringVar(&runMode, "mode", "", "run mode: auto or interactive (default: interactive on a terminal)")
	runCmd.Flags().StringVar(&runProfile, "profile", "", "model profile: lite, standard, or advanced (default: configured)")
	runCmd.Flags().Float64Var(&runBudget, "budget", 0, "cost ceiling in USD (0 uses configured value)")
	runCmd.Flags().Float64Var(&runThreshold, "threshold", 0, "override loop score bars (0 uses workflow values)")
	runCmd.Flags().BoolVar(&runOffline, "offline", false, "use the deterministic scripted provider")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "seed values for the topic artifact (format: key=value)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	topic := strings.TrimSpace(args[0])
	if topic == "" {
		return fmt.Errorf("topic must not be empty")
	}

	mode := types.RunMode(runMode)
	if runMode == "" {
		// Gates need someone at the terminal to answer them.
		mode = types.ModeAuto
		if term.IsTerminal(int(os.Stdin.Fd())) {
			mode = types.ModeInteractive
		}
	} else if !mode.Valid() {
		return fmt.Errorf("unknown mode %q (want auto or interactive)", runMode)
	}

	seed := make(map[string]string)
	for _, v := range runVars {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid seed value: %s (expected key=value)", v)
		}
		seed[parts[0]] = parts[1]
	}

	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	if runProfile != "" {
		profile := config.Profile(runProfile)
		if !profile.Valid() {
			return derrors.ConfigInvalidValue("provider.profile", runProfile,
				"want lite, standard, or advanced")
		}
		cfg.Provider.Profile = profile
	}

	loaded, err := workflow.NewLoader(dir).Load(runWorkflow)
	if err != nil {
		return err
	}
	def := loaded.Definition
	if err := def.Validate(); err != nil {
		return err
	}

	ctx := context.Background()

	// The run ID needs the store, so open it briefly here; executeRun
	// opens its own handle.
	store, err := checkpoint.New(cfg.Checkpoint, cfg.RunsDir(dir))
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}
	runID, err := orchestrator.UniqueRunID(ctx, store, topic, time.Now())
	store.Close()
	if err != nil {
		return err
	}

	run := types.NewRun(runID, def.Name, topic, mode, seed)
	run.Profile = string(cfg.Provider.Profile)

	fmt.Printf("Starting run %s (workflow %s, mode %s)\n", run.ID, def.Name, mode)
	if verbose {
		for _, step := range def.Steps {
			fmt.Printf("  %s [%s]\n", step.Name, step.Capability)
		}
	}

	return executeRun(ctx, cfg, dir, def, run, runOverrides{
		Offline:   runOffline,
		BudgetUSD: runBudget,
		Threshold: runThreshold,
		Profile:   runProfile,
	})
}
