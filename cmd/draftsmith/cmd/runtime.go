package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/draftsmith/draftsmith/internal/agent"
	"github.com/draftsmith/draftsmith/internal/checkpoint"
	"github.com/draftsmith/draftsmith/internal/config"
	"github.com/draftsmith/draftsmith/internal/control"
	"github.com/draftsmith/draftsmith/internal/logging"
	"github.com/draftsmith/draftsmith/internal/orchestrator"
	"github.com/draftsmith/draftsmith/internal/provider"
	"github.com/draftsmith/draftsmith/internal/research"
	"github.com/draftsmith/draftsmith/internal/review"
	"github.com/draftsmith/draftsmith/internal/telemetry"
	"github.com/draftsmith/draftsmith/internal/types"
	"github.com/draftsmith/draftsmith/internal/workflow"
)

// runOverrides carries flag-level overrides into the orchestrator wiring.
type runOverrides struct {
	Offline   bool
	BudgetUSD float64
	Threshold float64
	Profile   string
}

// buildGenerator picks the text provider: scripted when offline or
// configured, Gemini otherwise.
func buildGenerator(ctx context.Context, cfg *config.Config, offline bool) (provider.Generator, error) {
	if offline || cfg.Provider.Name == config.ProviderScripted {
		return provider.NewScripted(), nil
	}
	return provider.NewGemini(ctx, cfg.Provider)
}

// executeRun wires the full stack for one run and drives it to a stop:
// provider, roles, checkpoint store, telemetry, control socket, signal
// handling. It is shared by run and resume.
func executeRun(ctx context.Context, cfg *config.Config, dir string, def *workflow.Definition, run *types.Run, ov runOverrides) error {
	log, logCloser, err := logging.NewRunLogger(cfg, dir, run.ID)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	gen, err := buildGenerator(ctx, cfg, ov.Offline)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer gen.Close()

	fetcher := research.NewFetcher(cfg.Provider.Timeout, log)
	roles := agent.Registry(agent.Deps{
		Generator:   gen,
		Fetcher:     fetcher,
		ArticlesDir: cfg.ArticlesDir(dir),
	})

	store, err := checkpoint.New(cfg.Checkpoint, cfg.RunsDir(dir))
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}
	defer store.Close()

	baseSink, err := telemetry.New(ctx, cfg.Telemetry, cfg.TelemetryDir(dir), run.ID)
	if err != nil {
		return fmt.Errorf("opening telemetry sink: %w", err)
	}
	registry := prometheus.NewRegistry()
	sink := telemetry.Fanout(baseSink, telemetry.NewPromSink(registry))
	defer sink.Close()

	var reviewer orchestrator.Reviewer
	if run.Mode == types.ModeInteractive {
		kinds := make(map[string]types.ArtifactKind, len(def.Steps))
		for _, step := range def.Steps {
			if role, ok := roles[step.Capability]; ok {
				kinds[step.Name] = role.Kind()
			}
		}
		reviewer = review.NewTerminalReviewer(os.Stdin, os.Stdout, kinds)
	}

	budget := cfg.Orchestrator.BudgetUSD
	if ov.BudgetUSD > 0 {
		budget = ov.BudgetUSD
	}
	threshold := cfg.Orchestrator.ScoreThreshold
	if ov.Threshold > 0 {
		threshold = ov.Threshold
	}

	orch, err := orchestrator.New(def, run, orchestrator.Options{
		Store:          store,
		Sink:           sink,
		Roles:          roles,
		Reviewer:       reviewer,
		Retry:          orchestrator.RetryPolicyFromConfig(cfg.Orchestrator),
		Log:            log,
		BudgetUSD:      budget,
		ScoreThreshold: threshold,
	})
	if err != nil {
		return err
	}

	ctrl := control.NewServer(run.ID, orch, registry, log)
	if err := ctrl.Start(); err != nil {
		// The run still works without its control socket; only the
		// companion commands lose access.
		log.Warn("control socket unavailable", "error", err)
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = ctrl.Shutdown(sctx)
		}()
	}

	// First signal stops at the next step boundary; the second cancels
	// outright.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nStopping at the next step boundary (interrupt again to force)...")
		orch.RequestAbort()
		<-sigCh
		cancel()
	}()

	if err := orch.Execute(ctx); err != nil {
		return err
	}
	return printOutcome(run)
}

// printOutcome summarizes how the run ended.
func printOutcome(run *types.Run) error {
	switch run.Status {
	case types.RunCompleted:
		fmt.Printf("Run %s completed.\n", run.ID)
		if last := run.LastRecord(); last != nil {
			if path := last.Artifact.MetaString("path"); path != "" {
				fmt.Printf("Article written to %s\n", path)
			}
		}
		totals := run.TotalMetrics()
		fmt.Printf("Spend: %d tokens, $%.4f\n", totals.TotalTokens, totals.CostUSD)
	case types.RunAborted:
		fmt.Printf("Run %s aborted; resume it with: draftsmith resume %s\n", run.ID, run.ID)
	case types.RunAwaitingReview:
		fmt.Printf("Run %s is awaiting review.\n", run.ID)
	default:
		fmt.Printf("Run %s stopped with status %s.\n", run.ID, run.Status)
	}
	return nil
}
