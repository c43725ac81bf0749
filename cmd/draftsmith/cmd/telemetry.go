package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/draftsmith/draftsmith/internal/control"
	"github.com/draftsmith/draftsmith/internal/telemetry"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry <run-id>",
	Short: "Show a run's telemetry",
	Long: `Show the per-step telemetry recorded for a run: events, token
counts, spend, durations, and scores.

With --metrics, the Prometheus text exposition is fetched from the
run's control socket instead, which only works while the run is alive.`,
	Args: cobra.ExactArgs(1),
	RunE: runTelemetry,
}

var (
	telemetryJSON    bool
	telemetryMetrics bool
)

func init() {
	telemetryCmd.Flags().BoolVar(&telemetryJSON, "json", false, "emit raw JSONL entries")
	telemetryCmd.Flags().BoolVar(&telemetryMetrics, "metrics", false, "fetch live Prometheus metrics from the run")
	rootCmd.AddCommand(telemetryCmd)
}

func runTelemetry(cmd *cobra.Command, args []string) error {
	runID := args[0]

	if telemetryMetrics {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		text, err := control.NewClient(runID).Metrics(ctx)
		if err != nil {
			return fmt.Errorf("fetching metrics for run %s (is it running?): %w", runID, err)
		}
		fmt.Print(text)
		return nil
	}

	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	path := filepath.Join(cfg.TelemetryDir(dir), runID+".jsonl")

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no telemetry recorded for run %s", runID)
		}
		return fmt.Errorf("opening telemetry file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if telemetryJSON {
			fmt.Println(string(line))
			continue
		}
		var entry telemetry.Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			// A torn trailing line from a crashed run is not fatal.
			continue
		}
		fmt.Println(formatEntry(entry))
	}
	return scanner.Err()
}

func formatEntry(e telemetry.Entry) string {
	line := fmt.Sprintf("%s  %-16s", e.Timestamp.Format("15:04:05"), e.Event)
	if e.Step != "" {
		line += fmt.Sprintf("  %s", e.Step)
		if e.Iteration > 1 {
			line += fmt.Sprintf(" (pass %d)", e.Iteration)
		}
	}
	if e.Tokens > 0 {
		line += fmt.Sprintf("  %d tokens", e.Tokens)
	}
	if e.CostUSD > 0 {
		line += fmt.Sprintf("  $%.4f", e.CostUSD)
	}
	if e.DurationMS > 0 {
		line += fmt.Sprintf("  %s", (time.Duration(e.DurationMS) * time.Millisecond).Round(time.Millisecond))
	}
	if e.Score != nil {
		line += fmt.Sprintf("  score %.1f", *e.Score)
	}
	if e.Error != "" {
		line += fmt.Sprintf("  error=%q", e.Error)
	}
	return line
}
