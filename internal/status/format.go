package status

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/draftsmith/draftsmith/internal/types"
)

// FormatOptions controls output formatting.
type FormatOptions struct {
	NoColor  bool
	AllSteps bool
	Quiet    bool
}

// FormatDetailedRun formats a single run with full details.
func FormatDetailedRun(summary *RunSummary, opts FormatOptions) string {
	var b strings.Builder

	b.WriteString(formatHeader(summary, opts))
	b.WriteString("\n\n")

	b.WriteString(formatProgress(summary, opts))
	b.WriteString("\n\n")

	if opts.AllSteps && len(summary.Steps) > 0 {
		b.WriteString(formatHistory(summary, opts))
		b.WriteString("\n")
	}

	if summary.Error != "" {
		b.WriteString(formatError(summary, opts))
		b.WriteString("\n")
	}

	return b.String()
}

// FormatRunList formats a list of runs.
func FormatRunList(summaries []*RunSummary, opts FormatOptions) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Found %d run(s):\n\n", len(summaries)))

	// Sort by started time (newest first)
	sorted := make([]*RunSummary, len(summaries))
	copy(sorted, summaries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartedAt.After(sorted[j].StartedAt)
	})

	for i, summary := range sorted {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(formatRunListItem(summary, opts))
	}

	return b.String()
}

func formatHeader(summary *RunSummary, opts FormatOptions) string {
	var b strings.Builder

	statusIcon := getStatusIcon(summary.Status)
	statusColor := getStatusColor(summary.Status, opts.NoColor)

	b.WriteString(fmt.Sprintf("Run:      %s\n", summary.ID))
	b.WriteString(fmt.Sprintf("Workflow: %s\n", summary.Workflow))
	b.WriteString(fmt.Sprintf("Topic:    %s\n", summary.Topic))
	b.WriteString(fmt.Sprintf("Mode:     %s\n", summary.Mode))
	b.WriteString(fmt.Sprintf("Status:   %s%s %s%s\n",
		statusColor, statusIcon, summary.Status, resetColor(opts.NoColor)))
	b.WriteString(fmt.Sprintf("Started:  %s", formatTime(summary.StartedAt)))

	if summary.FinishedAt != nil {
		b.WriteString(fmt.Sprintf("\nFinished: %s", formatTime(*summary.FinishedAt)))
		duration := summary.FinishedAt.Sub(summary.StartedAt)
		b.WriteString(fmt.Sprintf(" (took %s)", formatDuration(duration)))
	} else {
		elapsed := time.Since(summary.StartedAt)
		b.WriteString(fmt.Sprintf(" (%s ago)", formatDuration(elapsed)))
	}

	if !opts.Quiet {
		b.WriteString(fmt.Sprintf("\n\nSpend:    %d tokens, $%.4f", summary.TotalTokens, summary.CostUSD))
	}

	return b.String()
}

func formatProgress(summary *RunSummary, opts FormatOptions) string {
	var b strings.Builder

	stats := summary.StepStats
	total := stats.Total

	var percentage int
	if total > 0 {
		percentage = (stats.Done * 100) / total
	}

	// Progress bar (25 characters wide)
	barWidth := 25
	filled := (percentage * barWidth) / 100
	empty := barWidth - filled

	progressBar := strings.Repeat("█", filled) + strings.Repeat("░", empty)

	b.WriteString(fmt.Sprintf("Progress: %s %d%% (%d/%d steps)\n",
		progressBar, percentage, stats.Done, total))

	if summary.NextStep != "" {
		if summary.Iteration > 1 {
			b.WriteString(fmt.Sprintf("Next:     %s (pass %d)\n", summary.NextStep, summary.Iteration))
		} else {
			b.WriteString(fmt.Sprintf("Next:     %s\n", summary.NextStep))
		}
	}

	b.WriteString("\nRecords:  ")

	parts := []string{}
	if stats.Passes > 0 {
		parts = append(parts, fmt.Sprintf("%s✓ %d completed%s",
			getColor("green", opts.NoColor), stats.Passes, resetColor(opts.NoColor)))
	}
	if stats.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%s✗ %d failed%s",
			getColor("red", opts.NoColor), stats.Failed, resetColor(opts.NoColor)))
	}
	if stats.Edited > 0 {
		parts = append(parts, fmt.Sprintf("%s✎ %d edited%s",
			getColor("cyan", opts.NoColor), stats.Edited, resetColor(opts.NoColor)))
	}
	if stats.Capped > 0 {
		parts = append(parts, fmt.Sprintf("%s◆ %d loop-capped%s",
			getColor("yellow", opts.NoColor), stats.Capped, resetColor(opts.NoColor)))
	}
	if stats.Pending > 0 {
		parts = append(parts, fmt.Sprintf("%s○ %d pending%s",
			getColor("gray", opts.NoColor), stats.Pending, resetColor(opts.NoColor)))
	}
	if len(parts) == 0 {
		parts = append(parts, "none yet")
	}

	b.WriteString(strings.Join(parts, ", "))

	return b.String()
}

func formatHistory(summary *RunSummary, opts FormatOptions) string {
	var b strings.Builder

	b.WriteString("History:\n")

	for _, line := range summary.Steps {
		marker := "✓"
		color := getColor("green", opts.NoColor)
		switch {
		case line.Status == string(types.RecordFailed):
			marker = "✗"
			color = getColor("red", opts.NoColor)
		case line.Edited:
			marker = "✎"
			color = getColor("cyan", opts.NoColor)
		case line.LoopCapped:
			marker = "◆"
			color = getColor("yellow", opts.NoColor)
		}

		label := line.Step
		if line.Iteration > 1 {
			label = fmt.Sprintf("%s (pass %d)", line.Step, line.Iteration)
		}

		b.WriteString(fmt.Sprintf("  %s%s %s%s", color, marker, label, resetColor(opts.NoColor)))

		details := []string{}
		if line.Score != nil {
			details = append(details, fmt.Sprintf("score %.1f", *line.Score))
		}
		if line.Tokens > 0 {
			details = append(details, fmt.Sprintf("%d tokens", line.Tokens))
		}
		if line.Duration > 0 {
			details = append(details, formatDuration(line.Duration))
		}
		if len(details) > 0 {
			b.WriteString(fmt.Sprintf(" (%s)", strings.Join(details, ", ")))
		}
		if line.Error != "" {
			b.WriteString(fmt.Sprintf("\n      %s", line.Error))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func formatError(summary *RunSummary, opts FormatOptions) string {
	errColor := getColor("red", opts.NoColor)
	reset := resetColor(opts.NoColor)
	return fmt.Sprintf("%sError:%s %s\n", errColor, reset, summary.Error)
}

func formatRunListItem(summary *RunSummary, opts FormatOptions) string {
	var b strings.Builder

	statusIcon := getStatusIcon(summary.Status)
	statusColor := getStatusColor(summary.Status, opts.NoColor)

	b.WriteString(fmt.Sprintf("%s%s %s%s", statusColor, statusIcon, summary.ID, resetColor(opts.NoColor)))

	if !opts.Quiet {
		b.WriteString(fmt.Sprintf("\n  Workflow: %s", summary.Workflow))
		b.WriteString(fmt.Sprintf("\n  Topic:    %s", summary.Topic))
		b.WriteString(fmt.Sprintf("\n  Status:   %s%s%s", statusColor, summary.Status, resetColor(opts.NoColor)))
		b.WriteString(fmt.Sprintf("\n  Progress: %d/%d steps", summary.StepStats.Done, summary.StepStats.Total))

		if summary.FinishedAt != nil {
			duration := summary.FinishedAt.Sub(summary.StartedAt)
			b.WriteString(fmt.Sprintf("\n  Duration: %s", formatDuration(duration)))
		} else {
			elapsed := time.Since(summary.StartedAt)
			b.WriteString(fmt.Sprintf("\n  Running:  %s", formatDuration(elapsed)))
		}

		if summary.CostUSD > 0 {
			b.WriteString(fmt.Sprintf("\n  Spend:    $%.4f", summary.CostUSD))
		}
	}

	return b.String()
}

// Formatting helpers

func getStatusIcon(status types.RunStatus) string {
	switch status {
	case types.RunRunning:
		return "●"
	case types.RunAwaitingReview:
		return "◐"
	case types.RunCompleted:
		return "✓"
	case types.RunFailed:
		return "✗"
	case types.RunAborted:
		return "■"
	case types.RunPending:
		return "○"
	default:
		return "?"
	}
}

func getStatusColor(status types.RunStatus, noColor bool) string {
	if noColor {
		return ""
	}

	switch status {
	case types.RunRunning:
		return "\033[33m" // Yellow
	case types.RunAwaitingReview:
		return "\033[36m" // Cyan
	case types.RunCompleted:
		return "\033[32m" // Green
	case types.RunFailed:
		return "\033[31m" // Red
	case types.RunAborted:
		return "\033[90m" // Gray
	case types.RunPending:
		return "\033[90m" // Gray
	default:
		return ""
	}
}

func getColor(name string, noColor bool) string {
	if noColor {
		return ""
	}

	switch name {
	case "red":
		return "\033[31m"
	case "green":
		return "\033[32m"
	case "yellow":
		return "\033[33m"
	case "cyan":
		return "\033[36m"
	case "gray":
		return "\033[90m"
	default:
		return ""
	}
}

func resetColor(noColor bool) string {
	if noColor {
		return ""
	}
	return "\033[0m"
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
