// Package review implements the interactive approval surface: rendering
// a parked step for a human, collecting a verdict, and validating edited
// artifacts before they re-enter the pipeline.
package review

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/draftsmith/draftsmith/internal/orchestrator"
	"github.com/draftsmith/draftsmith/internal/types"
)

// TerminalReviewer prompts on the terminal for gate decisions. It
// implements orchestrator.Reviewer.
type TerminalReviewer struct {
	in       *bufio.Reader
	out      io.Writer
	renderer *Renderer

	// kinds maps step names to the artifact kind an edit must produce,
	// used when substituting for a failed step.
	kinds map[string]types.ArtifactKind

	// editFn opens content in an editor and returns the edited text.
	// Overridable in tests.
	editFn func(ctx context.Context, content string) (string, error)
}

// NewTerminalReviewer builds a reviewer reading from in and writing to
// out. kinds supplies the artifact kind per step for failure edits.
func NewTerminalReviewer(in io.Reader, out io.Writer, kinds map[string]types.ArtifactKind) *TerminalReviewer {
	return &TerminalReviewer{
		in:       bufio.NewReader(in),
		out:      out,
		renderer: NewRenderer(out),
		kinds:    kinds,
		editFn:   openEditor,
	}
}

// ReviewStep shows a completed gated step and collects the verdict.
func (t *TerminalReviewer) ReviewStep(ctx context.Context, run *types.Run, rec types.StepRecord) (orchestrator.Decision, error) {
	fmt.Fprintf(t.out, "\n%s\n", rule())
	fmt.Fprintf(t.out, "Step %q finished (pass %d) and is awaiting your review.\n", rec.Step, rec.Iteration)
	if line := scoreLine(rec.Metrics.Score); line != "" {
		fmt.Fprintf(t.out, "%s  tokens: %d  cost: $%.4f\n", line, rec.Metrics.TotalTokens, rec.Metrics.CostUSD)
	} else if rec.Metrics.TotalTokens > 0 {
		fmt.Fprintf(t.out, "tokens: %d  cost: $%.4f\n", rec.Metrics.TotalTokens, rec.Metrics.CostUSD)
	}
	fmt.Fprintf(t.out, "%s\n\n", rule())
	fmt.Fprint(t.out, t.renderer.Render(rec.Artifact.Body))
	fmt.Fprintf(t.out, "\n%s\n", rule())

	for {
		choice, err := t.ask("[a]pprove, [r]eject, [e]dit, or a[b]ort? ")
		if err != nil {
			return orchestrator.Decision{}, err
		}

		switch choice {
		case "a", "approve":
			return orchestrator.Decision{Verdict: orchestrator.VerdictApprove}, nil

		case "r", "reject":
			reason, err := t.ask("Reason for rejection (guides the retry): ")
			if err != nil {
				return orchestrator.Decision{}, err
			}
			return orchestrator.Decision{Verdict: orchestrator.VerdictReject, Reason: reason}, nil

		case "e", "edit":
			edited, err := t.editArtifact(ctx, rec.Step, rec.Artifact)
			if err != nil {
				fmt.Fprintf(t.out, "Edit not accepted: %v\n", err)
				continue
			}
			return orchestrator.Decision{Verdict: orchestrator.VerdictEdit, Artifact: &edited}, nil

		case "b", "abort", "q", "quit":
			reason, err := t.ask("Reason for aborting (optional): ")
			if err != nil {
				return orchestrator.Decision{}, err
			}
			return orchestrator.Decision{Verdict: orchestrator.VerdictAbort, Reason: reason}, nil

		default:
			fmt.Fprintf(t.out, "Unrecognized choice %q.\n", choice)
		}
	}
}

// ConsultFailure shows a failed step and collects how to proceed.
func (t *TerminalReviewer) ConsultFailure(ctx context.Context, run *types.Run, step string, stepErr error) (orchestrator.Decision, error) {
	fmt.Fprintf(t.out, "\n%s\n", rule())
	fmt.Fprintf(t.out, "Step %q failed: %v\n", step, stepErr)
	fmt.Fprintf(t.out, "%s\n", rule())

	for {
		choice, err := t.ask("[r]etry, [e]dit (hand-write the output), or [a]bort? ")
		if err != nil {
			return orchestrator.Decision{}, err
		}

		switch choice {
		case "r", "retry":
			return orchestrator.Decision{Verdict: orchestrator.VerdictReject}, nil

		case "e", "edit":
			kind, ok := t.kinds[step]
			if !ok {
				fmt.Fprintf(t.out, "No artifact kind known for step %q; cannot substitute.\n", step)
				continue
			}
			blank := types.NewArtifact(kind, "")
			edited, err := t.editArtifact(ctx, step, blank)
			if err != nil {
				fmt.Fprintf(t.out, "Edit not accepted: %v\n", err)
				continue
			}
			return orchestrator.Decision{Verdict: orchestrator.VerdictEdit, Artifact: &edited}, nil

		case "a", "abort", "q", "quit":
			return orchestrator.Decision{Verdict: orchestrator.VerdictAbort, Reason: "aborted after step failure"}, nil

		default:
			fmt.Fprintf(t.out, "Unrecognized choice %q.\n", choice)
		}
	}
}

// editArtifact opens the artifact body in the editor and validates the
// result. Meta and kind carry over; only the body changes.
func (t *TerminalReviewer) editArtifact(ctx context.Context, step string, a types.Artifact) (types.Artifact, error) {
	body, err := t.editFn(ctx, a.Body)
	if err != nil {
		return types.Artifact{}, err
	}
	edited := a.Clone()
	edited.Body = body
	if err := ValidateArtifact(step, edited); err != nil {
		return types.Artifact{}, err
	}
	return edited, nil
}

func (t *TerminalReviewer) ask(prompt string) (string, error) {
	fmt.Fprint(t.out, prompt)
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading response: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}

// openEditor writes content to a temp file, opens $EDITOR on it, and
// returns the saved text.
func openEditor(ctx context.Context, content string) (string, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	f, err := os.CreateTemp("", "draftsmith-edit-*.md")
	if err != nil {
		return "", fmt.Errorf("creating edit buffer: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", fmt.Errorf("writing edit buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("editor %s failed: %w", editor, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading edited file: %w", err)
	}
	return string(data), nil
}

var _ orchestrator.Reviewer = (*TerminalReviewer)(nil)
