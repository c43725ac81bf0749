package orchestrator

import (
	"context"

	"github.com/draftsmith/draftsmith/internal/types"
)

// Verdict is a reviewer's decision at an approval gate or after a step
// failure.
type Verdict string

const (
	// VerdictApprove accepts the step's output and advances.
	VerdictApprove Verdict = "approve"

	// VerdictReject sends the step back for another pass.
	VerdictReject Verdict = "reject"

	// VerdictEdit replaces the step's artifact and advances.
	VerdictEdit Verdict = "edit"

	// VerdictAbort stops the run, leaving a resumable checkpoint.
	VerdictAbort Verdict = "abort"
)

// Valid returns true if this is a recognized verdict.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictApprove, VerdictReject, VerdictEdit, VerdictAbort:
		return true
	}
	return false
}

// Decision carries a verdict with its payload: Artifact for edits,
// Reason for rejects and aborts.
type Decision struct {
	Verdict  Verdict         `json:"verdict"`
	Reason   string          `json:"reason,omitempty"`
	Artifact *types.Artifact `json:"artifact,omitempty"`
}

// Reviewer supplies human decisions in interactive mode. Implementations
// block until the human answers; the orchestrator imposes no timeout.
type Reviewer interface {
	// ReviewStep presents a completed gated step and returns the verdict.
	ReviewStep(ctx context.Context, run *types.Run, rec types.StepRecord) (Decision, error)

	// ConsultFailure presents a failed step. Reject retries the step,
	// edit substitutes an artifact as its output, abort stops the run.
	ConsultFailure(ctx context.Context, run *types.Run, step string, stepErr error) (Decision, error)
}

// AutoReviewer is the non-interactive policy: gates pass and failures
// stand. It is also the safety net when no reviewer is wired.
type AutoReviewer struct{}

func (AutoReviewer) ReviewStep(_ context.Context, _ *types.Run, _ types.StepRecord) (Decision, error) {
	return Decision{Verdict: VerdictApprove}, nil
}

func (AutoReviewer) ConsultFailure(_ context.Context, _ *types.Run, _ string, _ error) (Decision, error) {
	return Decision{Verdict: VerdictAbort}, nil
}

var _ Reviewer = AutoReviewer{}
