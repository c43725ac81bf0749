package cmd

import (
	"strings"
	"testing"
)

func resetReviewFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		reviewApprove = false
		reviewReject = ""
		reviewEdit = ""
		reviewAbort = ""
	})
}

func TestReviewRequiresExactlyOneVerdict(t *testing.T) {
	resetReviewFlags(t)

	err := runReview(reviewCmd, []string{"some-run"})
	if err == nil || !strings.Contains(err.Error(), "exactly one of") {
		t.Fatalf("expected verdict flag error with no flags, got: %v", err)
	}

	reviewApprove = true
	reviewAbort = "changed my mind"
	err = runReview(reviewCmd, []string{"some-run"})
	if err == nil || !strings.Contains(err.Error(), "exactly one of") {
		t.Fatalf("expected verdict flag error with two flags, got: %v", err)
	}
}

func TestReviewRejectNeedsLiveRun(t *testing.T) {
	resetReviewFlags(t)
	reviewReject = "needs more depth"

	// No run process, so no control socket to connect to.
	err := runReview(reviewCmd, []string{"no-such-run"})
	if err == nil || !strings.Contains(err.Error(), "delivering decision") {
		t.Fatalf("expected delivery error, got: %v", err)
	}
}
