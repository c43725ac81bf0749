package control

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftsmith/draftsmith/internal/logging"
	"github.com/draftsmith/draftsmith/internal/orchestrator"
	"github.com/draftsmith/draftsmith/internal/types"
)

type fakeController struct {
	mu        sync.Mutex
	snap      orchestrator.Snapshot
	aborted   bool
	decisions []orchestrator.Decision
	decideErr error
}

func (f *fakeController) Status() orchestrator.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) RequestAbort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = true
}

func (f *fakeController) Decide(dec orchestrator.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decideErr != nil {
		return f.decideErr
	}
	f.decisions = append(f.decisions, dec)
	return nil
}

func startServer(t *testing.T, ctrl Controller, gatherer prometheus.Gatherer) *Client {
	t.Helper()
	// Socket paths have a low length ceiling, so keep the name short.
	sock := filepath.Join(t.TempDir(), "c.sock")
	srv := NewServerWithPath(sock, ctrl, gatherer, logging.NewForTest())
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return NewClientWithPath(sock)
}

func TestStatusRoundTrip(t *testing.T) {
	ctrl := &fakeController{snap: orchestrator.Snapshot{
		RunID:        "demo-20260314-120000",
		Workflow:     "article",
		Status:       types.RunAwaitingReview,
		Mode:         types.ModeInteractive,
		Records:      4,
		TotalTokens:  1234,
		CostUSD:      0.05,
		AwaitingStep: "review",
	}}
	client := startServer(t, ctrl, nil)

	snap, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ctrl.snap, snap)
}

func TestInterrupt(t *testing.T) {
	ctrl := &fakeController{}
	client := startServer(t, ctrl, nil)

	require.NoError(t, client.Interrupt(context.Background()))
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	assert.True(t, ctrl.aborted)
}

func TestDecisionDelivery(t *testing.T) {
	ctrl := &fakeController{}
	client := startServer(t, ctrl, nil)

	dec := orchestrator.Decision{Verdict: orchestrator.VerdictReject, Reason: "needs a rewrite"}
	require.NoError(t, client.Decide(context.Background(), dec))

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	require.Len(t, ctrl.decisions, 1)
	assert.Equal(t, dec, ctrl.decisions[0])
}

func TestDecisionRejectedWhenNotParked(t *testing.T) {
	ctrl := &fakeController{decideErr: assert.AnError}
	client := startServer(t, ctrl, nil)

	err := client.Decide(context.Background(), orchestrator.Decision{Verdict: orchestrator.VerdictApprove})
	require.Error(t, err)
	assert.Contains(t, err.Error(), assert.AnError.Error())
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "draftsmith_control_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	client := startServer(t, &fakeController{}, reg)

	text, err := client.Metrics(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.Contains(text, "draftsmith_control_test_total 3"))
}

func TestMetricsDisabledWithoutGatherer(t *testing.T) {
	client := startServer(t, &fakeController{}, nil)
	_, err := client.Metrics(context.Background())
	assert.Error(t, err)
}

func TestSocketPath(t *testing.T) {
	assert.True(t, strings.HasSuffix(SocketPath("demo-20260314-120000"),
		"draftsmith-demo-20260314-120000.sock"))
}
