// Package telemetry records what each run spent and where the time went.
// Sinks are append-only: draftsmith writes entries and never reads them
// back, and a failing sink never fails the run that feeds it.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/draftsmith/draftsmith/internal/config"
	derrors "github.com/draftsmith/draftsmith/internal/errors"
	"github.com/draftsmith/draftsmith/internal/types"
)

// Event identifies what happened.
type Event string

const (
	EventRunStarted     Event = "run_started"
	EventRunResumed     Event = "run_resumed"
	EventStepStarted    Event = "step_started"
	EventStepCompleted  Event = "step_completed"
	EventStepFailed     Event = "step_failed"
	EventLoopCapped     Event = "loop_capped"
	EventRetry          Event = "retry"
	EventAwaitingReview Event = "awaiting_review"
	EventDecision       Event = "decision"
	EventBudgetExceeded Event = "budget_exceeded"
	EventRunCompleted   Event = "run_completed"
	EventRunAborted     Event = "run_aborted"
	EventRunFailed      Event = "run_failed"
)

// Entry is a single telemetry record.
type Entry struct {
	Timestamp  time.Time      `json:"ts"`
	Event      Event          `json:"event"`
	RunID      string         `json:"run_id,omitempty"`
	Workflow   string         `json:"workflow,omitempty"`
	Step       string         `json:"step,omitempty"`
	Iteration  int            `json:"iteration,omitempty"`
	Tokens     int            `json:"tokens,omitempty"`
	CostUSD    float64        `json:"cost_usd,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Score      *float64       `json:"score,omitempty"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Sink receives telemetry entries.
type Sink interface {
	Emit(ctx context.Context, entry Entry) error
	Close() error
}

// New builds the sink selected by the configuration. The jsonl backend
// writes to <dir>/<runID>.jsonl.
func New(ctx context.Context, cfg config.TelemetryConfig, dir, runID string) (Sink, error) {
	switch cfg.Backend {
	case config.TelemetryJSONL, "":
		return NewJSONLSink(dir, runID)
	case config.TelemetryPostgres:
		return NewPostgresSink(ctx, cfg.Postgres.DSN())
	case config.TelemetryOff:
		return &NullSink{}, nil
	default:
		return nil, derrors.ConfigInvalidValue("telemetry.backend", string(cfg.Backend), "unknown backend")
	}
}

// NullSink discards all entries.
type NullSink struct{}

func (n *NullSink) Emit(_ context.Context, _ Entry) error { return nil }
func (n *NullSink) Close() error                          { return nil }

// FanoutSink emits to several sinks in order.
type FanoutSink struct {
	sinks []Sink
}

// Fanout combines sinks. Emit delivers to every sink even when one
// fails, returning the joined errors.
func Fanout(sinks ...Sink) *FanoutSink {
	return &FanoutSink{sinks: sinks}
}

func (f *FanoutSink) Emit(ctx context.Context, entry Entry) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Emit(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *FanoutSink) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder stamps run identity onto entries and emits them fire and
// forget: a sink failure is logged at warn and otherwise ignored.
type Recorder struct {
	sink     Sink
	runID    string
	workflow string
	log      *slog.Logger
}

// NewRecorder binds a sink to one run.
func NewRecorder(sink Sink, runID, workflow string, log *slog.Logger) *Recorder {
	if sink == nil {
		sink = &NullSink{}
	}
	return &Recorder{sink: sink, runID: runID, workflow: workflow, log: log}
}

func (r *Recorder) emit(ctx context.Context, entry Entry) {
	entry.Timestamp = time.Now()
	entry.RunID = r.runID
	entry.Workflow = r.workflow
	if err := r.sink.Emit(ctx, entry); err != nil {
		r.log.Warn("telemetry emit failed", "event", entry.Event, "error", err)
	}
}

// RunStarted records a fresh run.
func (r *Recorder) RunStarted(ctx context.Context, mode types.RunMode) {
	r.emit(ctx, Entry{Event: EventRunStarted, Details: map[string]any{"mode": string(mode)}})
}

// RunResumed records a run picked back up from its checkpoint.
func (r *Recorder) RunResumed(ctx context.Context, step string, iteration, records int) {
	r.emit(ctx, Entry{Event: EventRunResumed, Step: step, Iteration: iteration,
		Details: map[string]any{"records": records}})
}

// StepStarted records a step execution beginning.
func (r *Recorder) StepStarted(ctx context.Context, step string, iteration int) {
	r.emit(ctx, Entry{Event: EventStepStarted, Step: step, Iteration: iteration})
}

// StepCompleted records a finished step with its cost and duration.
func (r *Recorder) StepCompleted(ctx context.Context, rec types.StepRecord) {
	r.emit(ctx, Entry{
		Event:      EventStepCompleted,
		Step:       rec.Step,
		Iteration:  rec.Iteration,
		Tokens:     rec.Metrics.TotalTokens,
		CostUSD:    rec.Metrics.CostUSD,
		DurationMS: rec.Metrics.Duration.Milliseconds(),
		Score:      rec.Metrics.Score,
	})
}

// StepFailed records a step that errored.
func (r *Recorder) StepFailed(ctx context.Context, step string, iteration int, err error) {
	entry := Entry{Event: EventStepFailed, Step: step, Iteration: iteration}
	if err != nil {
		entry.Error = err.Error()
	}
	r.emit(ctx, entry)
}

// LoopCapped records a loop that hit its pass ceiling and advanced anyway.
func (r *Recorder) LoopCapped(ctx context.Context, step string, passes int) {
	r.emit(ctx, Entry{Event: EventLoopCapped, Step: step, Iteration: passes})
}

// Retry records a transient failure before another attempt.
func (r *Recorder) Retry(ctx context.Context, step string, attempt int, err error) {
	entry := Entry{Event: EventRetry, Step: step,
		Details: map[string]any{"attempt": attempt}}
	if err != nil {
		entry.Error = err.Error()
	}
	r.emit(ctx, entry)
}

// AwaitingReview records a run parked at an approval gate.
func (r *Recorder) AwaitingReview(ctx context.Context, step string) {
	r.emit(ctx, Entry{Event: EventAwaitingReview, Step: step})
}

// Decision records the reviewer's verdict at a gate.
func (r *Recorder) Decision(ctx context.Context, step, decision string) {
	r.emit(ctx, Entry{Event: EventDecision, Step: step,
		Details: map[string]any{"decision": decision}})
}

// BudgetExceeded records a run stopped by its cost ceiling.
func (r *Recorder) BudgetExceeded(ctx context.Context, spent, budget float64) {
	r.emit(ctx, Entry{Event: EventBudgetExceeded, CostUSD: spent,
		Details: map[string]any{"budget_usd": budget}})
}

// RunFinished records the run's terminal status with its totals.
func (r *Recorder) RunFinished(ctx context.Context, status types.RunStatus, totals types.Metrics, runErr string) {
	event := EventRunCompleted
	switch status {
	case types.RunAborted:
		event = EventRunAborted
	case types.RunFailed:
		event = EventRunFailed
	}
	r.emit(ctx, Entry{
		Event:      event,
		Tokens:     totals.TotalTokens,
		CostUSD:    totals.CostUSD,
		DurationMS: totals.Duration.Milliseconds(),
		Error:      runErr,
	})
}
