// Package orchestrator drives a run through its workflow: sequencing
// steps, retrying transient failures, looping on quality scores, parking
// at approval gates, and checkpointing after every step record so any
// interruption is resumable.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/draftsmith/draftsmith/internal/agent"
	"github.com/draftsmith/draftsmith/internal/checkpoint"
	"github.com/draftsmith/draftsmith/internal/config"
	derrors "github.com/draftsmith/draftsmith/internal/errors"
	"github.com/draftsmith/draftsmith/internal/logging"
	"github.com/draftsmith/draftsmith/internal/telemetry"
	"github.com/draftsmith/draftsmith/internal/types"
	"github.com/draftsmith/draftsmith/internal/workflow"
)

// Options assembles an orchestrator's collaborators.
type Options struct {
	Store    checkpoint.Store
	Sink     telemetry.Sink
	Roles    map[string]agent.Role
	Reviewer Reviewer
	Retry    RetryPolicy
	Log      *slog.Logger

	// BudgetUSD stops the run at the next step boundary once crossed.
	// Zero means no ceiling.
	BudgetUSD float64

	// ScoreThreshold overrides every loop step's min_score when positive.
	ScoreThreshold float64
}

// Orchestrator owns one run. It is not reusable; build a new one per
// Execute call.
type Orchestrator struct {
	run      *types.Run
	steps    []types.StepDescriptor
	store    checkpoint.Store
	rec      *telemetry.Recorder
	roles    map[string]agent.Role
	reviewer Reviewer
	retry    RetryPolicy
	budget   float64
	log      *slog.Logger

	mu           sync.Mutex // guards run and awaitingStep
	awaitingStep string
	decisions    chan Decision
	abort        atomic.Bool

	// gateOnResume re-presents the gate a resumed run was parked at.
	gateOnResume bool
}

// New binds a run to a workflow definition and its collaborators. Step
// descriptors are copied so threshold overrides never touch the loaded
// definition. The run's history must be consistent with the definition.
func New(def *workflow.Definition, run *types.Run, opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("orchestrator requires a checkpoint store")
	}
	if opts.Reviewer == nil {
		opts.Reviewer = AutoReviewer{}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Sink == nil {
		opts.Sink = &telemetry.NullSink{}
	}

	steps := make([]types.StepDescriptor, len(def.Steps))
	copy(steps, def.Steps)
	for i := range steps {
		if _, ok := opts.Roles[steps[i].Capability]; !ok {
			return nil, derrors.UnknownCapability(steps[i].Name, steps[i].Capability)
		}
		if steps[i].Loop != nil {
			loop := *steps[i].Loop
			if opts.ScoreThreshold > 0 {
				loop.MinScore = opts.ScoreThreshold
			}
			steps[i].Loop = &loop
		}
	}

	if err := validateHistory(run, steps); err != nil {
		return nil, err
	}

	return &Orchestrator{
		run:       run,
		steps:     steps,
		store:     opts.Store,
		rec:       telemetry.NewRecorder(opts.Sink, run.ID, run.Workflow, opts.Log),
		roles:     opts.Roles,
		reviewer:  opts.Reviewer,
		retry:     opts.Retry,
		budget:    opts.BudgetUSD,
		log:       logging.WithRun(opts.Log, run.ID),
		decisions: make(chan Decision, 1),
	}, nil
}

// validateHistory checks that the run's completed records still fit the
// definition: every recorded step must exist, in definition order. A
// definition edited out from under a saved run fails here rather than
// resuming into the wrong sequence.
func validateHistory(run *types.Run, steps []types.StepDescriptor) error {
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		index[s.Name] = i
	}
	last := 0
	for _, rec := range run.Records {
		if rec.Status != types.RecordCompleted {
			continue
		}
		i, ok := index[rec.Step]
		if !ok {
			return derrors.WorkflowInvalid(run.Workflow,
				fmt.Sprintf("checkpoint records step %q which the workflow no longer defines", rec.Step))
		}
		if i < last {
			return derrors.WorkflowInvalid(run.Workflow,
				fmt.Sprintf("checkpoint records step %q out of workflow order", rec.Step))
		}
		last = i
	}
	return nil
}

// Run returns the orchestrated run.
func (o *Orchestrator) Run() *types.Run {
	return o.run
}

// Snapshot is a point-in-time view of the run for status surfaces.
type Snapshot struct {
	RunID        string          `json:"run_id"`
	Workflow     string          `json:"workflow"`
	Topic        string          `json:"topic"`
	Status       types.RunStatus `json:"status"`
	Mode         types.RunMode   `json:"mode"`
	Records      int             `json:"records"`
	TotalTokens  int             `json:"total_tokens"`
	CostUSD      float64         `json:"cost_usd"`
	AwaitingStep string          `json:"awaiting_step,omitempty"`
}

// Status reports the run's current state. Safe to call from other
// goroutines while Execute runs.
func (o *Orchestrator) Status() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	totals := o.run.TotalMetrics()
	return Snapshot{
		RunID:        o.run.ID,
		Workflow:     o.run.Workflow,
		Topic:        o.run.Topic,
		Status:       o.run.Status,
		Mode:         o.run.Mode,
		Records:      len(o.run.Records),
		TotalTokens:  totals.TotalTokens,
		CostUSD:      totals.CostUSD,
		AwaitingStep: o.awaitingStep,
	}
}

// RequestAbort asks the run to stop at the next step boundary. A step in
// flight finishes and is recorded first, so the checkpoint never holds a
// half-completed step.
func (o *Orchestrator) RequestAbort() {
	o.abort.Store(true)
	o.log.Info("abort requested, honoring at next step boundary")
	// Unblock a parked gate.
	select {
	case o.decisions <- Decision{Verdict: VerdictAbort, Reason: "abort requested"}:
	default:
	}
}

// Decide delivers an external gate decision, normally from the control
// socket. It fails when the run is not parked at a gate.
func (o *Orchestrator) Decide(dec Decision) error {
	if !dec.Verdict.Valid() {
		return fmt.Errorf("unknown verdict: %s", dec.Verdict)
	}
	if dec.Verdict == VerdictEdit && dec.Artifact == nil {
		return derrors.ReviewInvalidEdit(o.awaiting(), fmt.Errorf("edit decision carries no artifact"))
	}
	o.mu.Lock()
	parked := o.awaitingStep != ""
	o.mu.Unlock()
	if !parked {
		return derrors.Newf(derrors.CodeRunInvalidTransition,
			"run %s is not awaiting review", o.run.ID)
	}
	select {
	case o.decisions <- dec:
		return nil
	default:
		return fmt.Errorf("a decision is already pending")
	}
}

func (o *Orchestrator) awaiting() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.awaitingStep
}

// Execute drives the run to a terminal state or a context cancellation.
// It returns nil for completed and aborted runs; failures return the
// error that stopped the run, with the checkpoint already reflecting it.
func (o *Orchestrator) Execute(ctx context.Context) error {
	lock, err := o.store.AcquireLock(ctx, o.run.ID)
	if err != nil {
		return err
	}
	defer lock.Release()

	switch {
	case o.run.Status == types.RunPending:
		if err := o.transition(o.run.Start); err != nil {
			return err
		}
		if err := o.save(ctx); err != nil {
			return err
		}
		o.rec.RunStarted(ctx, o.run.Mode)
		o.log.Info("run started", "workflow", o.run.Workflow, "mode", o.run.Mode, "steps", len(o.steps))
	case o.run.Status == types.RunAwaitingReview:
		if err := o.transition(o.run.Unpark); err != nil {
			return err
		}
		o.gateOnResume = o.run.Mode == types.ModeInteractive
		o.logResume(ctx)
	case o.run.Status == types.RunRunning:
		o.logResume(ctx)
	case o.run.Status == types.RunAborted || o.run.Status == types.RunFailed:
		// Aborts and failures checkpoint at the last good step, so they
		// stay resumable. Only completion is final.
		if err := o.transition(o.run.Revive); err != nil {
			return err
		}
		o.logResume(ctx)
	default:
		return derrors.RunTerminal(o.run.ID, string(o.run.Status))
	}

	// A run that parked at a gate answers that gate before advancing.
	if o.gateOnResume {
		if last := o.run.LastRecord(); last != nil && last.Status == types.RecordCompleted {
			action, err := o.gate(ctx, *last)
			if err != nil {
				return err
			}
			if action == gateAborted {
				return nil
			}
			// gateRetry falls through: the explicit retry below picks
			// the iteration up from the record history.
			if action == gateRetry {
				return o.loop(ctx, o.retryPosition(last.Step))
			}
		}
	}

	return o.loop(ctx, o.run.Position(o.steps))
}

func (o *Orchestrator) logResume(ctx context.Context) {
	pos := o.run.Position(o.steps)
	o.rec.RunResumed(ctx, pos.Step, pos.Iteration, len(o.run.Records))
	o.log.Info("run resumed", "next_step", pos.Step, "iteration", pos.Iteration,
		"records", len(o.run.Records))
}

// retryPosition rebuilds the position for explicitly re-executing a step
// that already has completed records.
func (o *Orchestrator) retryPosition(step string) types.Position {
	for i, s := range o.steps {
		if s.Name == step {
			return types.Position{
				Index:     i,
				Step:      step,
				Iteration: len(o.run.CompletedRecordsFor(step)) + 1,
			}
		}
	}
	return o.run.Position(o.steps)
}

// loop is the step-sequencing core. Except for explicit retries, the
// next position is always recomputed from the record history, keeping
// derived state honest with the checkpoint.
func (o *Orchestrator) loop(ctx context.Context, pos types.Position) error {
	for !pos.Done {
		if ctx.Err() != nil || o.abort.Load() {
			return o.finishAborted(ctx, "")
		}
		if err := o.checkBudget(ctx); err != nil {
			return err
		}

		step := o.steps[pos.Index]
		startedAt := time.Now()
		artifact, metrics, stepErr := o.executeStep(ctx, step, pos.Iteration)
		if stepErr != nil {
			action, err := o.handleFailure(ctx, step, pos.Iteration, startedAt, stepErr)
			if err != nil {
				return err
			}
			switch action {
			case gateRetry:
				pos = o.retryPosition(step.Name)
				continue
			case gateAborted:
				return nil
			case gateAdvance:
				// An edit stood in for the failed step.
				pos = o.run.Position(o.steps)
				continue
			}
		}

		capped := step.Loop != nil && !step.Loop.Satisfied(metrics) && pos.Iteration >= step.Loop.MaxPasses
		rec := types.NewStepRecord(step.Name, pos.Iteration, artifact, metrics, startedAt)
		rec.LoopCapped = capped
		if err := o.commit(ctx, rec); err != nil {
			return err
		}

		if capped {
			// The designed degrade path: advance anyway.
			o.log.Warn("loop cap reached without meeting score bar, advancing",
				"step", step.Name, "passes", pos.Iteration, "min_score", step.Loop.MinScore)
			o.rec.LoopCapped(ctx, step.Name, pos.Iteration)
		} else if step.Loop != nil && !step.Loop.Satisfied(metrics) {
			o.log.Info("loop pass below score bar, repeating step",
				"step", step.Name, "iteration", pos.Iteration)
			pos = types.Position{Index: pos.Index, Step: step.Name, Iteration: pos.Iteration + 1}
			continue
		}

		if step.Approval && o.run.Mode == types.ModeInteractive {
			action, err := o.gate(ctx, rec)
			if err != nil {
				return err
			}
			switch action {
			case gateRetry:
				pos = o.retryPosition(step.Name)
				continue
			case gateAborted:
				return nil
			}
		}

		pos = o.run.Position(o.steps)
	}

	return o.finishCompleted(ctx)
}

// executeStep runs one capability call under the retry policy. Only
// transient provider failures retry; everything else surfaces at once.
func (o *Orchestrator) executeStep(ctx context.Context, step types.StepDescriptor, iteration int) (types.Artifact, types.Metrics, error) {
	a := agent.New(o.roles[step.Capability], logging.WithStep(o.log, step.Name, iteration))
	req := agent.Request{
		Input:     o.run.LastArtifact(),
		RunID:     o.run.ID,
		Topic:     o.run.Topic,
		Seed:      o.run.Seed,
		Params:    step.Params,
		Profile:   config.Profile(o.run.Profile),
		MaxRounds: step.MaxRounds,
	}

	o.rec.StepStarted(ctx, step.Name, iteration)
	o.log.Info("step started", "step", step.Name, "iteration", iteration, "capability", step.Capability)

	for attempt := 1; ; attempt++ {
		out, metrics, err := a.Run(ctx, req)
		if err == nil {
			return out, metrics, nil
		}
		if !derrors.IsRetryable(err) || attempt >= o.retry.MaxAttempts {
			return types.Artifact{}, types.Metrics{}, err
		}
		o.log.Warn("transient provider failure, retrying",
			"step", step.Name, "attempt", attempt, "max_attempts", o.retry.MaxAttempts, "error", err)
		o.rec.Retry(ctx, step.Name, attempt, err)
		if err := o.retry.Sleep(ctx, attempt); err != nil {
			return types.Artifact{}, types.Metrics{}, err
		}
	}
}

// handleFailure resolves a step that failed after retries. Auto mode
// fails the run; interactive mode asks the reviewer.
func (o *Orchestrator) handleFailure(ctx context.Context, step types.StepDescriptor, iteration int, startedAt time.Time, stepErr error) (gateAction, error) {
	failed := types.NewFailedRecord(step.Name, iteration, stepErr, startedAt)
	if err := o.commit(ctx, failed); err != nil {
		return gateAborted, err
	}
	o.log.Error("step failed", "step", step.Name, "iteration", iteration, "error", stepErr)

	if o.run.Mode == types.ModeInteractive {
		dec, err := o.reviewer.ConsultFailure(ctx, o.run, step.Name, stepErr)
		if err != nil {
			return gateAborted, err
		}
		o.rec.Decision(ctx, step.Name, string(dec.Verdict))
		switch dec.Verdict {
		case VerdictReject:
			return gateRetry, nil
		case VerdictEdit:
			if dec.Artifact == nil {
				return gateAborted, derrors.ReviewInvalidEdit(step.Name,
					fmt.Errorf("edit decision carries no artifact"))
			}
			edited := types.NewStepRecord(step.Name,
				len(o.run.CompletedRecordsFor(step.Name))+1,
				dec.Artifact.Clone(), types.Metrics{}, time.Now())
			edited.Edited = true
			if err := o.commit(ctx, edited); err != nil {
				return gateAborted, err
			}
			return gateAdvance, nil
		default:
			if err := o.finishAborted(ctx, dec.Reason); err != nil {
				return gateAborted, err
			}
			return gateAborted, nil
		}
	}

	failErr := derrors.StepFailed(step.Name, iteration, stepErr)
	if err := o.transition(func() error { return o.run.Fail(failErr.Error()) }); err != nil {
		return gateAborted, err
	}
	if err := o.save(ctx); err != nil {
		return gateAborted, err
	}
	o.rec.StepFailed(ctx, step.Name, iteration, stepErr)
	o.rec.RunFinished(ctx, o.run.Status, o.run.TotalMetrics(), o.run.Error)
	return gateAborted, failErr
}

type gateAction int

const (
	gateAdvance gateAction = iota
	gateRetry
	gateAborted
)

// gate parks the run at an approval gate and waits for a decision from
// the reviewer prompt or the control socket, whichever answers first.
func (o *Orchestrator) gate(ctx context.Context, rec types.StepRecord) (gateAction, error) {
	if err := o.transition(o.run.Park); err != nil {
		return gateAborted, err
	}
	o.setAwaiting(rec.Step)
	if err := o.save(ctx); err != nil {
		return gateAborted, err
	}
	o.rec.AwaitingReview(ctx, rec.Step)
	o.log.Info("awaiting review", "step", rec.Step, "iteration", rec.Iteration)

	// The prompt goroutine can outlive this gate when the decision comes
	// in over the control socket; it parks on stdin until the process
	// exits, which is harmless for a CLI.
	type answer struct {
		dec Decision
		err error
	}
	prompted := make(chan answer, 1)
	go func() {
		dec, err := o.reviewer.ReviewStep(ctx, o.run, rec)
		prompted <- answer{dec, err}
	}()

	var dec Decision
	select {
	case <-ctx.Done():
		o.setAwaiting("")
		if err := o.finishAborted(ctx, "context cancelled"); err != nil {
			return gateAborted, err
		}
		return gateAborted, nil
	case a := <-prompted:
		if a.err != nil {
			o.setAwaiting("")
			return gateAborted, a.err
		}
		dec = a.dec
	case dec = <-o.decisions:
	}
	o.setAwaiting("")
	o.rec.Decision(ctx, rec.Step, string(dec.Verdict))

	switch dec.Verdict {
	case VerdictApprove:
		if err := o.transition(o.run.Unpark); err != nil {
			return gateAborted, err
		}
		if err := o.save(ctx); err != nil {
			return gateAborted, err
		}
		return gateAdvance, nil

	case VerdictReject:
		o.log.Info("gate rejected, re-running step", "step", rec.Step, "reason", dec.Reason)
		if err := o.transition(o.run.Unpark); err != nil {
			return gateAborted, err
		}
		if err := o.save(ctx); err != nil {
			return gateAborted, err
		}
		return gateRetry, nil

	case VerdictEdit:
		if dec.Artifact == nil {
			return gateAborted, derrors.ReviewInvalidEdit(rec.Step,
				fmt.Errorf("edit decision carries no artifact"))
		}
		if err := o.transition(o.run.Unpark); err != nil {
			return gateAborted, err
		}
		edited := types.NewStepRecord(rec.Step, rec.Iteration+1, dec.Artifact.Clone(), types.Metrics{}, time.Now())
		edited.Edited = true
		if err := o.commit(ctx, edited); err != nil {
			return gateAborted, err
		}
		o.log.Info("gate edit accepted", "step", rec.Step)
		return gateAdvance, nil

	default: // abort
		if err := o.finishAborted(ctx, dec.Reason); err != nil {
			return gateAborted, err
		}
		return gateAborted, nil
	}
}

func (o *Orchestrator) setAwaiting(step string) {
	o.mu.Lock()
	o.awaitingStep = step
	o.mu.Unlock()
}

// checkBudget fails the run when accumulated cost crossed the ceiling.
func (o *Orchestrator) checkBudget(ctx context.Context) error {
	if o.budget <= 0 {
		return nil
	}
	spent := o.run.TotalMetrics().CostUSD
	if spent < o.budget {
		return nil
	}
	budgetErr := derrors.BudgetExceeded(o.run.ID, spent, o.budget)
	if err := o.transition(func() error { return o.run.Fail(budgetErr.Error()) }); err != nil {
		return err
	}
	if err := o.save(ctx); err != nil {
		return err
	}
	o.rec.BudgetExceeded(ctx, spent, o.budget)
	o.rec.RunFinished(ctx, o.run.Status, o.run.TotalMetrics(), o.run.Error)
	return budgetErr
}

// commit appends a record and makes it durable before anything else
// happens. The save-before-advance ordering is what resume correctness
// rests on.
func (o *Orchestrator) commit(ctx context.Context, rec types.StepRecord) error {
	o.mu.Lock()
	o.run.AppendRecord(rec)
	o.mu.Unlock()
	if err := o.save(ctx); err != nil {
		return err
	}
	if rec.Status == types.RecordCompleted {
		o.rec.StepCompleted(ctx, rec)
		o.log.Info("step completed", "step", rec.Step, "iteration", rec.Iteration,
			"tokens", rec.Metrics.TotalTokens, "cost_usd", rec.Metrics.CostUSD,
			"duration", rec.Metrics.Duration)
	}
	return nil
}

// save persists the full current snapshot. Saves for one run are
// serialized by the mutex; a failed save is a hard error because
// advancing past an unsaved record would break resumption.
func (o *Orchestrator) save(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	// Aborts triggered by cancellation still checkpoint.
	return o.store.Save(context.WithoutCancel(ctx), o.run)
}

func (o *Orchestrator) transition(fn func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := fn(); err != nil {
		return derrors.Wrap(derrors.CodeRunInvalidTransition, "run state machine violation", err).
			WithDetail("run_id", o.run.ID)
	}
	return nil
}

func (o *Orchestrator) finishCompleted(ctx context.Context) error {
	if err := o.transition(o.run.Complete); err != nil {
		return err
	}
	if err := o.save(ctx); err != nil {
		return err
	}
	totals := o.run.TotalMetrics()
	o.rec.RunFinished(ctx, o.run.Status, totals, "")
	o.log.Info("run completed", "records", len(o.run.Records),
		"tokens", totals.TotalTokens, "cost_usd", totals.CostUSD)
	return nil
}

func (o *Orchestrator) finishAborted(ctx context.Context, reason string) error {
	if err := o.transition(o.run.Abort); err != nil {
		return err
	}
	if reason != "" {
		o.run.Error = reason
	}
	if err := o.save(ctx); err != nil {
		return err
	}
	o.rec.RunFinished(ctx, o.run.Status, o.run.TotalMetrics(), reason)
	o.log.Info("run aborted", "reason", reason, "records", len(o.run.Records))
	return nil
}
