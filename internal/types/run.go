package types

import (
	"fmt"
	"time"
)

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunPending        RunStatus = "pending"         // Created but not started
	RunRunning        RunStatus = "running"         // Orchestrator is executing steps
	RunAwaitingReview RunStatus = "awaiting_review" // Parked at an approval gate
	RunCompleted      RunStatus = "completed"       // All steps done
	RunAborted        RunStatus = "aborted"         // Stopped by interrupt or gate rejection
	RunFailed         RunStatus = "failed"          // A step failed
)

// Valid returns true if this is a recognized run status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunPending, RunRunning, RunAwaitingReview, RunCompleted, RunAborted, RunFailed:
		return true
	}
	return false
}

// IsTerminal returns true if this status is final.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunAborted || s == RunFailed
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s RunStatus) CanTransitionTo(target RunStatus) bool {
	switch s {
	case RunPending:
		return target == RunRunning || target == RunAborted
	case RunRunning:
		return target == RunAwaitingReview || target == RunCompleted ||
			target == RunAborted || target == RunFailed
	case RunAwaitingReview:
		return target == RunRunning || target == RunAborted || target == RunFailed
	case RunCompleted, RunAborted, RunFailed:
		return false
	}
	return false
}

// RunMode controls approval gate behavior.
type RunMode string

const (
	ModeAuto        RunMode = "auto"        // Gates pass without stopping
	ModeInteractive RunMode = "interactive" // Gates park the run for review
)

// Valid returns true if this is a recognized mode.
func (m RunMode) Valid() bool {
	return m == ModeAuto || m == ModeInteractive
}

// Run is a workflow execution. Status, current step, and loop iteration
// are all derivable from Records; nothing else is authoritative state.
type Run struct {
	// Identity
	ID       string `yaml:"id" json:"id"`
	Workflow string `yaml:"workflow" json:"workflow"`
	Topic    string `yaml:"topic" json:"topic"`

	// Configuration captured at creation
	Mode    RunMode           `yaml:"mode" json:"mode"`
	Profile string            `yaml:"profile,omitempty" json:"profile,omitempty"`
	Seed    map[string]string `yaml:"seed,omitempty" json:"seed,omitempty"`

	// Lifecycle
	Status     RunStatus  `yaml:"status" json:"status"`
	StartedAt  time.Time  `yaml:"started_at" json:"started_at"`
	FinishedAt *time.Time `yaml:"finished_at,omitempty" json:"finished_at,omitempty"`
	Error      string     `yaml:"error,omitempty" json:"error,omitempty"`

	// History - append-only, never mutated
	Records []StepRecord `yaml:"records" json:"records"`
}

// NewRun creates a run in the pending state.
func NewRun(id, workflow, topic string, mode RunMode, seed map[string]string) *Run {
	return &Run{
		ID:        id,
		Workflow:  workflow,
		Topic:     topic,
		Mode:      mode,
		Seed:      seed,
		Status:    RunPending,
		StartedAt: time.Now(),
	}
}

// transition moves the run to target, enforcing the state machine.
func (r *Run) transition(target RunStatus) error {
	if !r.Status.CanTransitionTo(target) {
		return fmt.Errorf("invalid run transition: %s -> %s", r.Status, target)
	}
	r.Status = target
	return nil
}

// Start marks the run as running.
func (r *Run) Start() error {
	return r.transition(RunRunning)
}

// Park moves the run to awaiting_review at an approval gate.
func (r *Run) Park() error {
	return r.transition(RunAwaitingReview)
}

// Unpark returns a parked run to running after a gate decision.
func (r *Run) Unpark() error {
	if r.Status != RunAwaitingReview {
		return fmt.Errorf("cannot unpark run in status %s", r.Status)
	}
	return r.transition(RunRunning)
}

// Complete marks the run as completed.
func (r *Run) Complete() error {
	if err := r.transition(RunCompleted); err != nil {
		return err
	}
	now := time.Now()
	r.FinishedAt = &now
	return nil
}

// Abort marks the run as aborted.
func (r *Run) Abort() error {
	if err := r.transition(RunAborted); err != nil {
		return err
	}
	now := time.Now()
	r.FinishedAt = &now
	return nil
}

// Fail marks the run as failed with the given reason.
func (r *Run) Fail(reason string) error {
	if err := r.transition(RunFailed); err != nil {
		return err
	}
	now := time.Now()
	r.FinishedAt = &now
	r.Error = reason
	return nil
}

// Revive returns an aborted or failed run to running so it can resume
// from its checkpoint. Completed runs stay finished.
func (r *Run) Revive() error {
	if r.Status != RunAborted && r.Status != RunFailed {
		return fmt.Errorf("cannot revive run in status %s", r.Status)
	}
	r.Status = RunRunning
	r.FinishedAt = nil
	r.Error = ""
	return nil
}

// AppendRecord appends a history entry. Records are append-only; there is
// deliberately no way to replace or remove one.
func (r *Run) AppendRecord(rec StepRecord) {
	r.Records = append(r.Records, rec)
}

// CompletedRecordsFor returns the completed records for a step, in order.
func (r *Run) CompletedRecordsFor(step string) []StepRecord {
	var recs []StepRecord
	for _, rec := range r.Records {
		if rec.Step == step && rec.Status == RecordCompleted {
			recs = append(recs, rec)
		}
	}
	return recs
}

// LastRecord returns the most recent record, or nil if none.
func (r *Run) LastRecord() *StepRecord {
	if len(r.Records) == 0 {
		return nil
	}
	return &r.Records[len(r.Records)-1]
}

// LastArtifact returns the artifact of the most recent completed record.
// Before any step has run it returns the seed topic artifact.
func (r *Run) LastArtifact() Artifact {
	for i := len(r.Records) - 1; i >= 0; i-- {
		if r.Records[i].Status == RecordCompleted {
			return r.Records[i].Artifact
		}
	}
	return TopicArtifact(r.Topic, r.Seed)
}

// TotalMetrics sums metrics across all records.
func (r *Run) TotalMetrics() Metrics {
	var total Metrics
	for _, rec := range r.Records {
		total.Add(rec.Metrics)
	}
	return total
}

// Position locates the next execution point in a step sequence.
type Position struct {
	Index     int    // Descriptor index of the next step (unset when Done)
	Step      string // Name of the next step ("" when Done)
	Iteration int    // 1-based pass number for the next execution
	Done      bool   // Every step in the sequence is satisfied
}

// Position derives where execution stands purely from the record history
// and the step sequence. A non-looping step is satisfied by one completed
// record. A looping step is satisfied when its latest pass met the score
// bar, was capped, or exhausted its passes.
func (r *Run) Position(steps []StepDescriptor) Position {
	for i, step := range steps {
		recs := r.CompletedRecordsFor(step.Name)
		if len(recs) == 0 {
			return Position{Index: i, Step: step.Name, Iteration: 1}
		}
		if step.Loop == nil {
			continue
		}
		last := recs[len(recs)-1]
		if last.LoopCapped || last.Edited || step.Loop.Satisfied(last.Metrics) || len(recs) >= step.Loop.MaxPasses {
			continue
		}
		return Position{Index: i, Step: step.Name, Iteration: len(recs) + 1}
	}
	return Position{Done: true}
}
