package types

import (
	"fmt"
	"time"
)

// CheckpointVersion is the current checkpoint format version.
const CheckpointVersion = 1

// Checkpoint is a full snapshot of a run, written after every step record.
// Save always replaces the whole snapshot; there are no partial updates.
type Checkpoint struct {
	Version  int               `yaml:"version" json:"version"`
	RunID    string            `yaml:"run_id" json:"run_id"`
	Workflow string            `yaml:"workflow" json:"workflow"`
	Topic    string            `yaml:"topic" json:"topic"`
	Mode     RunMode           `yaml:"mode" json:"mode"`
	Profile  string            `yaml:"profile,omitempty" json:"profile,omitempty"`
	Seed     map[string]string `yaml:"seed,omitempty" json:"seed,omitempty"`

	Status     RunStatus  `yaml:"status" json:"status"`
	Error      string     `yaml:"error,omitempty" json:"error,omitempty"`
	StartedAt  time.Time  `yaml:"started_at" json:"started_at"`
	FinishedAt *time.Time `yaml:"finished_at,omitempty" json:"finished_at,omitempty"`

	Records []StepRecord `yaml:"records" json:"records"`

	SavedAt time.Time `yaml:"saved_at" json:"saved_at"`
}

// Snapshot captures the run's current state as a checkpoint. The record
// slice is copied so later appends to the run do not leak into a snapshot
// already handed to a store.
func Snapshot(run *Run) *Checkpoint {
	records := make([]StepRecord, len(run.Records))
	copy(records, run.Records)
	return &Checkpoint{
		Version:    CheckpointVersion,
		RunID:      run.ID,
		Workflow:   run.Workflow,
		Topic:      run.Topic,
		Mode:       run.Mode,
		Profile:    run.Profile,
		Seed:       run.Seed,
		Status:     run.Status,
		Error:      run.Error,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Records:    records,
		SavedAt:    time.Now(),
	}
}

// Run reconstructs the run from the snapshot. Derived state (current step,
// loop iteration) is not stored; callers recompute it via Run.Position.
func (c *Checkpoint) Run() *Run {
	records := make([]StepRecord, len(c.Records))
	copy(records, c.Records)
	return &Run{
		ID:         c.RunID,
		Workflow:   c.Workflow,
		Topic:      c.Topic,
		Mode:       c.Mode,
		Profile:    c.Profile,
		Seed:       c.Seed,
		Status:     c.Status,
		Error:      c.Error,
		StartedAt:  c.StartedAt,
		FinishedAt: c.FinishedAt,
		Records:    records,
	}
}

// Validate checks the snapshot for corruption beyond decode failures.
// A checkpoint that fails here must surface as corrupted, never be
// repaired or default-initialized.
func (c *Checkpoint) Validate() error {
	if c.Version < 1 || c.Version > CheckpointVersion {
		return fmt.Errorf("unsupported checkpoint version %d", c.Version)
	}
	if c.RunID == "" {
		return fmt.Errorf("checkpoint missing run id")
	}
	if c.Workflow == "" {
		return fmt.Errorf("checkpoint %s missing workflow name", c.RunID)
	}
	if !c.Status.Valid() {
		return fmt.Errorf("checkpoint %s has unknown status %q", c.RunID, c.Status)
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("checkpoint %s has unknown mode %q", c.RunID, c.Mode)
	}
	iterations := make(map[string]int)
	for i := range c.Records {
		rec := &c.Records[i]
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("checkpoint %s record %d: %w", c.RunID, i, err)
		}
		if rec.Status != RecordCompleted {
			continue
		}
		if rec.Iteration != iterations[rec.Step]+1 {
			return fmt.Errorf("checkpoint %s record %d: step %s iteration %d out of order",
				c.RunID, i, rec.Step, rec.Iteration)
		}
		iterations[rec.Step] = rec.Iteration
	}
	return nil
}
