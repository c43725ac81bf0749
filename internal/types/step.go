package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LoopSpec configures a step that repeats until its output scores well
// enough. MaxPasses bounds the repeats; hitting the cap advances the run
// rather than failing it.
type LoopSpec struct {
	MinScore  float64 `yaml:"min_score" toml:"min_score" json:"min_score"`
	MaxPasses int     `yaml:"max_passes" toml:"max_passes" json:"max_passes"`
}

// Satisfied returns true if the metrics carry a score meeting the bar.
// A missing score never satisfies the predicate.
func (l *LoopSpec) Satisfied(m Metrics) bool {
	score, ok := m.ScoreValue()
	return ok && score >= l.MinScore
}

// StepDescriptor is one entry in a workflow's ordered step list.
type StepDescriptor struct {
	Name       string         `yaml:"name" toml:"name" json:"name"`
	Capability string         `yaml:"capability" toml:"capability" json:"capability"`
	MaxRounds  int            `yaml:"max_rounds,omitempty" toml:"max_rounds" json:"max_rounds,omitempty"`
	Approval   bool           `yaml:"approval,omitempty" toml:"approval" json:"approval,omitempty"`
	Loop       *LoopSpec      `yaml:"loop,omitempty" toml:"loop" json:"loop,omitempty"`
	Params     map[string]any `yaml:"params,omitempty" toml:"params" json:"params,omitempty"`
}

// Validate checks a single descriptor for internal consistency.
func (d *StepDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("step name is required")
	}
	if d.Capability == "" {
		return fmt.Errorf("step %s: capability is required", d.Name)
	}
	if d.MaxRounds < 0 {
		return fmt.Errorf("step %s: max_rounds must not be negative", d.Name)
	}
	if d.Loop != nil {
		if d.Loop.MaxPasses < 1 {
			return fmt.Errorf("step %s: loop.max_passes must be at least 1", d.Name)
		}
		if d.Loop.MinScore <= 0 {
			return fmt.Errorf("step %s: loop.min_score must be positive", d.Name)
		}
	}
	return nil
}

// RecordStatus is the terminal outcome of one step execution.
type RecordStatus string

const (
	RecordCompleted RecordStatus = "completed"
	RecordFailed    RecordStatus = "failed"
)

// Valid returns true if this is a recognized record status.
func (s RecordStatus) Valid() bool {
	return s == RecordCompleted || s == RecordFailed
}

// StepRecord is one append-only history entry: step execution happened,
// here is what it produced and what it cost. Records are never mutated
// after being appended; run state is always derivable from them.
type StepRecord struct {
	ID        string       `yaml:"id" json:"id"`
	Step      string       `yaml:"step" json:"step"`
	Iteration int          `yaml:"iteration" json:"iteration"` // 1-based loop pass
	Status    RecordStatus `yaml:"status" json:"status"`
	Artifact  Artifact     `yaml:"artifact" json:"artifact"`
	Metrics   Metrics      `yaml:"metrics" json:"metrics"`

	// LoopCapped marks the pass that hit the loop cap without meeting the
	// score bar. Advisory only; the run advances normally.
	LoopCapped bool `yaml:"loop_capped,omitempty" json:"loop_capped,omitempty"`

	// Edited marks an artifact replaced by a human at an approval gate.
	Edited bool `yaml:"edited,omitempty" json:"edited,omitempty"`

	Error string `yaml:"error,omitempty" json:"error,omitempty"`

	StartedAt  time.Time `yaml:"started_at" json:"started_at"`
	FinishedAt time.Time `yaml:"finished_at" json:"finished_at"`
}

// NewStepRecord creates a completed record for a step execution.
func NewStepRecord(step string, iteration int, artifact Artifact, metrics Metrics, startedAt time.Time) StepRecord {
	return StepRecord{
		ID:         uuid.NewString(),
		Step:       step,
		Iteration:  iteration,
		Status:     RecordCompleted,
		Artifact:   artifact,
		Metrics:    metrics,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
}

// NewFailedRecord creates a failed record carrying the error message.
func NewFailedRecord(step string, iteration int, err error, startedAt time.Time) StepRecord {
	rec := StepRecord{
		ID:         uuid.NewString(),
		Step:       step,
		Iteration:  iteration,
		Status:     RecordFailed,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

// Validate checks a record for structural soundness. Used by checkpoint
// corruption detection, so it stays strict.
func (r *StepRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record missing id")
	}
	if r.Step == "" {
		return fmt.Errorf("record %s missing step name", r.ID)
	}
	if r.Iteration < 1 {
		return fmt.Errorf("record %s has iteration %d, want >= 1", r.ID, r.Iteration)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("record %s has unknown status %q", r.ID, r.Status)
	}
	return nil
}
