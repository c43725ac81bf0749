// Package checkpoint persists run snapshots so interrupted runs can be
// resumed. Every save is a full atomic replace of the previous snapshot;
// a half-written checkpoint must never be loadable.
package checkpoint

import (
	"context"

	"github.com/draftsmith/draftsmith/internal/config"
	derrors "github.com/draftsmith/draftsmith/internal/errors"
	"github.com/draftsmith/draftsmith/internal/types"
)

// Lock is an exclusive hold on one run, preventing two orchestrators from
// advancing the same run concurrently.
type Lock interface {
	Release() error
}

// Store persists and retrieves run checkpoints.
//
// Load distinguishes a missing checkpoint (CKPT_001) from an unreadable
// one (CKPT_002); callers decide which conditions are recoverable. A store
// never substitutes a fresh run for a snapshot it cannot read.
type Store interface {
	// Save atomically replaces the checkpoint for run.ID.
	Save(ctx context.Context, run *types.Run) error

	// Load returns the run rebuilt from its checkpoint.
	Load(ctx context.Context, runID string) (*types.Run, error)

	// Delete removes a run's checkpoint.
	Delete(ctx context.Context, runID string) error

	// List returns all readable checkpoints, newest first.
	List(ctx context.Context) ([]*types.Run, error)

	// AcquireLock takes the exclusive lock for a run.
	// Returns a RUN_002 error when another process holds it.
	AcquireLock(ctx context.Context, runID string) (Lock, error)

	// IsLocked reports whether another process holds the run's lock.
	IsLocked(ctx context.Context, runID string) bool

	// Close releases store resources. It does not release held locks.
	Close() error
}

// New builds the checkpoint store selected by the configuration.
func New(cfg config.CheckpointConfig, runsDir string) (Store, error) {
	switch cfg.Backend {
	case config.CheckpointFile, "":
		return NewFileStore(runsDir)
	case config.CheckpointRedis:
		return NewRedisStore(cfg.Redis), nil
	default:
		return nil, derrors.ConfigInvalidValue("checkpoint.backend", string(cfg.Backend), "unknown backend")
	}
}
