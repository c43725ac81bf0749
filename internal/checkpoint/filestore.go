package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	derrors "github.com/draftsmith/draftsmith/internal/errors"
	"github.com/draftsmith/draftsmith/internal/types"
)

// RunLock is an exclusive flock on a specific run. Different runs lock
// independently, so concurrent runs in the same directory never block
// each other.
type RunLock struct {
	runID    string
	lockFile *os.File
	lockPath string
}

// Release unlocks and removes the lock file.
func (l *RunLock) Release() error {
	if l.lockFile == nil {
		return nil
	}
	_ = syscall.Flock(int(l.lockFile.Fd()), syscall.LOCK_UN)
	err := l.lockFile.Close()
	l.lockFile = nil
	// Removal is best effort; a leftover unflocked file is harmless.
	_ = os.Remove(l.lockPath)
	return err
}

// FileStore persists checkpoints as one YAML file per run with
// write-then-rename replacement. Multiple stores over the same directory
// are safe; exclusion is per run via flock.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and sweeps up temp files
// left behind by interrupted writes.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, derrors.CheckpointIO("", err)
	}
	if err := recoverInterruptedWrites(dir); err != nil {
		return nil, derrors.CheckpointIO("", err)
	}
	return &FileStore{dir: dir}, nil
}

// recoverInterruptedWrites handles .tmp files left by a crash mid-save.
// If the main checkpoint exists the orphan is discarded; if the rename
// itself was interrupted the temp holds the only copy and is promoted.
func recoverInterruptedWrites(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".yaml.tmp") {
			continue
		}

		tmpPath := filepath.Join(dir, entry.Name())
		mainPath := strings.TrimSuffix(tmpPath, ".tmp")

		if _, err := os.Stat(mainPath); err == nil {
			_ = os.Remove(tmpPath)
		} else {
			_ = os.Rename(tmpPath, mainPath)
		}
	}
	return nil
}

func (s *FileStore) path(runID string) string {
	return filepath.Join(s.dir, runID+".yaml")
}

// Save writes the run's snapshot to a temp file and renames it over the
// previous checkpoint. Readers see either the old snapshot or the new
// one, never a partial write.
func (s *FileStore) Save(ctx context.Context, run *types.Run) error {
	snap := types.Snapshot(run)
	data, err := yaml.Marshal(snap)
	if err != nil {
		return derrors.CheckpointIO(run.ID, err)
	}

	mainPath := s.path(run.ID)
	tmpPath := mainPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return derrors.CheckpointIO(run.ID, err)
	}
	if err := os.Rename(tmpPath, mainPath); err != nil {
		_ = os.Remove(tmpPath)
		return derrors.CheckpointIO(run.ID, err)
	}
	return nil
}

// Load reads and validates a run's checkpoint. A missing file yields
// CKPT_001; anything unreadable or failing validation yields CKPT_002.
func (s *FileStore) Load(ctx context.Context, runID string) (*types.Run, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, derrors.CheckpointNotFound(runID)
		}
		return nil, derrors.CheckpointIO(runID, err)
	}

	var snap types.Checkpoint
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, derrors.CheckpointCorrupted(runID, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, derrors.CheckpointCorrupted(runID, err)
	}
	return snap.Run(), nil
}

// Delete removes a run's checkpoint.
func (s *FileStore) Delete(ctx context.Context, runID string) error {
	if err := os.Remove(s.path(runID)); err != nil {
		if os.IsNotExist(err) {
			return derrors.CheckpointNotFound(runID)
		}
		return derrors.CheckpointIO(runID, err)
	}
	return nil
}

// List returns every readable checkpoint, newest first. Files that fail
// to parse are skipped here; they still surface as CKPT_002 when loaded
// directly.
func (s *FileStore) List(ctx context.Context) ([]*types.Run, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, derrors.CheckpointIO("", err)
	}

	var runs []*types.Run
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") {
			continue
		}
		run, err := s.Load(ctx, strings.TrimSuffix(name, ".yaml"))
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// AcquireLock takes the exclusive flock for a run. It fails immediately
// with RUN_002 when another process holds the lock.
func (s *FileStore) AcquireLock(ctx context.Context, runID string) (Lock, error) {
	lockPath := s.path(runID) + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, derrors.CheckpointIO(runID, err)
	}

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = lockFile.Close()
		return nil, derrors.RunActive(runID).WithCause(err)
	}

	return &RunLock{runID: runID, lockFile: lockFile, lockPath: lockPath}, nil
}

// IsLocked reports whether another process currently holds the run's lock.
func (s *FileStore) IsLocked(ctx context.Context, runID string) bool {
	lockPath := s.path(runID) + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_RDWR, 0o644)
	if err != nil {
		return false
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return true
	}
	_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
	return false
}

// Close is a no-op; locks are released via RunLock.Release.
func (s *FileStore) Close() error {
	return nil
}

var _ Store = (*FileStore)(nil)
