package checkpoint

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	derrors "github.com/draftsmith/draftsmith/internal/errors"
	"github.com/draftsmith/draftsmith/internal/types"
)

// MemoryStore keeps checkpoints in process memory. It backs tests and
// dry runs. Snapshots are stored marshaled, so mutating a run after
// saving it cannot rewrite history.
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[string][]byte
	saves map[string]int
	locks map[string]bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snaps: make(map[string][]byte),
		saves: make(map[string]int),
		locks: make(map[string]bool),
	}
}

// Save snapshots the run.
func (s *MemoryStore) Save(ctx context.Context, run *types.Run) error {
	data, err := json.Marshal(types.Snapshot(run))
	if err != nil {
		return derrors.CheckpointIO(run.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[run.ID] = data
	s.saves[run.ID]++
	return nil
}

// Load rebuilds a run from its snapshot.
func (s *MemoryStore) Load(ctx context.Context, runID string) (*types.Run, error) {
	s.mu.Lock()
	data, ok := s.snaps[runID]
	s.mu.Unlock()
	if !ok {
		return nil, derrors.CheckpointNotFound(runID)
	}

	var snap types.Checkpoint
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, derrors.CheckpointCorrupted(runID, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, derrors.CheckpointCorrupted(runID, err)
	}
	return snap.Run(), nil
}

// Delete removes a snapshot.
func (s *MemoryStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snaps[runID]; !ok {
		return derrors.CheckpointNotFound(runID)
	}
	delete(s.snaps, runID)
	return nil
}

// List returns all readable snapshots, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]*types.Run, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.snaps))
	for id := range s.snaps {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var runs []*types.Run
	for _, id := range ids {
		run, err := s.Load(ctx, id)
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

type memoryLock struct {
	release func()
}

func (l *memoryLock) Release() error {
	l.release()
	return nil
}

// AcquireLock takes the in-process lock for a run.
func (s *MemoryStore) AcquireLock(ctx context.Context, runID string) (Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[runID] {
		return nil, derrors.RunActive(runID)
	}
	s.locks[runID] = true

	var once sync.Once
	return &memoryLock{release: func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.locks, runID)
			s.mu.Unlock()
		})
	}}, nil
}

// IsLocked reports whether the run's lock is held.
func (s *MemoryStore) IsLocked(ctx context.Context, runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks[runID]
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Put stores raw snapshot bytes verbatim. Tests use it to stage
// malformed checkpoints.
func (s *MemoryStore) Put(runID string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[runID] = raw
}

// Saves reports how many times a run has been checkpointed.
func (s *MemoryStore) Saves(runID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[runID]
}

var _ Store = (*MemoryStore)(nil)
