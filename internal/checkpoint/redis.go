package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/draftsmith/draftsmith/internal/config"
	derrors "github.com/draftsmith/draftsmith/internal/errors"
	"github.com/draftsmith/draftsmith/internal/types"
)

// lockTTL bounds how long a crashed process can hold a redis run lock.
// Release clears it early; expiry is only the crash fallback.
const lockTTL = 15 * time.Minute

// RedisStore keeps checkpoints in redis, for setups where runs resume
// from a different host than the one that started them.
type RedisStore struct {
	client *backend.Client
	prefix string
}

// NewRedisStore connects using the given settings.
func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	client := backend.NewClient(&backend.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password(),
		DB:       cfg.DB,
	})
	return NewRedisStoreFromClient(client, cfg.KeyPrefix)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *backend.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "draftsmith"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(runID string) string {
	return s.prefix + ":run:" + runID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":runs"
}

func (s *RedisStore) lockKey(runID string) string {
	return s.prefix + ":lock:" + runID
}

// Save replaces the run's snapshot and refreshes the run index in one
// pipeline. Redis SET is atomic, so readers never see a partial snapshot.
func (s *RedisStore) Save(ctx context.Context, run *types.Run) error {
	snap := types.Snapshot(run)
	data, err := json.Marshal(snap)
	if err != nil {
		return derrors.CheckpointIO(run.ID, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(run.ID), data, 0)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(run.StartedAt.Unix()),
		Member: run.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return derrors.CheckpointIO(run.ID, err)
	}
	return nil
}

// Load fetches and validates a run's snapshot.
func (s *RedisStore) Load(ctx context.Context, runID string) (*types.Run, error) {
	data, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, derrors.CheckpointNotFound(runID)
		}
		return nil, derrors.CheckpointIO(runID, err)
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

// Delete removes a run's snapshot and index entry.
func (s *RedisStore) Delete(ctx context.Context, runID string) error {
	n, err := s.client.Del(ctx, s.key(runID)).Result()
	if err != nil {
		return derrors.CheckpointIO(runID, err)
	}
	if n == 0 {
		return derrors.CheckpointNotFound(runID)
	}
	_ = s.client.ZRem(ctx, s.indexKey(), runID).Err()
	return nil
}

// List returns readable checkpoints, newest first by start time.
func (s *RedisStore) List(ctx context.Context) ([]*types.Run, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, derrors.CheckpointIO("", err)
	}

	runs := make([]*types.Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.Load(ctx, id)
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// redisLock holds a SET NX token lock for one run.
type redisLock struct {
	client *backend.Client
	key    string
	token  string
}

// releaseScript deletes the lock only if the token still matches, so an
// expired-and-reacquired lock is never released by the old holder.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

func (l *redisLock) Release() error {
	return l.client.Eval(context.Background(), releaseScript, []string{l.key}, l.token).Err()
}

// AcquireLock takes the run lock with a single SET NX attempt. A held
// lock is an immediate RUN_002, not a wait.
func (s *RedisStore) AcquireLock(ctx context.Context, runID string) (Lock, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.lockKey(runID), token, lockTTL).Result()
	if err != nil {
		return nil, derrors.CheckpointIO(runID, err)
	}
	if !ok {
		return nil, derrors.RunActive(runID)
	}
	return &redisLock{client: s.client, key: s.lockKey(runID), token: token}, nil
}

// IsLocked reports whether some process holds the run lock.
func (s *RedisStore) IsLocked(ctx context.Context, runID string) bool {
	n, err := s.client.Exists(ctx, s.lockKey(runID)).Result()
	return err == nil && n > 0
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
