package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftsmith/draftsmith/internal/checkpoint"
	"github.com/draftsmith/draftsmith/internal/types"
)

func TestNewRunID(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	assert.Equal(t, "profiling-go-services-20260314-093000",
		NewRunID("Profiling Go Services", at))
	assert.Equal(t, "what-s-new-in-go-1-24-20260314-093000",
		NewRunID("What's new in Go 1.24?", at))
	assert.Equal(t, "run-20260314-093000", NewRunID("!!!", at))

	long := NewRunID("an exceedingly long topic title that keeps going and going and going", at)
	assert.LessOrEqual(t, len(long), maxSlugLen+len("-20260314-093000"))
}

func TestUniqueRunIDProbesCollisions(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	id, err := UniqueRunID(ctx, store, "topic", at)
	require.NoError(t, err)
	assert.Equal(t, "topic-20260314-093000", id)

	require.NoError(t, store.Save(ctx, types.NewRun(id, "article", "topic", types.ModeAuto, nil)))
	second, err := UniqueRunID(ctx, store, "topic", at)
	require.NoError(t, err)
	assert.Equal(t, "topic-20260314-093000-2", second)

	// A corrupted checkpoint still occupies its ID.
	store.Put(second, []byte("not json"))
	third, err := UniqueRunID(ctx, store, "topic", at)
	require.NoError(t, err)
	assert.Equal(t, "topic-20260314-093000-3", third)
}
