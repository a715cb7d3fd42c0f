package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/enginebridge/core"
)

func record(id, wf string, started time.Time) core.RunRecord {
	return core.RunRecord{
		ID:         id,
		Workflow:   wf,
		Mode:       "sync",
		Success:    true,
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Steps: []core.StepRecord{
			{Index: 0, Name: "login", EngineType: core.EngineBrowser, Status: core.StatusSuccess, Attempts: 1},
		},
	}
}

func TestInMemoryStore_SaveGet(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	rec := record("run-1", "checkout", time.Now())

	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	got.Steps[0].Name = "mutated"
	again, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "login", again.Steps[0].Name)
}

func TestInMemoryStore_GetMissing(t *testing.T) {
	_, err := NewInMemoryStore().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrRunNotFound)
}

func TestInMemoryStore_SaveRequiresID(t *testing.T) {
	err := NewInMemoryStore().Save(context.Background(), core.RunRecord{})
	assert.Error(t, err)
}

func TestInMemoryStore_ListNewestFirst(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, record("a", "checkout", base)))
	require.NoError(t, s.Save(ctx, record("b", "checkout", base.Add(time.Minute))))
	require.NoError(t, s.Save(ctx, record("c", "other", base.Add(2*time.Minute))))
	require.NoError(t, s.Save(ctx, record("d", "checkout", base.Add(time.Minute))))

	all, err := s.List(ctx, "checkout", 0)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, r := range all {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"d", "b", "a"}, ids)

	limited, err := s.List(ctx, "checkout", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := s.List(ctx, "unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, 4, s.Len())
}

func TestInMemoryStore_SaveReplaces(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	rec := record("run-1", "checkout", time.Now())
	require.NoError(t, s.Save(ctx, rec))

	rec.Success = false
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.Equal(t, 1, s.Len())
}
