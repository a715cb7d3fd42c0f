package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/enginebridge/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id, wf string, started time.Time) core.RunRecord {
	return core.RunRecord{
		ID:         id,
		Workflow:   wf,
		Mode:       "async",
		Success:    false,
		Error:      "enginebridge: run cancelled",
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Steps: []core.StepRecord{
			{Index: 0, Name: "login", EngineType: core.EngineBrowser, Status: core.StatusSuccess, Attempts: 1,
				StartTime: started, EndTime: started.Add(time.Second)},
			{Index: 1, Name: "order", EngineType: core.EngineWeb, Status: core.StatusFailed, Attempts: 3,
				ErrorMessage: "boom", Metadata: map[string]any{"page": "cart"}},
		},
	}
}

func TestStore_SaveGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 5, 4, 10, 0, 0, 123, time.UTC)
	rec := record("run-1", "checkout", started)

	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Workflow, got.Workflow)
	assert.Equal(t, rec.Mode, got.Mode)
	assert.False(t, got.Success)
	assert.Equal(t, rec.Error, got.Error)
	assert.True(t, rec.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, got.Duration())
	require.Len(t, got.Steps, 2)
	assert.Equal(t, core.StatusFailed, got.Steps[1].Status)
	assert.Equal(t, 3, got.Steps[1].Attempts)
	assert.Equal(t, "cart", got.Steps[1].Metadata["page"])
	assert.True(t, got.Steps[0].StartTime.Equal(started))
}

func TestStore_GetMissing(t *testing.T) {
	_, err := newTestStore(t).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrRunNotFound)
}

func TestStore_SaveReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := record("run-1", "checkout", time.Now())
	require.NoError(t, s.Save(ctx, rec))

	rec.Success = true
	rec.Error = ""
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Empty(t, got.Error)

	all, err := s.List(ctx, "checkout", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
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

	limited, err := s.List(ctx, "checkout", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "d", limited[0].ID)
}

func TestStore_Persistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, record("run-1", "checkout", time.Now())))
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Get(ctx, "run-1")
	assert.NoError(t, err)
}
