package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/enginebridge/core"
)

// InMemoryStore is a volatile RunStore storing run records in a process
// local map. It is safe for concurrent access. Records are cloned on the way
// in and out to prevent external mutation of internal state.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]core.RunRecord
	seq  map[string]int
	next int
}

var _ core.RunStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory run store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs: make(map[string]core.RunRecord),
		seq:  make(map[string]int),
	}
}

// Save stores a clone of rec, replacing an earlier record with the same ID.
func (s *InMemoryStore) Save(_ context.Context, rec core.RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("enginebridge: run record without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seq[rec.ID]; !ok {
		s.next++
		s.seq[rec.ID] = s.next
	}
	s.runs[rec.ID] = cloneRecord(rec)
	return nil
}

// Get returns the record of a run.
func (s *InMemoryStore) Get(_ context.Context, runID string) (core.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return core.RunRecord{}, fmt.Errorf("run %s: %w", runID, core.ErrRunNotFound)
	}
	return cloneRecord(rec), nil
}

// List returns the runs of workflow, newest first. Runs started at the same
// instant are ordered by save order.
func (s *InMemoryStore) List(_ context.Context, workflow string, limit int) ([]core.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.RunRecord, 0)
	for _, rec := range s.runs {
		if rec.Workflow == workflow {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i] = cloneRecord(out[i])
	}
	return out, nil
}

// Len returns the number of stored runs.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

func cloneRecord(rec core.RunRecord) core.RunRecord {
	rec.Steps = append([]core.StepRecord(nil), rec.Steps...)
	return rec
}
