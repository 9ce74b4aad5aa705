package runlog

import (
	"context"
	"sync"
)

// MemoryStore keeps runs in memory. Used when no database is
// configured and in tests.
type MemoryStore struct {
	mu   sync.Mutex
	runs []Run
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// RecordRun appends the run.
func (s *MemoryStore) RecordRun(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// Runs returns a snapshot of recorded runs.
func (s *MemoryStore) Runs() []Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Run, len(s.runs))
	copy(out, s.runs)
	return out
}

// Close is a no-op.
func (s *MemoryStore) Close() {}
