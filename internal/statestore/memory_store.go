// Package statestore persists the latest TaskState snapshot per task id.
// Writes are whole-snapshot replacements; readers always observe either the
// previous or the new snapshot, never a mix. Keys carry the fixed
// "agent:task:" namespace prefix shared by every store implementation.
package statestore

import (
	"context"
	"sync"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/domain"
)

// KeyPrefix is the namespace under which task snapshots are stored.
const KeyPrefix = "agent:task:"

// Key returns the storage key for a task id.
func Key(taskID string) string {
	return KeyPrefix + taskID
}

// MemoryStore is an in-process domain.StateStore. Snapshots are deep-copied
// on both write and read so the single writer and concurrent readers never
// share mutable state.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*domain.TaskState
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*domain.TaskState)}
}

var _ domain.StateStore = (*MemoryStore)(nil)

// Save replaces the stored snapshot for state.TaskID.
func (s *MemoryStore) Save(_ context.Context, state *domain.TaskState) error {
	snapshot := state.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[Key(state.TaskID)] = snapshot
	return nil
}

// Get returns the latest snapshot or domain.ErrTaskNotFound.
func (s *MemoryStore) Get(_ context.Context, taskID string) (*domain.TaskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.tasks[Key(taskID)]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return state.Clone(), nil
}
