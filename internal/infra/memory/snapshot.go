package memory

import (
	"context"
	"sync"

	"mockexam-service/internal/domain"
)

// SnapshotStore keeps live-session snapshots in process memory. It is the
// fallback flush target when Redis is not configured; durability across
// restarts then depends on the archive alone.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.SessionState
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[string]domain.SessionState)}
}

func (s *SnapshotStore) Save(_ context.Context, state domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[state.SessionID] = state
	return nil
}

func (s *SnapshotStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, sessionID)
	return nil
}

func (s *SnapshotStore) LoadAll(_ context.Context) ([]domain.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SessionState, 0, len(s.snapshots))
	for _, st := range s.snapshots {
		out = append(out, st)
	}
	return out, nil
}
