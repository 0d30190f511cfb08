package memory

import (
	"context"
	"sync"

	"mockexam-service/internal/domain"
)

// Archive is an in-memory, append-only store of archived attempts. Entries
// are never overwritten; retakes and repeated saves of the same session
// each add a new snapshot.
type Archive struct {
	mu     sync.RWMutex
	byUser map[string][]domain.ArchivedAttempt
}

func NewArchive() *Archive {
	return &Archive{byUser: make(map[string][]domain.ArchivedAttempt)}
}

func (a *Archive) Save(_ context.Context, attempt domain.ArchivedAttempt) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byUser[attempt.UserID] = append(a.byUser[attempt.UserID], attempt)
	return attempt.ID, nil
}

func (a *Archive) ListForUser(_ context.Context, userID string) ([]domain.ArchivedAttempt, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	attempts, ok := a.byUser[userID]
	if !ok || len(attempts) == 0 {
		return nil, domain.ErrNoArchiveForUser
	}
	out := make([]domain.ArchivedAttempt, len(attempts))
	copy(out, attempts)
	return out, nil
}

// LatestByTest keeps the newest snapshot per test name. Insertion order is
// the tie-break when two snapshots share a timestamp, so the result is
// deterministic.
func (a *Archive) LatestByTest(_ context.Context, userID string) (map[string]domain.ArchivedAttempt, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	attempts, ok := a.byUser[userID]
	if !ok || len(attempts) == 0 {
		return nil, domain.ErrNoArchiveForUser
	}

	latest := make(map[string]domain.ArchivedAttempt)
	for _, attempt := range attempts {
		current, seen := latest[attempt.TestName]
		if !seen || !attempt.CreatedAt.Before(current.CreatedAt) {
			latest[attempt.TestName] = attempt
		}
	}
	return latest, nil
}
