package app

import (
	"context"

	"mockexam-service/internal/domain"
)

// CatalogueRepository serves the immutable test catalogue (from cache or a
// backing store).
type CatalogueRepository interface {
	ListTests(ctx context.Context) ([]domain.TestOverview, error)
	FindTest(ctx context.Context, name string) (domain.Test, error)
	FindQuestion(ctx context.Context, testName, questionID string) (domain.Question, error)
}

// ArchiveRepository owns the durable, append-only record of scored
// attempts. Save never overwrites a prior snapshot.
type ArchiveRepository interface {
	Save(ctx context.Context, attempt domain.ArchivedAttempt) (string, error)
	ListForUser(ctx context.Context, userID string) ([]domain.ArchivedAttempt, error)
	// LatestByTest returns the newest archive per distinct test name,
	// ordered by archive creation timestamp with insertion order as the
	// deterministic tie-break.
	LatestByTest(ctx context.Context, userID string) (map[string]domain.ArchivedAttempt, error)
}

// SnapshotStore is the durability target for the periodic live-session
// flush. A process restart rehydrates the live session map from it.
type SnapshotStore interface {
	Save(ctx context.Context, state domain.SessionState) error
	Delete(ctx context.Context, sessionID string) error
	LoadAll(ctx context.Context) ([]domain.SessionState, error)
}
