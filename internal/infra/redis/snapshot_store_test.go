package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"mockexam-service/internal/domain"
)

func newTestStore(t *testing.T, ttl time.Duration) (*SnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSnapshotStore(client, ttl), mr
}

func sessionState(id string) domain.SessionState {
	return domain.SessionState{
		SessionID: id,
		UserID:    "u1",
		TestName:  "Mock-1",
		Section:   domain.SectionVARC,
		Answers: map[string]domain.AnswerRecord{
			"VARC_1": {Value: "B", TimeSpent: 45, SubmittedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		},
		Bookmarks:     []string{"VARC_2"},
		Flags:         map[string]string{"VARC_1": domain.FlagGreen},
		StartedAt:     time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		TimeRemaining: 6600,
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := store.Save(ctx, sessionState("s1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, sessionState("s2")); err != nil {
		t.Fatal(err)
	}

	states, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 2 {
		t.Fatalf("loaded = %d, want 2", len(states))
	}
	byID := make(map[string]domain.SessionState, len(states))
	for _, st := range states {
		byID[st.SessionID] = st
	}
	got := byID["s1"]
	if got.Answers["VARC_1"].Value != "B" || got.TimeRemaining != 6600 {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if len(got.Bookmarks) != 1 || got.Flags["VARC_1"] != domain.FlagGreen {
		t.Fatalf("round trip lost marks: %+v", got)
	}
}

func TestSnapshotDelete(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := store.Save(ctx, sessionState("s1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	states, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 0 {
		t.Fatalf("loaded = %d, want 0 after delete", len(states))
	}
}

func TestActiveSnapshotExpires(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, sessionState("s1")); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)

	states, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 0 {
		t.Fatalf("loaded = %d, want active snapshot expired", len(states))
	}
}

func TestPausedSnapshotNeverExpires(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	paused := sessionState("s1")
	paused.Paused = true
	paused.PausedAt = time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	if err := store.Save(ctx, paused); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(48 * time.Hour)

	states, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 1 || !states[0].Paused {
		t.Fatalf("loaded = %+v, want the paused snapshot preserved", states)
	}
}

func TestLoadAllEmpty(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	states, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 0 {
		t.Fatalf("loaded = %d, want none", len(states))
	}
}
