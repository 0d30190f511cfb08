package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mockexam-service/internal/domain"
)

const keyPrefix = "exam:session:"

// SnapshotStore persists live-session snapshots in Redis, one JSON value
// per session id. It is the durability target of the periodic flush; on
// restart the session map is rehydrated from whatever the last flush wrote.
//
// A TTL keeps abandoned active sessions from living forever; paused
// snapshots are written without expiry so a paused test survives until the
// user comes back.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

func (s *SnapshotStore) Save(ctx context.Context, state domain.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}
	ttl := s.ttl
	if state.Paused {
		ttl = 0
	}
	if err := s.client.Set(ctx, keyPrefix+state.SessionID, data, ttl).Err(); err != nil {
		return fmt.Errorf("write session snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete session snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) LoadAll(ctx context.Context) ([]domain.SessionState, error) {
	var (
		states []domain.SessionState
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan session snapshots: %w", err)
		}
		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err == redis.Nil {
				continue // expired between scan and read
			}
			if err != nil {
				return nil, fmt.Errorf("read session snapshot %s: %w", key, err)
			}
			var state domain.SessionState
			if err := json.Unmarshal(data, &state); err != nil {
				return nil, fmt.Errorf("decode session snapshot %s: %w", key, err)
			}
			states = append(states, state)
		}
		cursor = next
		if cursor == 0 {
			return states, nil
		}
	}
}
