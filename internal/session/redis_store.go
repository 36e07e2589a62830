package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces session keys so the store can share a Redis
// database with other components.
const redisKeyPrefix = "session:"

// RedisStore is a Store backed by Redis. Ticket expiry is delegated to
// Redis key TTLs, so expired sessions vanish without a reaper.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing Redis client. The caller owns the
// client's lifecycle.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, t *Ticket) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		return nil // already expired, nothing to persist
	}

	if err := s.client.Set(ctx, redisKeyPrefix+t.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, id string) (*Ticket, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	t := &Ticket{}
	if err := json.Unmarshal(payload, t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if t.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return t, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
