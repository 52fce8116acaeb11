// Package cache keeps small shared state in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/cardpulse/internal/refresh"
)

// DefaultStatusKey is the Redis key holding the refresh status.
const DefaultStatusKey = "cardpulse:refresh:status"

// DefaultStatusTTL expires a status nobody has refreshed for a week.
const DefaultStatusTTL = 7 * 24 * time.Hour

// RunStatusStore implements refresh.StatusStore on a Redis string key so the
// API and the refresher process share one view of the last run.
type RunStatusStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

var _ refresh.StatusStore = (*RunStatusStore)(nil)

// NewRunStatusStore creates a RunStatusStore. Empty key and non-positive ttl
// take the defaults.
func NewRunStatusStore(client redis.UniversalClient, key string, ttl time.Duration) *RunStatusStore {
	if key == "" {
		key = DefaultStatusKey
	}
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &RunStatusStore{client: client, key: key, ttl: ttl}
}

// SaveStatus implements refresh.StatusStore.
func (s *RunStatusStore) SaveStatus(ctx context.Context, st refresh.Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode refresh status: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save refresh status: %w", err)
	}
	return nil
}

// LoadStatus implements refresh.StatusStore.
func (s *RunStatusStore) LoadStatus(ctx context.Context) (*refresh.Status, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh status: %w", err)
	}

	var st refresh.Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode refresh status: %w", err)
	}
	return &st, nil
}

// NewClient parses a redis:// URL and returns a client.
func NewClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
