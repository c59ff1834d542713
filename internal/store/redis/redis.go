// Package redis keeps presence bookkeeping in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// lastSeenTTL keeps stale entries from piling up for abandoned accounts.
const lastSeenTTL = 90 * 24 * time.Hour

// LastSeenStore implements store.LastSeenStore on Redis.
type LastSeenStore struct {
	client *redis.Client
}

// NewLastSeenStore connects to redisURL and verifies the connection.
func NewLastSeenStore(ctx context.Context, redisURL string) (*LastSeenStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &LastSeenStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *LastSeenStore) Close() error {
	return s.client.Close()
}

// lastSeenKey returns the key holding a user's last-seen timestamp.
func lastSeenKey(userID int64) string {
	return fmt.Sprintf("presence:lastseen:%d", userID)
}

// RecordLastSeen stores at as unix milliseconds.
func (s *LastSeenStore) RecordLastSeen(ctx context.Context, userID int64, at time.Time) error {
	return s.client.Set(ctx, lastSeenKey(userID), at.UnixMilli(), lastSeenTTL).Err()
}

// LastSeen returns nil when nothing was recorded for userID.
func (s *LastSeenStore) LastSeen(ctx context.Context, userID int64) (*time.Time, error) {
	raw, err := s.client.Get(ctx, lastSeenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseMillis(raw)
}

func parseMillis(raw string) (*time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse last seen %q: %w", raw, err)
	}
	at := time.UnixMilli(ms).UTC()
	return &at, nil
}
