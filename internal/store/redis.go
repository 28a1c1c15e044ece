package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lastSeenTTL = 30 * 24 * time.Hour

// RedisStore handles Redis operations for ephemeral shared state.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for the rate limiter.
// A nil store yields a nil client.
func (s *RedisStore) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// lastSeenKey returns the key holding an identity's last disconnect time.
func lastSeenKey(identity string) string {
	return fmt.Sprintf("presence:%s:last_seen", identity)
}

// SetLastSeen records when identity was last connected.
func (s *RedisStore) SetLastSeen(ctx context.Context, identity string, t time.Time) error {
	return s.client.Set(ctx, lastSeenKey(identity), t.UnixMilli(), lastSeenTTL).Err()
}

// GetLastSeen returns the last recorded disconnect time, or nil if unknown.
func (s *RedisStore) GetLastSeen(ctx context.Context, identity string) (*time.Time, error) {
	ms, err := s.client.Get(ctx, lastSeenKey(identity)).Int64()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}
