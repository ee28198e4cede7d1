package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lastActivePrefix = "lovewise:last_active:"

// RedisActivity keeps last-active timestamps in Redis so frequent presence refreshes
// do not write to the primary database.
type RedisActivity struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisActivity connects to the Redis instance at uri and verifies connectivity.
func NewRedisActivity(ctx context.Context, uri string) (*RedisActivity, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisActivityFromClient(client, 0), nil
}

// NewRedisActivityFromClient wraps an existing client. A ttl of zero keeps
// timestamps forever.
func NewRedisActivityFromClient(client *redis.Client, ttl time.Duration) *RedisActivity {
	return &RedisActivity{client: client, ttl: ttl}
}

// Close closes the Redis client.
func (r *RedisActivity) Close() error {
	return r.client.Close()
}

// Touch stores at as userID's last activity, expiring after the TTL.
func (r *RedisActivity) Touch(ctx context.Context, userID string, at time.Time) error {
	value := at.UTC().Format(time.RFC3339Nano)
	if err := r.client.Set(ctx, lastActivePrefix+userID, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("set last active of %s: %w", userID, err)
	}
	return nil
}

// LastActive returns userID's last activity, if it has not expired.
func (r *RedisActivity) LastActive(ctx context.Context, userID string) (time.Time, bool, error) {
	value, err := r.client.Get(ctx, lastActivePrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get last active of %s: %w", userID, err)
	}

	at, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last active of %s: %w", userID, err)
	}
	return at, true, nil
}
