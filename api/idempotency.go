package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "idem"

// RedisDeduper stores seen idempotency keys in Redis so every instance
// skips captures it has already executed.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(principal, key string) string {
	return fmt.Sprintf("%s:%s:%s", principal, dedupeKeyPrefix, key)
}

// Add records the key if it does not already exist. It returns true when
// the key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, principal, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(principal, key), 1, r.ttl).Result()
}

// Remove deletes a previously recorded key. It is used when the capture
// fails so the caller may retry with the same key.
func (r *RedisDeduper) Remove(ctx context.Context, principal, key string) error {
	return r.client.Del(ctx, r.key(principal, key)).Err()
}
