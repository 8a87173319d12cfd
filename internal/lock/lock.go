// Package lock keeps scheduled jobs from running twice at once across
// processes. The payments store stays the source of truth for idempotence;
// the lock only avoids wasted work.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"dorm-ledger-service/internal/logger"
)

// ReleaseFunc gives the lock back. It is safe to call after the TTL expired.
type ReleaseFunc func(ctx context.Context) error

type Locker interface {
	// Acquire returns ok=false without error when someone else holds key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error)
}

// deletes the key only while it still holds our token
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

type RedisLocker struct {
	client   *redis.Client
	prefix   string
	newToken func() string
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "dorm-ledger:lock:"
	}
	return &RedisLocker{client: client, prefix: prefix, newToken: uuid.NewString}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	fullKey := l.prefix + key
	token := l.newToken()

	logger.ExternalServiceCall("redis", "SETNX", "key", fullKey, "ttl", ttl)
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	logger.ExternalServiceResult("redis", "SETNX", err, "key", fullKey, "acquired", ok)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		logger.ExternalServiceCall("redis", "EVAL release", "key", fullKey)
		_, err := l.client.Eval(ctx, releaseScript, []string{fullKey}, token).Result()
		logger.ExternalServiceResult("redis", "EVAL release", err, "key", fullKey)
		if err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}

// NoopLocker always grants the lock. Used when redis is not configured.
type NoopLocker struct{}

func (NoopLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}

// NewRedisClient connects and pings. A failed ping is returned so callers can
// decide to fall back to NoopLocker.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}
