package secrets

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/underscoreTells/streaming-enhancement/internal/metrics"
)

// RedisStore persists secrets as plain Redis string keys `<namespace>:<account>`.
// Records have no TTL; token lifecycle is governed by the stored expiry fields,
// not by key expiration.
type RedisStore struct {
	rdb *goredis.Client
}

// NewRedisClient creates a go-redis client from a URL (e.g., "redis://localhost:6379")
// with metrics and circuit breaker hooks installed.
func NewRedisClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	rdb.AddHook(&MetricsHook{})
	rdb.AddHook(NewCircuitBreakerHook())

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return rdb, nil
}

func NewRedisStore(rdb *goredis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) key(namespace, account string) string {
	return namespace + ":" + account
}

func (s *RedisStore) Get(ctx context.Context, namespace, account string) (string, error) {
	value, err := s.rdb.Get(ctx, s.key(namespace, account)).Result()
	if errors.Is(err, goredis.Nil) {
		metrics.SecretStoreOpsTotal.WithLabelValues("get", "miss").Inc()
		return "", ErrNotFound
	}
	if err != nil {
		metrics.SecretStoreOpsTotal.WithLabelValues("get", "error").Inc()
		return "", fmt.Errorf("failed to read secret %s: %w", account, err)
	}

	metrics.SecretStoreOpsTotal.WithLabelValues("get", "ok").Inc()
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, namespace, account, value string) error {
	if err := s.rdb.Set(ctx, s.key(namespace, account), value, 0).Err(); err != nil {
		metrics.SecretStoreOpsTotal.WithLabelValues("set", "error").Inc()
		return fmt.Errorf("failed to write secret %s: %w", account, err)
	}

	metrics.SecretStoreOpsTotal.WithLabelValues("set", "ok").Inc()
	return nil
}

func (s *RedisStore) Has(ctx context.Context, namespace, account string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(namespace, account)).Result()
	if err != nil {
		metrics.SecretStoreOpsTotal.WithLabelValues("has", "error").Inc()
		return false, fmt.Errorf("failed to check secret %s: %w", account, err)
	}

	metrics.SecretStoreOpsTotal.WithLabelValues("has", "ok").Inc()
	return n > 0, nil
}
