// Package cache provides the response cache backends: an in-process LRU and Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// scanBatch is both the SCAN count hint and the UNLINK batch size.
const scanBatch = 200

// RedisClient implements Client on Redis. Every key is namespaced by prefix
// so several deployments can share one database.
type RedisClient struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
	// ConnectAttempts bounds ping retries at startup (default 3).
	ConnectAttempts uint64
	// ConnectBackoff is the first retry delay, doubled per attempt (default 100ms).
	ConnectBackoff time.Duration
}

// NewRedisClient connects to Redis, retrying the initial ping with
// exponential backoff.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*RedisClient, error) {
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = 3
	}
	if cfg.ConnectBackoff <= 0 {
		cfg.ConnectBackoff = 100 * time.Millisecond
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: 2 * time.Second,
	})

	backoff := retry.WithMaxRetries(cfg.ConnectAttempts-1, retry.NewExponential(cfg.ConnectBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	return WrapRedis(client, cfg.Prefix), nil
}

// WrapRedis builds a RedisClient around an existing connection.
func WrapRedis(client *redis.Client, prefix string) *RedisClient {
	if prefix == "" {
		prefix = "ca:"
	}
	return &RedisClient{client: client, prefix: prefix}
}

// Redis exposes the underlying connection for components sharing it (the event stream sink).
func (c *RedisClient) Redis() *redis.Client {
	return c.client
}

// Get retrieves a value from cache.
func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set stores a value with ttl. A non-positive ttl stores without expiry.
func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a value from cache.
func (c *RedisClient) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// DeleteByPrefix unlinks every key under prefix. The full scan runs first,
// then keys are unlinked in batches so large caches never block the server.
func (c *RedisClient) DeleteByPrefix(ctx context.Context, prefix string) error {
	// Keys are unlinked only after the scan completes so the keyspace does
	// not change under the cursor.
	var keys []string
	iter := c.client.Scan(ctx, 0, c.prefix+prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}

	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		if err := c.client.Unlink(ctx, keys[start:end]...).Err(); err != nil {
			return fmt.Errorf("redis unlink: %w", err)
		}
	}
	return nil
}

// Ping checks the connection.
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// Key joins key components with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
