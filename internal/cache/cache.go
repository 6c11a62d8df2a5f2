// Package cache provides the TTL key/value cache used for read-through
// lookups of orders.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent or expired
var ErrMiss = errors.New("cache miss")

// Cache stores versioned values with a TTL. An older version never replaces
// a newer one.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetIfNewer(ctx context.Context, key string, version int64, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// OrderKey is the cache key of an order by id
func OrderKey(orderID string) string {
	return fmt.Sprintf("legalops:order:%s", orderID)
}

// RedisCache implements Cache on a Redis client
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a cache backed by the Redis server at addr
func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Entries are hashes with a "data" and a "version" field
const dataField = "data"

// setIfNewerScript compares versions and writes atomically. A zero TTL
// leaves the entry without expiry.
var setIfNewerScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.HGet(ctx, key, dataField).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

// SetIfNewer writes value unless the stored entry has the same or a higher
// version. It reports whether the value was written.
func (c *RedisCache) SetIfNewer(ctx context.Context, key string, version int64, value []byte, ttl time.Duration) (bool, error) {
	written, err := setIfNewerScript.Run(ctx, c.client, []string{key},
		version, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return written == 1, nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Ping checks connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client's connections
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NoopCache never stores anything. It stands in when no Redis is configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }

func (NoopCache) SetIfNewer(context.Context, string, int64, []byte, time.Duration) (bool, error) {
	return false, nil
}

func (NoopCache) Delete(context.Context, ...string) error { return nil }
