package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SharedCache is a cross-process credential tier consulted before the network.
type SharedCache interface {
	// Load returns nil, nil on a miss.
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisCache provides a Redis-backed SharedCache. Entries expire with the
// credential they hold.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithPrefix sets the key prefix for Redis keys.
// Default is "playht".
func WithPrefix(prefix string) RedisOption {
	return func(c *RedisCache) {
		c.prefix = prefix
	}
}

// NewRedisCache creates a Redis-backed shared credential tier.
//
// Example:
//
//	cache := NewRedisCache(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithPrefix("myapp"),
//	)
func NewRedisCache(client redis.UniversalClient, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client: client,
		prefix: "playht",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load retrieves a credential blob.
func (c *RedisCache) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.credentialKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

// Save stores a credential blob with the given TTL.
func (c *RedisCache) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, c.credentialKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes a credential blob.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.credentialKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func (c *RedisCache) credentialKey(key string) string {
	return fmt.Sprintf("%s:credential:%s", c.prefix, key)
}
