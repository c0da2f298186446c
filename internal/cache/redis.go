package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefix for cached source text
const sourceKeyPrefix = "source:"

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(addr, password string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCache{
		client: client,
	}, nil
}

// GetSource retrieves cached source text by key
func (c *RedisCache) GetSource(ctx context.Context, key string) (string, bool, error) {
	text, err := c.client.Get(ctx, sourceKeyPrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil // Cache miss
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// SetSource stores extracted source text with TTL
func (c *RedisCache) SetSource(ctx context.Context, key string, text string, ttl time.Duration) error {
	return c.client.Set(ctx, sourceKeyPrefix+key, text, ttl).Err()
}

// Close closes the cache connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
