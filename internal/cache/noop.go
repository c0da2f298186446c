package cache

import (
	"context"
	"time"
)

// NoOpCache is a cache implementation that does nothing.
// Used as a fallback when Redis is unavailable - all operations succeed
// but no actual caching occurs (always cache miss).
type NoOpCache struct{}

// NewNoOpCache creates a new no-op cache instance
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// GetSource always reports a cache miss
func (c *NoOpCache) GetSource(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}

// SetSource does nothing and always succeeds
func (c *NoOpCache) SetSource(ctx context.Context, key string, text string, ttl time.Duration) error {
	return nil
}

// Close does nothing and always succeeds
func (c *NoOpCache) Close() error {
	return nil
}
