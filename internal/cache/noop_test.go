package cache

import (
	"context"
	"testing"
	"time"
)

// TestNoOpCache verifies that NoOpCache implements the Cache interface correctly
func TestNoOpCache(t *testing.T) {
	cache := NewNoOpCache()
	ctx := context.Background()

	// Test GetSource - should always report a miss
	text, found, err := cache.GetSource(ctx, "test-key")
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if found || text != "" {
		t.Errorf("Expected cache miss, got %q", text)
	}

	// Test SetSource - should succeed silently
	err = cache.SetSource(ctx, "test-key", "some extracted text", 1*time.Hour)
	if err != nil {
		t.Errorf("Expected no error on SetSource, got %v", err)
	}

	// Verify it still misses (nothing was actually cached)
	_, found, err = cache.GetSource(ctx, "test-key")
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if found {
		t.Error("Expected miss, no-op cache doesn't store")
	}

	// Test Close - should succeed silently
	if err := cache.Close(); err != nil {
		t.Errorf("Expected no error on Close, got %v", err)
	}
}

func TestKey(t *testing.T) {
	base := Key("Website", "https://example.com", []string{"pt", "en"})

	if got := Key("Website", "https://example.com", []string{"pt", "en"}); got != base {
		t.Error("expected identical inputs to produce identical keys")
	}
	if got := Key("Website", "https://example.org", []string{"pt", "en"}); got == base {
		t.Error("expected different locations to produce different keys")
	}
	if got := Key("Youtube", "https://example.com", []string{"pt", "en"}); got == base {
		t.Error("expected different types to produce different keys")
	}
	if got := Key("Website", "https://example.com", []string{"en"}); got == base {
		t.Error("expected different languages to produce different keys")
	}
	if len(base) != 64 {
		t.Errorf("expected hex sha256 key, got length %d", len(base))
	}
}
