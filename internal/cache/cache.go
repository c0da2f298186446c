package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"time"
)

// Cache stores extracted source text so reinitializing a conversation on the
// same URL skips the remote fetch.
type Cache interface {
	// GetSource retrieves cached text by key. found is false on a miss.
	GetSource(ctx context.Context, key string) (text string, found bool, err error)

	// SetSource stores extracted text with TTL.
	SetSource(ctx context.Context, key string, text string, ttl time.Duration) error

	// Close closes the cache connection.
	Close() error
}

// Key derives a stable cache key for a URL source. Upload types are never
// cached (their bytes arrive with the request), so only type, location and
// transcript languages participate.
func Key(sourceType, location string, languages []string) string {
	h := sha256.New()
	io.WriteString(h, sourceType)
	io.WriteString(h, "|")
	io.WriteString(h, location)
	io.WriteString(h, "|")
	io.WriteString(h, strings.Join(languages, ","))
	return hex.EncodeToString(h.Sum(nil))
}
