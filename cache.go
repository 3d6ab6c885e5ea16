package mate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache is the interface for caching query results.
// Users should implement this interface with their preferred caching solution
// (e.g., Redis, Memcached, in-memory).
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// CacheKey identifies the result of one compiled statement.
type CacheKey struct {
	Prefix  string
	Dialect string
	Query   string
}

// String returns the string representation of the cache key. The
// statement is hashed so keys stay short whatever its length.
func (k CacheKey) String() string {
	sum := sha256.Sum256([]byte(k.Query))
	return k.Prefix + k.Dialect + ":" + hex.EncodeToString(sum[:])
}
