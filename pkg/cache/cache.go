// Package cache provides the bounded response cache behind the fetch client.
//
// Two backends implement the same interface:
//   - memory: in-process, TTL expiry combined with LRU size bounding
//   - redis: shared tier for multi-instance deployments
//
// Entries record when they were stored and when they expire. Expired entries
// stop being served by Get but are retained for a configurable stale window
// so the client's degraded-response tier can still reach them via GetStale.
// A background sweep removes entries once the stale window has passed, and
// the LRU bound caps total growth regardless of expiry.
//
// All implementations are thread-safe with built-in statistics (always
// enabled for observability) and optional Prometheus metrics integration via
// functional options.
package cache

import (
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
)

// Cache is the response cache interface shared by all backends.
// The cache is parameterized by value type V for type safety.
type Cache[V any] interface {
	// Get retrieves a fresh value by key. Expired entries miss (they remain
	// reachable through GetStale until swept). Returns the value and true on
	// a fresh hit, zero value and false otherwise.
	Get(key string) (V, bool)

	// GetStale retrieves a value regardless of expiry, along with the entry's
	// expiry time so the caller can annotate degraded responses. It does not
	// refresh the entry's LRU position.
	GetStale(key string) (V, time.Time, bool)

	// Set stores a value under key with the backend's default TTL,
	// unconditionally overwriting any previous entry. Returns true if a new
	// entry was created, false if an existing one was overwritten.
	Set(key string, value V) (bool, error)

	// SetTTL is Set with a per-entry TTL override.
	SetTTL(key string, value V, ttl time.Duration) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed and was deleted.
	Delete(key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear() error

	// Size returns the current number of entries in the cache, stale included.
	Size() int

	// Keys returns a slice of all keys currently in the cache.
	Keys() []string

	// Entries returns metadata snapshots for every entry, for diagnostics.
	Entries() []EntryInfo

	// Stats returns cache statistics if enabled, nil otherwise.
	Stats() *Statistics

	// Close shuts down the cache and releases any resources (e.g., background goroutines).
	Close() error
}

// EvictCallback is called when an entry is evicted from the cache.
// It receives the key and value of the evicted entry.
type EvictCallback[V any] func(key string, value V)

// EntryInfo is the metadata snapshot of a cached response, exposed on the
// operations API for cache inspection.
type EntryInfo struct {
	Key       string    `json:"key"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Stale     bool      `json:"stale"`
}

// validateKey validates a cache key for basic requirements.
// Returns a classified error if the key is invalid.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidKey, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
