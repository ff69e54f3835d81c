// Package store provides the pluggable backend interface for the agent's
// archives. The request log archives drained records through a Store so
// diagnostics survive restarts.
package store

import "context"

// Store is the pluggable key-value backend interface.
//
// Keys are strings with hierarchical paths supported via "/" separators.
// Values are binary data ([]byte), typically JSON-encoded records.
// Operations are context-aware for cancellation and timeouts.
//
// Implementations:
//   - boltstore.Store: local bbolt file
//
// All Store implementations must be safe for concurrent use from multiple
// goroutines.
type Store interface {
	// Put stores binary data at the specified key, overwriting any
	// existing value.
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves binary data for the specified key. Returns
	// errors.ErrKeyNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all keys matching the specified prefix, in
	// lexicographic order. An empty prefix lists every key. Returns an
	// empty slice if no keys match.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the specified key. Returns nil if the
	// key doesn't exist (idempotent operation).
	Delete(ctx context.Context, key string) error

	// Close releases backend resources. The store is unusable afterward.
	Close() error
}
