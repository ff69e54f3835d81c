package cache

import (
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub009/metric"
)

// Option configures cache behavior using the functional options pattern.
type Option[V any] func(*cacheOptions[V])

// cacheOptions holds internal configuration for cache instances.
// Stats are ALWAYS collected - they are not optional.
// Metrics are optional and exposed via WithMetrics().
type cacheOptions[V any] struct {
	// metricsReg is optional - if provided, cache stats are also exposed as Prometheus metrics
	metricsReg *metric.Registry

	// metricsPrefix is used as the component label for Prometheus metrics
	metricsPrefix string

	// evictCallback is called when items are evicted from the cache
	evictCallback EvictCallback[V]

	// staleFor is how long past expiry entries stay reachable via GetStale
	staleFor time.Duration
}

// WithMetrics enables Prometheus metrics export for cache statistics.
// If registry is nil or prefix is empty, this option is ignored.
func WithMetrics[V any](registry *metric.Registry, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a callback function that is called when items are evicted.
// The callback receives the key and value of the evicted entry.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.evictCallback = callback
	}
}

// WithStaleFor sets the stale retention window: how long past expiry an
// entry remains reachable through GetStale. If window is negative, this
// option is ignored.
func WithStaleFor[V any](window time.Duration) Option[V] {
	return func(opts *cacheOptions[V]) {
		if window >= 0 {
			opts.staleFor = window
		}
	}
}

// applyOptions applies functional options to create final cache configuration.
// This is an internal helper used by cache constructors.
func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{
		// Default values
		staleFor: 1 * time.Hour,
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
