package buffer

import (
	"github.com/nimazasinich/crypto-dt-source-sub009/metric"
)

// Option configures ring behavior using the functional options pattern.
type Option[T any] func(*ringOptions[T])

// ringOptions holds internal configuration for ring instances.
// Stats are ALWAYS collected - they are not optional.
// Metrics are optional and exposed via WithMetrics().
type ringOptions[T any] struct {
	dropCallback DropCallback[T]

	// metricsReg is optional - if provided, ring stats are also exposed as Prometheus metrics
	metricsReg *metric.Registry

	// metricsPrefix is used as the component label for Prometheus metrics
	metricsPrefix string
}

// WithMetrics enables Prometheus metrics export for ring statistics.
// If registry is nil, this option is ignored.
func WithMetrics[T any](registry *metric.Registry, prefix string) Option[T] {
	return func(opts *ringOptions[T]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithDropCallback sets a callback invoked with each item displaced by
// overwrite or removed by Clear.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *ringOptions[T]) {
		opts.dropCallback = callback
	}
}

// applyOptions applies functional options to create final ring configuration.
func applyOptions[T any](options ...Option[T]) *ringOptions[T] {
	opts := &ringOptions[T]{}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
