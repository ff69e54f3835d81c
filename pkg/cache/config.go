package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
)

// Backend selects where cached responses live.
type Backend string

const (
	// BackendMemory keeps entries in-process with TTL plus LRU bounding.
	BackendMemory Backend = "memory"

	// BackendRedis keeps entries in a shared Redis tier.
	BackendRedis Backend = "redis"
)

// Config contains configuration for cache creation.
type Config struct {
	// Enabled determines if caching is enabled.
	Enabled bool `json:"enabled"`

	// Backend selects the storage backend: memory or redis.
	Backend Backend `json:"backend"`

	// MaxEntries is the LRU bound for the memory backend.
	MaxEntries int `json:"max_entries"`

	// DefaultTTL applies to entries stored without a per-entry TTL.
	DefaultTTL time.Duration `json:"default_ttl"`

	// SweepInterval is how often the memory backend removes entries that
	// have outlived expiry plus the stale window.
	SweepInterval time.Duration `json:"sweep_interval"`

	// StaleFor is how long past expiry an entry stays reachable through
	// GetStale before the sweep (or Redis TTL) removes it.
	StaleFor time.Duration `json:"stale_for"`

	// RedisURL is the connection string for the redis backend,
	// e.g. redis://localhost:6379/0.
	RedisURL string `json:"redis_url"`

	// RedisKeyPrefix namespaces this agent's entries in a shared Redis.
	RedisKeyPrefix string `json:"redis_key_prefix"`
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Backend:       BackendMemory,
		MaxEntries:    1000,
		DefaultTTL:    30 * time.Second,
		SweepInterval: 1 * time.Minute,
		StaleFor:      1 * time.Hour,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil // No validation needed if disabled
	}

	switch c.Backend {
	case BackendMemory:
		if c.MaxEntries <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
				fmt.Sprintf("max_entries must be positive for memory backend, got %d", c.MaxEntries))
		}
		if c.SweepInterval <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
				fmt.Sprintf("sweep_interval must be positive for memory backend, got %v", c.SweepInterval))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "cache", "Validate",
				"redis_url is required for redis backend")
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("unknown cache backend: %s", c.Backend))
	}

	if c.DefaultTTL <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("default_ttl must be positive, got %v", c.DefaultTTL))
	}
	if c.StaleFor < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("stale_for cannot be negative, got %v", c.StaleFor))
	}

	return nil
}

// NewFromConfig creates a cache based on the provided configuration.
// Returns a disabled cache (NewNoop) if config.Enabled is false.
// Additional functional options can be passed to configure metrics, callbacks, etc.
func NewFromConfig[V any](ctx context.Context, config Config, options ...Option[V]) (Cache[V], error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "cache", "NewFromConfig", "config validation")
	}

	if !config.Enabled {
		return NewNoop[V](), nil
	}

	if config.StaleFor > 0 {
		options = append(options, WithStaleFor[V](config.StaleFor))
	}

	switch config.Backend {
	case BackendMemory:
		return NewMemory[V](ctx, config.MaxEntries, config.DefaultTTL, config.SweepInterval, options...)

	case BackendRedis:
		return NewRedis[V](ctx, config.RedisURL, config.RedisKeyPrefix, config.DefaultTTL, options...)

	default:
		msg := fmt.Sprintf("unsupported cache backend: %s", config.Backend)
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewFromConfig", msg)
	}
}

// NewMemory creates the in-process backend with TTL expiry and LRU bounding.
// Stats are always enabled for observability. Use WithMetrics() to also export as Prometheus metrics.
func NewMemory[V any](
	ctx context.Context, maxEntries int, defaultTTL, sweepInterval time.Duration, options ...Option[V],
) (Cache[V], error) {
	opts := applyOptions(options...)
	return newMemoryCache[V](ctx, maxEntries, defaultTTL, sweepInterval, opts)
}

// NewRedis creates the shared-tier backend.
// Stats are always enabled for observability. Use WithMetrics() to also export as Prometheus metrics.
func NewRedis[V any](
	ctx context.Context, url, keyPrefix string, defaultTTL time.Duration, options ...Option[V],
) (Cache[V], error) {
	opts := applyOptions(options...)
	return newRedisCache[V](ctx, url, keyPrefix, defaultTTL, opts)
}

// NewNoop creates a cache that does nothing (always returns cache misses).
// This is useful when caching is disabled via configuration.
func NewNoop[V any]() Cache[V] {
	return &noopCache[V]{}
}

// noopCache is a cache implementation that does nothing.
type noopCache[V any] struct{}

func (c *noopCache[V]) Get(_ string) (V, bool) {
	var zero V
	return zero, false
}

func (c *noopCache[V]) GetStale(_ string) (V, time.Time, bool) {
	var zero V
	return zero, time.Time{}, false
}

func (c *noopCache[V]) Set(_ string, _ V) (bool, error) {
	return false, nil
}

func (c *noopCache[V]) SetTTL(_ string, _ V, _ time.Duration) (bool, error) {
	return false, nil
}

func (c *noopCache[V]) Delete(_ string) (bool, error) {
	return false, nil
}

func (c *noopCache[V]) Clear() error {
	return nil
}

func (c *noopCache[V]) Size() int {
	return 0
}

func (c *noopCache[V]) Keys() []string {
	return nil
}

func (c *noopCache[V]) Entries() []EntryInfo {
	return nil
}

func (c *noopCache[V]) Stats() *Statistics {
	return nil
}

func (c *noopCache[V]) Close() error {
	return nil
}

// UnmarshalJSON implements custom JSON unmarshaling for Config to support
// duration strings (e.g., "1h", "5m", "30s") in addition to nanosecond integers.
func (c *Config) UnmarshalJSON(data []byte) error {
	// Use an alias to avoid infinite recursion
	type Alias Config

	// Temporary struct that accepts durations as either int64 or string
	aux := &struct {
		DefaultTTL    json.RawMessage `json:"default_ttl,omitempty"`
		SweepInterval json.RawMessage `json:"sweep_interval,omitempty"`
		StaleFor      json.RawMessage `json:"stale_for,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if len(aux.DefaultTTL) > 0 {
		ttl, err := parseDurationField(aux.DefaultTTL, "default_ttl")
		if err != nil {
			return err
		}
		c.DefaultTTL = ttl
	}

	if len(aux.SweepInterval) > 0 {
		interval, err := parseDurationField(aux.SweepInterval, "sweep_interval")
		if err != nil {
			return err
		}
		c.SweepInterval = interval
	}

	if len(aux.StaleFor) > 0 {
		window, err := parseDurationField(aux.StaleFor, "stale_for")
		if err != nil {
			return err
		}
		c.StaleFor = window
	}

	return nil
}

// parseDurationField parses a JSON duration field that can be either:
// - An integer (nanoseconds) for backward compatibility
// - A string (duration like "1h", "5m", "30s")
func parseDurationField(data json.RawMessage, fieldName string) (time.Duration, error) {
	// Try parsing as string first (most common case)
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		duration, err := time.ParseDuration(str)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string for %s: %w", fieldName, err)
		}
		return duration, nil
	}

	// Fall back to integer (nanoseconds) for backward compatibility
	var nsec int64
	if err := json.Unmarshal(data, &nsec); err != nil {
		return 0, fmt.Errorf("field %s must be either a duration string (e.g., '1h') or integer nanoseconds", fieldName)
	}
	return time.Duration(nsec), nil
}
