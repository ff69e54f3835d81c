package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
)

// redisEnvelope carries the value plus the expiry metadata the interface
// exposes. The Redis key TTL is expiry plus the stale window, so expired
// entries stay reachable for GetStale until Redis drops them.
type redisEnvelope[V any] struct {
	Value     V         `json:"value"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// redisCache is the shared-tier backend. Multiple agent instances pointed at
// the same Redis share one response cache. Size bounding is delegated to the
// server's maxmemory policy; MaxEntries does not apply here.
type redisCache[V any] struct {
	rdb        *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
	staleFor   time.Duration
	opTimeout  time.Duration
	stats      *Statistics
	metrics    *cacheMetrics
}

// newRedisCache connects to Redis and verifies the connection with a ping.
func newRedisCache[V any](
	ctx context.Context, url, keyPrefix string, defaultTTL time.Duration, opts *cacheOptions[V],
) (*redisCache[V], error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.WrapInvalid(err, "cache", "newRedisCache", "parse redis url")
	}

	rdb := redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.WrapTransient(err, "cache", "newRedisCache", "ping redis")
	}

	var metrics *cacheMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			_ = rdb.Close()
			return nil, errors.WrapTransient(err, "cache", "newRedisCache", "metrics registration")
		}
	}

	if keyPrefix == "" {
		keyPrefix = "cryptodt:cache:"
	}

	return &redisCache[V]{
		rdb:        rdb,
		keyPrefix:  keyPrefix,
		defaultTTL: defaultTTL,
		staleFor:   opts.staleFor,
		opTimeout:  3 * time.Second,
		stats:      NewStatistics(),
		metrics:    metrics,
	}, nil
}

func (c *redisCache[V]) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.opTimeout)
}

// load fetches and decodes an envelope. Returns false on any miss or error;
// a broken shared tier must degrade to misses, never to failures.
func (c *redisCache[V]) load(key string) (redisEnvelope[V], bool) {
	ctx, cancel := c.opCtx()
	defer cancel()

	var env redisEnvelope[V]
	data, err := c.rdb.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		return env, false
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, false
	}
	return env, true
}

// Get retrieves a fresh value by key. Expired entries miss but remain in
// Redis for GetStale until their extended TTL lapses.
func (c *redisCache[V]) Get(key string) (V, bool) {
	env, ok := c.load(key)
	if !ok || time.Now().After(env.ExpiresAt) {
		var zero V
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return zero, false
	}

	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	return env.Value, true
}

// GetStale retrieves a value regardless of expiry.
func (c *redisCache[V]) GetStale(key string) (V, time.Time, bool) {
	env, ok := c.load(key)
	if !ok {
		var zero V
		return zero, time.Time{}, false
	}

	c.stats.StaleHit()
	if c.metrics != nil {
		c.metrics.recordStaleHit()
	}
	return env.Value, env.ExpiresAt, true
}

// Set stores a value with the default TTL, unconditionally overwriting.
func (c *redisCache[V]) Set(key string, value V) (bool, error) {
	return c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores a value with a per-entry TTL, unconditionally overwriting.
// The create-vs-overwrite return is derived from SET's GET option.
func (c *redisCache[V]) SetTTL(key string, value V, ttl time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	env := redisEnvelope[V]{
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return false, errors.WrapInvalid(err, "cache", "SetTTL", "encode envelope")
	}

	ctx, cancel := c.opCtx()
	defer cancel()

	prev, err := c.rdb.SetArgs(ctx, c.keyPrefix+key, data, redis.SetArgs{
		TTL: ttl + c.staleFor,
		Get: true,
	}).Result()
	if err != nil && err != redis.Nil {
		return false, errors.WrapTransient(err, "cache", "SetTTL", "write entry")
	}

	c.stats.Set()
	if c.metrics != nil {
		c.metrics.recordSet()
	}
	created := err == redis.Nil || prev == ""
	return created, nil
}

// Delete removes an entry by key.
func (c *redisCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	ctx, cancel := c.opCtx()
	defer cancel()

	n, err := c.rdb.Del(ctx, c.keyPrefix+key).Result()
	if err != nil {
		return false, errors.WrapTransient(err, "cache", "Delete", "delete entry")
	}

	if n > 0 {
		c.stats.Delete()
		if c.metrics != nil {
			c.metrics.recordDelete()
		}
	}
	return n > 0, nil
}

// Clear removes all entries under the key prefix.
func (c *redisCache[V]) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	iter := c.rdb.Scan(ctx, 0, c.keyPrefix+"*", 256).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 256 {
			if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
				return errors.WrapTransient(err, "cache", "Clear", "delete batch")
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return errors.WrapTransient(err, "cache", "Clear", "scan keys")
	}
	if len(batch) > 0 {
		if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
			return errors.WrapTransient(err, "cache", "Clear", "delete batch")
		}
	}
	return nil
}

// Size counts entries under the prefix. This scans the keyspace; it is a
// diagnostics call, not a hot path.
func (c *redisCache[V]) Size() int {
	return len(c.scanKeys())
}

// Keys returns all keys under the prefix, stale-retained entries included.
// Freshness filtering would require fetching every value, so unlike the
// memory backend this listing does not exclude expired entries.
func (c *redisCache[V]) Keys() []string {
	return c.scanKeys()
}

// Entries returns metadata snapshots for every entry under the prefix.
func (c *redisCache[V]) Entries() []EntryInfo {
	keys := c.scanKeys()
	now := time.Now()

	infos := make([]EntryInfo, 0, len(keys))
	for _, key := range keys {
		env, ok := c.load(key)
		if !ok {
			continue
		}
		infos = append(infos, EntryInfo{
			Key:       key,
			StoredAt:  env.StoredAt,
			ExpiresAt: env.ExpiresAt,
			Stale:     now.After(env.ExpiresAt),
		})
	}
	return infos
}

func (c *redisCache[V]) scanKeys() []string {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var keys []string
	iter := c.rdb.Scan(ctx, 0, c.keyPrefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(c.keyPrefix):])
	}
	return keys
}

// Stats returns cache statistics. Counters are per-process, not shared
// across agent instances.
func (c *redisCache[V]) Stats() *Statistics {
	return c.stats
}

// Close releases the Redis connection.
func (c *redisCache[V]) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
