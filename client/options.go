package client

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nimazasinich/crypto-dt-source-sub009/health"
	"github.com/nimazasinich/crypto-dt-source-sub009/metric"
	"github.com/nimazasinich/crypto-dt-source-sub009/mirror"
	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/cache"
	"github.com/nimazasinich/crypto-dt-source-sub009/requestlog"
)

// Defaults are the per-request settings used when a request does not
// override them.
type Defaults struct {
	Timeout    time.Duration // per-attempt budget
	TTL        time.Duration // cache TTL for cacheable responses
	Retries    int           // retries after the first attempt
	RetryDelay time.Duration // base backoff delay
}

// DefaultSettings returns the standard request defaults.
func DefaultSettings() Defaults {
	return Defaults{
		Timeout:    8 * time.Second,
		TTL:        30 * time.Second,
		Retries:    3,
		RetryDelay: 1 * time.Second,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport. The client relies on
// per-attempt contexts for timeouts, so the http.Client's own Timeout
// should stay zero.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCache attaches the response cache. Without one, every request goes
// to the network and the stale-cache degrade tier is unavailable.
func WithCache(store cache.Cache[any]) Option {
	return func(c *Client) { c.cache = store }
}

// WithMirrors attaches the host-mirror table for the fallback tier.
func WithMirrors(table *mirror.Table) Option {
	return func(c *Client) { c.mirrors = table }
}

// WithProxy sets the relay endpoint used as the escape tier when every
// mirror fails. Empty disables the tier.
func WithProxy(url string) Option {
	return func(c *Client) { c.proxyURL = url }
}

// WithDefaults overrides the per-request defaults.
func WithDefaults(d Defaults) Option {
	return func(c *Client) {
		if d.Timeout > 0 {
			c.defaults.Timeout = d.Timeout
		}
		if d.TTL > 0 {
			c.defaults.TTL = d.TTL
		}
		if d.Retries >= 0 {
			c.defaults.Retries = d.Retries
		}
		if d.RetryDelay > 0 {
			c.defaults.RetryDelay = d.RetryDelay
		}
	}
}

// WithUserAgent sets the User-Agent header stamped on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit enables per-host rate limiting. Requests wait for a token
// before each network attempt. A zero limit disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		c.rateLimit = rate.Limit(perSecond)
		c.rateBurst = burst
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics attaches the metric registry; the client records request
// outcomes, retries, mirror fallbacks, and durations.
func WithMetrics(registry *metric.Registry) Option {
	return func(c *Client) {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
	}
}

// WithRequestLog attaches the rolling request/error log. One record lands
// per completed request.
func WithRequestLog(log *requestlog.Log) Option {
	return func(c *Client) { c.reqlog = log }
}

// WithFailureTracker attaches the per-endpoint failure tracker. Failures
// record, successes clear.
func WithFailureTracker(tracker *health.Tracker) Option {
	return func(c *Client) { c.failures = tracker }
}

// RequestOption adjusts a single request.
type RequestOption func(*requestConfig)

// requestConfig is the resolved per-request configuration.
type requestConfig struct {
	cacheSet   bool // an explicit cache choice was made
	cache      bool
	ttl        time.Duration
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	headers    map[string]string
	body       any
	hasBody    bool
	directOnly bool
}

// WithTTL overrides the cache TTL for this request's response.
func WithTTL(ttl time.Duration) RequestOption {
	return func(rc *requestConfig) {
		if ttl > 0 {
			rc.ttl = ttl
		}
	}
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) RequestOption {
	return func(rc *requestConfig) {
		if d > 0 {
			rc.timeout = d
		}
	}
}

// WithRetries overrides how many times a retryable failure is retried
// after the first attempt. Zero disables retries.
func WithRetries(n int) RequestOption {
	return func(rc *requestConfig) {
		if n >= 0 {
			rc.retries = n
		}
	}
}

// WithRetryDelay overrides the base backoff delay.
func WithRetryDelay(d time.Duration) RequestOption {
	return func(rc *requestConfig) {
		if d > 0 {
			rc.retryDelay = d
		}
	}
}

// WithBody attaches a JSON-serializable request body.
func WithBody(v any) RequestOption {
	return func(rc *requestConfig) {
		rc.body = v
		rc.hasBody = true
	}
}

// WithHeader adds one request header.
func WithHeader(key, value string) RequestOption {
	return func(rc *requestConfig) {
		if rc.headers == nil {
			rc.headers = make(map[string]string)
		}
		rc.headers[key] = value
	}
}

// WithHeaders adds a set of request headers.
func WithHeaders(h map[string]string) RequestOption {
	return func(rc *requestConfig) {
		if len(h) == 0 {
			return
		}
		if rc.headers == nil {
			rc.headers = make(map[string]string, len(h))
		}
		for k, v := range h {
			rc.headers[k] = v
		}
	}
}

// DirectOnly restricts this request to the primary tier: no mirror
// rewrites and no proxy relay. The server's own relay endpoint uses this
// so a relayed request cannot recurse back into the relay.
func DirectOnly() RequestOption {
	return func(rc *requestConfig) {
		rc.directOnly = true
	}
}

// CacheResponse forces caching on or off for this request, overriding the
// GET-only default.
func CacheResponse(enabled bool) RequestOption {
	return func(rc *requestConfig) {
		rc.cacheSet = true
		rc.cache = enabled
	}
}
