package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
	"github.com/nimazasinich/crypto-dt-source-sub009/health"
	"github.com/nimazasinich/crypto-dt-source-sub009/metric"
	"github.com/nimazasinich/crypto-dt-source-sub009/mirror"
	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/cache"
	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/retry"
	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/timestamp"
	"github.com/nimazasinich/crypto-dt-source-sub009/requestlog"
)

const serviceName = "client"

// maxResponseBytes bounds how much of an upstream body is read. Provider
// payloads are small JSON documents; anything past this is misbehavior.
const maxResponseBytes = 10 << 20

// maxBackoff caps the exponential backoff between attempts.
const maxBackoff = 30 * time.Second

// Client is the resilient fetch client. A request escalates through
// tiers until one produces a result:
//
//	cache -> network (with retries) -> mirrors -> proxy -> stale cache
//
// and lands in a structured failure only when every tier comes up empty.
// Request never returns a Go error.
type Client struct {
	http      *http.Client
	cache     cache.Cache[any]
	mirrors   *mirror.Table
	proxyURL  string
	userAgent string
	defaults  Defaults

	rateLimit rate.Limit
	rateBurst int
	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	logger   *slog.Logger
	metrics  *metric.Metrics
	reqlog   *requestlog.Log
	failures *health.Tracker
}

// New creates a client. Every dependency is optional; a bare client still
// fetches with retries, it just skips the tiers it has no collaborator for.
func New(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{},
		defaults:  DefaultSettings(),
		userAgent: "crypto-dt-agent/1.0",
		limiters:  make(map[string]*rate.Limiter),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rateBurst < 1 {
		c.rateBurst = 1
	}
	return c
}

// CacheKey derives the cache key for a request: "{METHOD}:{url}".
func CacheKey(method, rawURL string) string {
	return strings.ToUpper(method) + ":" + rawURL
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, rawURL string, opts ...RequestOption) Result {
	return c.Request(ctx, http.MethodGet, rawURL, opts...)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, rawURL string, body any, opts ...RequestOption) Result {
	return c.Request(ctx, http.MethodPost, rawURL, append([]RequestOption{WithBody(body)}, opts...)...)
}

// Request runs the full escalation ladder for one request. The returned
// Result carries the data or a structured failure; it is never an error.
func (c *Client) Request(ctx context.Context, method, rawURL string, opts ...RequestOption) Result {
	start := time.Now()
	method = strings.ToUpper(strings.TrimSpace(method))
	cfg := c.resolve(method, opts)
	key := CacheKey(method, rawURL)
	host := hostOf(rawURL)
	reqID := uuid.NewString()

	log := c.logger.With("request_id", reqID, "method", method, "url", rawURL)

	// Cache fast path. A fresh entry short-circuits everything; there is
	// no background revalidation.
	if cfg.cache && c.cache != nil {
		if v, hit := c.cache.Get(key); hit {
			log.Debug("served from cache")
			return c.finish(reqID, method, rawURL, host, start, success(v, 0, SourceCache), nil)
		}
	}

	// The body serializes once; all tiers reuse the bytes.
	var bodyBytes []byte
	if cfg.hasBody && cfg.body != nil {
		b, err := json.Marshal(cfg.body)
		if err != nil {
			ibe := &errors.InvalidBodyError{Err: err}
			return c.finish(reqID, method, rawURL, host, start, c.failure(ibe, 0, 0), ibe)
		}
		bodyBytes = b
	}

	// Primary tier: the request with retries. 429, 5xx, and transport
	// failures retry with exponential backoff; other 4xx and decode
	// failures stop the ladder outright.
	recovery := 0
	rcfg := retry.Config{
		MaxAttempts:  cfg.retries + 1,
		InitialDelay: cfg.retryDelay,
		MaxDelay:     maxBackoff,
		Multiplier:   2.0,
		AddJitter:    true,
		OnRetry: func(attempt int, err error, next time.Duration) {
			recovery++
			if c.metrics != nil {
				c.metrics.RecordUpstreamRetry(serviceName, host)
			}
			log.Debug("retrying request", "attempt", attempt, "backoff", next, "error", err)
		},
	}
	if rcfg.MaxDelay < rcfg.InitialDelay {
		rcfg.MaxDelay = rcfg.InitialDelay
	}

	primary, primaryErr := retry.DoWithResult(ctx, rcfg, func() (attemptResult, error) {
		r, err := c.attempt(ctx, method, rawURL, bodyBytes, cfg)
		if err != nil && !errors.Retryable(err) {
			return r, retry.NonRetryable(err)
		}
		return r, err
	})

	if primaryErr == nil {
		if primary.envelopeFailed {
			// The upstream answered authoritatively that the operation
			// failed. Mirrors would answer the same; stop here.
			log.Debug("upstream envelope reported failure", "status", primary.status)
			res := Result{
				OK:               false,
				Error:            primary.envelopeMsg,
				Status:           primary.status,
				Timestamp:        timestamp.Now(),
				RecoveryAttempts: recovery,
			}
			return c.finish(reqID, method, rawURL, host, start, res,
				fmt.Errorf("upstream error: %s", primary.envelopeMsg))
		}

		c.store(key, primary.data, cfg)
		res := success(primary.data, primary.status, SourceNetwork)
		res.RecoveryAttempts = recovery
		return c.finish(reqID, method, rawURL, host, start, res, nil)
	}

	// A non-retryable failure is authoritative: a 404 means the resource
	// is absent everywhere, a parse failure means the bytes arrived.
	// Neither mirrors nor stale data can answer for it.
	cause := unwrapRetry(primaryErr)
	if !errors.Retryable(cause) && ctx.Err() == nil {
		log.Debug("request failed without retry", "error", cause)
		return c.finish(reqID, method, rawURL, host, start,
			c.failure(cause, statusOf(cause), recovery), cause)
	}

	// Mirror tier: rewrite against the host-mirror table, one attempt
	// per mirror, first success wins. The response caches under the
	// original key so the next request prefers the primary again.
	if c.mirrors != nil && !cfg.directOnly && ctx.Err() == nil {
		for _, candidate := range c.mirrors.Rewrite(rawURL) {
			if ctx.Err() != nil {
				break
			}
			recovery++
			log.Debug("trying mirror", "mirror_url", candidate)
			r, err := c.attempt(ctx, method, candidate, bodyBytes, cfg)
			if err != nil || r.envelopeFailed {
				log.Debug("mirror failed", "mirror_url", candidate, "error", err)
				continue
			}
			if c.metrics != nil {
				c.metrics.RecordMirrorFallback(serviceName, hostOf(candidate))
			}
			c.store(key, r.data, cfg)
			res := success(r.data, r.status, SourceMirror)
			res.RecoveryAttempts = recovery
			return c.finish(reqID, method, rawURL, host, start, res, nil)
		}
	}

	// Proxy tier: hand the whole request to the relay endpoint and let
	// the backend perform it from its own network position.
	if c.proxyURL != "" && !cfg.directOnly && ctx.Err() == nil {
		recovery++
		log.Debug("trying proxy relay", "proxy_url", c.proxyURL)
		r, err := c.proxyAttempt(ctx, method, rawURL, bodyBytes, cfg)
		if err == nil && !r.envelopeFailed {
			c.store(key, r.data, cfg)
			res := success(r.data, r.status, SourceProxy)
			res.RecoveryAttempts = recovery
			return c.finish(reqID, method, rawURL, host, start, res, nil)
		}
		log.Debug("proxy relay failed", "error", err)
	}

	// Stale tier: an expired cache entry beats a hard failure. The read
	// leaves the entry in place for the next degraded request.
	if cfg.cache && c.cache != nil && ctx.Err() == nil {
		if v, _, hit := c.cache.GetStale(key); hit {
			log.Warn("serving stale cache entry", "error", cause)
			res := success(v, 0, SourceStaleCache)
			res.Warning = WarningStale
			res.RecoveryAttempts = recovery
			return c.finish(reqID, method, rawURL, host, start, res, cause)
		}
	}

	log.Warn("request failed on every tier", "recovery_attempts", recovery, "error", cause)
	return c.finish(reqID, method, rawURL, host, start,
		c.failure(cause, statusOf(cause), recovery), cause)
}

// attemptResult is one network attempt's outcome.
type attemptResult struct {
	data   any
	status int

	// envelopeFailed marks a well-formed 2xx response whose envelope
	// claims failure ({"success": false, ...}).
	envelopeFailed bool
	envelopeMsg    string
}

// attempt performs one HTTP attempt under the per-attempt timeout and
// decodes the response. Errors come back classified by the request
// taxonomy so the retry engine and the ladder can branch on them.
func (c *Client) attempt(ctx context.Context, method, rawURL string, body []byte, cfg *requestConfig) (attemptResult, error) {
	if err := c.waitLimiter(ctx, hostOf(rawURL)); err != nil {
		return attemptResult{}, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, rawURL, reader)
	if err != nil {
		return attemptResult{}, errors.WrapInvalid(err, "client", "attempt", "build request")
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return attemptResult{}, c.transportError(attemptCtx, ctx, rawURL, cfg.timeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return attemptResult{}, c.transportError(attemptCtx, ctx, rawURL, cfg.timeout, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return attemptResult{status: resp.StatusCode}, &errors.HTTPError{Status: resp.StatusCode, URL: rawURL}
	}

	decoded, err := decodeBody(resp.Header.Get("Content-Type"), raw)
	if err != nil {
		return attemptResult{status: resp.StatusCode}, err
	}

	data, claimed, errMsg := normalizeEnvelope(decoded)
	if !claimed {
		return attemptResult{data: data, status: resp.StatusCode, envelopeFailed: true, envelopeMsg: errMsg}, nil
	}
	return attemptResult{data: data, status: resp.StatusCode}, nil
}

// transportError classifies a transport-level failure: the attempt budget
// expiring is a timeout, the caller's context ending passes through so
// the ladder can stop, and everything else is a network failure.
func (c *Client) transportError(attemptCtx, parent context.Context, rawURL string, budget time.Duration, err error) error {
	if stderrors.Is(attemptCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return &errors.TimeoutError{URL: rawURL, Budget: budget}
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	return &errors.NetworkError{URL: rawURL, Err: err}
}

// ProxyRequest is the payload POSTed to the relay endpoint. The server's
// /api/proxy handler decodes the same shape.
type ProxyRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// proxyAttempt relays the request through the configured proxy endpoint.
func (c *Client) proxyAttempt(ctx context.Context, method, rawURL string, body []byte, cfg *requestConfig) (attemptResult, error) {
	payload := ProxyRequest{
		URL:     rawURL,
		Method:  method,
		Headers: cfg.headers,
	}
	if body != nil {
		payload.Body = json.RawMessage(body)
	}

	pb, err := json.Marshal(payload)
	if err != nil {
		return attemptResult{}, &errors.InvalidBodyError{Err: err}
	}

	proxyCfg := &requestConfig{timeout: cfg.timeout}
	return c.attempt(ctx, http.MethodPost, c.proxyURL, pb, proxyCfg)
}

// store caches a successful response under the request key.
func (c *Client) store(key string, data any, cfg *requestConfig) {
	if !cfg.cache || c.cache == nil {
		return
	}
	if _, err := c.cache.SetTTL(key, data, cfg.ttl); err != nil {
		c.logger.Debug("response not cached", "key", key, "error", err)
	}
}

// failure builds the structured failure result.
func (c *Client) failure(err error, status, recovery int) Result {
	return Result{
		OK:               false,
		Error:            health.Sanitize(err.Error()),
		Status:           status,
		Timestamp:        timestamp.Now(),
		RecoveryAttempts: recovery,
		Suggestions:      suggestionsFor(err),
	}
}

// finish records the request everywhere it is observed: the rolling
// request log, metrics, and the failure tracker. It returns res so call
// sites can return the finished result directly.
func (c *Client) finish(reqID, method, rawURL, host string, start time.Time, res Result, cause error) Result {
	elapsed := time.Since(start)

	if c.metrics != nil {
		c.metrics.RecordUpstreamRequest(serviceName, host, outcomeOf(res))
		c.metrics.RecordRequestDuration(serviceName, host, elapsed)
	}

	if c.reqlog != nil {
		c.reqlog.Record(requestlog.Record{
			ID:         reqID,
			Method:     method,
			Endpoint:   rawURL,
			Status:     res.Status,
			DurationMs: float64(elapsed) / float64(time.Millisecond),
			Success:    res.OK,
			Error:      res.Error,
			Source:     res.Source,
			Attempts:   res.RecoveryAttempts,
		})
	}

	if c.failures != nil {
		switch {
		case res.OK && (res.Source == SourceNetwork || res.Source == SourceMirror || res.Source == SourceProxy):
			c.failures.RecordSuccess(rawURL)
		case cause != nil:
			c.failures.RecordFailure(rawURL, cause)
		}
	}

	return res
}

// outcomeOf maps a result to its metrics outcome label.
func outcomeOf(res Result) string {
	switch res.Source {
	case SourceCache:
		return "cached"
	case SourceMirror:
		return "mirror"
	case SourceProxy:
		return "proxy"
	case SourceStaleCache:
		return "stale"
	default:
		if res.OK {
			return "success"
		}
		return "error"
	}
}

// resolve merges the request options over the client defaults. Caching
// defaults on for GET and off for everything else.
func (c *Client) resolve(method string, opts []RequestOption) *requestConfig {
	rc := &requestConfig{
		ttl:        c.defaults.TTL,
		timeout:    c.defaults.Timeout,
		retries:    c.defaults.Retries,
		retryDelay: c.defaults.RetryDelay,
	}
	for _, opt := range opts {
		opt(rc)
	}
	if !rc.cacheSet {
		rc.cache = method == http.MethodGet
	}
	return rc
}

// waitLimiter blocks until the per-host rate limiter admits the attempt.
func (c *Client) waitLimiter(ctx context.Context, host string) error {
	if c.rateLimit <= 0 || host == "" {
		return nil
	}

	c.limiterMu.Lock()
	lim, found := c.limiters[host]
	if !found {
		lim = rate.NewLimiter(c.rateLimit, c.rateBurst)
		c.limiters[host] = lim
	}
	c.limiterMu.Unlock()

	return lim.Wait(ctx)
}

// unwrapRetry peels the retry engine's wrapping off the causal error. It
// unwraps a single level so classified errors keep their own wrapping.
func unwrapRetry(err error) error {
	var nre *retry.NonRetryableError
	if stderrors.As(err, &nre) {
		return nre.Err
	}
	if unwrapped := stderrors.Unwrap(err); unwrapped != nil {
		return unwrapped
	}
	return err
}

// hostOf extracts the hostname for metrics labels and rate limiting.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
