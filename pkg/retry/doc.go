// Package retry provides simple exponential backoff retry logic for transient failures.
//
// # Overview
//
// This package is the single backoff engine behind the fetch client, the
// event relay, and connection management. One policy shape everywhere:
// exponential growth from InitialDelay, capped at MaxDelay, with optional
// jitter.
//
// # Core Functions
//
//   - Do: Execute function with retry and exponential backoff
//   - DoWithResult: Execute function with retry, returns both result and error
//
// # Configuration Presets
//
//   - DefaultConfig(): 4 attempts, 1s-30s delay (the request pipeline policy)
//   - Quick(): 10 attempts, 50ms-1s delay (startup probes)
//   - Persistent(): 30 attempts, 200ms-10s delay (critical connections)
//
// # Usage Examples
//
// Basic retry with defaults:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return client.Ping(ctx)
//	})
//
// Retry with result:
//
//	body, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() ([]byte, error) {
//	    return fetchBody(ctx, url)
//	})
//
// Stop retrying on permanent failures:
//
//	err := retry.Do(ctx, cfg, func() error {
//	    resp, err := attempt()
//	    if err != nil && !errors.Retryable(err) {
//	        return retry.NonRetryable(err)
//	    }
//	    return err
//	})
//
// Observe the delay sequence:
//
//	cfg.OnRetry = func(attempt int, err error, next time.Duration) {
//	    log.Warn("attempt failed", "attempt", attempt, "next_delay", next)
//	}
//
// # Design Philosophy
//
// This package is intentionally minimal:
//
//   - No circuit breakers (the bus package carries its own)
//   - No metrics collection (instrument via OnRetry at the call site)
//   - No error classification (callers mark errors NonRetryable)
//   - Just exponential backoff with jitter
//
// # Context Cancellation
//
// All retry operations respect context cancellation and will immediately stop
// retrying when the context is cancelled, either during operation execution or
// during backoff delay.
//
// # Thread Safety
//
// All functions are safe for concurrent use. The jitter mechanism uses a
// thread-safe random source to avoid contention.
package retry
