// Package client provides the resilient fetch client that every upstream
// provider call goes through. It exists because crypto data providers rate
// limit aggressively, fail in bursts, and sit behind networks that block
// them outright; a bare http.Client turns each of those into a caller
// problem. This client turns them into a degraded answer instead.
//
// # Escalation Ladder
//
// A request walks the tiers in order and stops at the first one that
// produces data:
//
//  1. Cache: a fresh entry for "{METHOD}:{url}" is returned immediately.
//  2. Network: the request runs with a per-attempt timeout. 429, 5xx, and
//     transport failures retry with exponential backoff and jitter; other
//     4xx and undecodable bodies stop the ladder.
//  3. Mirrors: the URL is rewritten against the host-mirror table and each
//     mirror gets a single attempt.
//  4. Proxy: the whole request is POSTed to the relay endpoint, which
//     performs it from the backend's network position.
//  5. Stale cache: an expired entry is served with a warning.
//
// Only when every tier comes up empty does the caller see a failure, and
// even then it is a structured Result, never a Go error:
//
//	res := c.Get(ctx, "https://api.coingecko.com/api/v3/ping")
//	if !res.OK {
//	    log.Warn("ping failed", "error", res.Error, "suggestions", res.Suggestions)
//	    return
//	}
//	use(res.Data)
//
// # Construction
//
// Every collaborator is optional. A tier whose collaborator is missing is
// skipped, so a bare New() still fetches with retries:
//
//	c := client.New(
//	    client.WithCache(store),
//	    client.WithMirrors(mirror.Default()),
//	    client.WithProxy("https://relay.example.com/api/proxy"),
//	    client.WithMetrics(registry),
//	    client.WithRequestLog(reqlog),
//	    client.WithFailureTracker(tracker),
//	)
//
// # Per-Request Tuning
//
// Request options override the client defaults for one call:
//
//	res := c.Get(ctx, url,
//	    client.WithTTL(5*time.Minute),
//	    client.WithRetries(0),
//	    client.WithHeader("X-CMC_PRO_API_KEY", key),
//	)
//
// Caching defaults on for GET and off for other methods; CacheResponse
// overrides either way. Identical concurrent requests are not coalesced:
// two callers asking for the same cold URL both go to the network.
//
// # Observability
//
// Each request lands exactly one record in the rolling request log, one
// outcome in the upstream request metrics, and one success or failure mark
// in the endpoint failure tracker. Error strings are sanitized before they
// leave the package.
package client
