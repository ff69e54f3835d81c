package client

import (
	stderrors "errors"
	"net/http"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/timestamp"
)

// Result sources, recorded on every response so callers and the request
// log can tell which tier of the escalation ladder answered.
const (
	SourceNetwork    = "network"
	SourceCache      = "cache"
	SourceMirror     = "mirror"
	SourceProxy      = "proxy"
	SourceStaleCache = "stale-cache"
)

// WarningStale annotates results served from an expired cache entry.
const WarningStale = "Data may be outdated"

// Result is the outcome of a request. Request never returns a Go error;
// every failure path lands in a Result with OK false and a populated
// Error, so callers branch on OK instead of wrapping every call site in
// error plumbing.
type Result struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`

	// Error is the sanitized failure message when OK is false, or the
	// upstream's applicative error when a well-formed envelope carried
	// one.
	Error string `json:"error,omitempty"`

	// Status is the last HTTP status observed, when any response was
	// received at all.
	Status int `json:"status,omitempty"`

	// Source names the tier that produced Data: network, cache, mirror,
	// proxy, or stale-cache.
	Source string `json:"source,omitempty"`

	// Warning is set when Data is usable but degraded (stale-cache).
	Warning string `json:"warning,omitempty"`

	// Timestamp is when the result was produced, unix-ms.
	Timestamp int64 `json:"timestamp"`

	// RecoveryAttempts counts everything tried beyond the first attempt:
	// retries, mirror hosts, and the proxy escape.
	RecoveryAttempts int `json:"recovery_attempts,omitempty"`

	// Suggestions are remediation hints derived from the failure class.
	Suggestions []string `json:"suggestions,omitempty"`
}

// success builds an OK result from a tier that produced data.
func success(data any, status int, source string) Result {
	return Result{
		OK:        true,
		Data:      data,
		Status:    status,
		Source:    source,
		Timestamp: timestamp.Now(),
	}
}

// suggestionsFor maps a failure to remediation hints. Hints are keyed on
// the error taxonomy first, HTTP status second.
func suggestionsFor(err error) []string {
	if err == nil {
		return nil
	}

	var he *errors.HTTPError
	if stderrors.As(err, &he) {
		switch {
		case he.Status == http.StatusTooManyRequests:
			return []string{
				"Rate limited: lower the polling cadence for this provider",
				"Configure an API key to raise the quota",
			}
		case he.Status == http.StatusUnauthorized || he.Status == http.StatusForbidden:
			return []string{
				"Check the API key for this provider",
				"Verify the key has access to this endpoint",
			}
		case he.Status == http.StatusNotFound:
			return []string{
				"Verify the endpoint path for this provider",
			}
		case he.Status >= 500:
			return []string{
				"Upstream outage: retry shortly",
				"Add a mirror host for this provider",
			}
		default:
			return []string{
				"Inspect the request parameters",
			}
		}
	}

	var te *errors.TimeoutError
	if stderrors.As(err, &te) {
		return []string{
			"Raise the request timeout",
			"Check the provider's status page for degradation",
		}
	}

	var ne *errors.NetworkError
	if stderrors.As(err, &ne) {
		return []string{
			"Check connectivity and DNS resolution",
			"Configure the proxy relay if this network blocks the provider",
		}
	}

	var pe *errors.ParseError
	if stderrors.As(err, &pe) {
		return []string{
			"Upstream returned an unexpected format: inspect the raw response",
		}
	}

	var be *errors.InvalidBodyError
	if stderrors.As(err, &be) {
		return []string{
			"Fix the request body: it could not be serialized to JSON",
		}
	}

	return []string{
		"Retry the request",
		"Check the request log for the failure sequence",
	}
}

// statusOf extracts the HTTP status from a failure, when one was observed.
func statusOf(err error) int {
	var he *errors.HTTPError
	if stderrors.As(err, &he) {
		return he.Status
	}
	return 0
}
