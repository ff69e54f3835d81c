// Package errors provides standardized error handling patterns for crypto-dt-source.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing).
//
// On top of the classes it defines the request error taxonomy used by the
// fetch client: HTTPError, TimeoutError, NetworkError, ParseError, and
// InvalidBodyError. The taxonomy lets retry and fallback logic branch on
// errors.As instead of string matching.
//
// # Error Classification
//
// Errors are classified based on their type or content:
//
//   - Transient: network timeouts, connection issues, rate limiting, temporary unavailability (retry recommended)
//   - Invalid: malformed bodies, undecodable responses, bad configuration (do not retry)
//   - Fatal: missing configuration, exhausted quotas, corrupted state (stop processing)
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
// Use standard error variables for known conditions:
//
//	if !connected {
//	    return errors.ErrNotConnected
//	}
//
// Wrap errors with context for debugging:
//
//	if err := relay.Connect(ctx); err != nil {
//	    return errors.Wrap(err, "Relay", "Connect", "dial websocket")
//	}
//
// Decide retries with the taxonomy:
//
//	if err := attempt(); err != nil {
//	    if errors.Retryable(err) {
//	        // back off and try again
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// This format enables consistent log parsing and operational monitoring.
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")
//	errors.WrapInvalid(err, "Component", "Method", "action")
//	errors.WrapFatal(err, "Component", "Method", "action")
//
// The generic Wrap() preserves the original error's classification through
// the chain.
//
// # Request Taxonomy
//
// The fetch client reports every failure as one of the taxonomy types.
// Retryability is a property of the type, not of the call site:
//
//   - HTTPError: retryable only for 429 and 5xx
//   - TimeoutError, NetworkError: always retryable
//   - ParseError, InvalidBodyError: never retryable, the payload will not change
//
// errors.Retryable(err) applies those rules through arbitrary wrapping.
package errors
