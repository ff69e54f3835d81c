package errors

import (
	"errors"
	"fmt"
	"time"
)

// The request error taxonomy. Every failure surfaced by the fetch client is
// one of these types so callers can branch on errors.As without string
// matching.

// HTTPError reports a non-success HTTP status from an upstream.
type HTTPError struct {
	Status int
	URL    string
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d from %s", e.Status, e.URL)
}

// Retryable reports whether the status warrants another attempt.
// 429 and the 5xx range are retryable; every other status is not.
func (e *HTTPError) Retryable() bool {
	return e.Status == 429 || (e.Status >= 500 && e.Status < 600)
}

// TimeoutError reports that a single attempt exceeded its time budget.
type TimeoutError struct {
	URL    string
	Budget time.Duration
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.URL, e.Budget)
}

// NetworkError reports a transport-level failure (refused connection,
// reset, DNS failure) before any HTTP status was received.
type NetworkError struct {
	URL string
	Err error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure for %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying transport error
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ParseError reports a response body that could not be decoded according
// to its Content-Type.
type ParseError struct {
	ContentType string
	Err         error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("decode %s body: %v", e.ContentType, e.Err)
}

// Unwrap returns the underlying decode error
func (e *ParseError) Unwrap() error {
	return e.Err
}

// InvalidBodyError reports a caller-supplied request body that could not
// be serialized. It is reported before any network attempt is made.
type InvalidBodyError struct {
	Err error
}

// Error implements the error interface
func (e *InvalidBodyError) Error() string {
	return fmt.Sprintf("invalid request body: %v", e.Err)
}

// Unwrap returns the underlying serialization error
func (e *InvalidBodyError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a request error warrants another attempt.
// Transport failures and timeouts are retryable. HTTP errors defer to
// HTTPError.Retryable. Parse and body errors never are: the bytes arrived,
// retrying produces the same bytes.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var he *HTTPError
	if errors.As(err, &he) {
		return he.Retryable()
	}

	var pe *ParseError
	var be *InvalidBodyError
	if errors.As(err, &pe) || errors.As(err, &be) {
		return false
	}

	var te *TimeoutError
	var ne *NetworkError
	if errors.As(err, &te) || errors.As(err, &ne) {
		return true
	}

	return IsTransient(err)
}
