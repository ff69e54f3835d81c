package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestHTTPError_Retryable(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{599, true},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{418, false},
		{200, false},
	}

	for _, test := range tests {
		t.Run(fmt.Sprintf("status_%d", test.status), func(t *testing.T) {
			he := &HTTPError{Status: test.status, URL: "https://api.example.com/v1/coins"}
			if he.Retryable() != test.retryable {
				t.Errorf("status %d: expected retryable=%v", test.status, test.retryable)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"http 500", &HTTPError{Status: 500, URL: "u"}, true},
		{"http 429", &HTTPError{Status: 429, URL: "u"}, true},
		{"http 404", &HTTPError{Status: 404, URL: "u"}, false},
		{"http 400", &HTTPError{Status: 400, URL: "u"}, false},
		{"timeout", &TimeoutError{URL: "u", Budget: time.Second}, true},
		{"network", &NetworkError{URL: "u", Err: fmt.Errorf("connection refused")}, true},
		{"parse", &ParseError{ContentType: "application/json", Err: fmt.Errorf("unexpected EOF")}, false},
		{"invalid body", &InvalidBodyError{Err: fmt.Errorf("cannot marshal chan")}, false},
		{"rate limited sentinel", ErrRateLimited, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Retryable(test.err); got != test.expected {
				t.Errorf("expected %v, got %v for %v", test.expected, got, test.err)
			}
		})
	}
}

func TestRetryable_WrappedHTTPError(t *testing.T) {
	// Retryability must survive wrapping.
	he := &HTTPError{Status: 503, URL: "https://api.example.com/health"}
	wrapped := Wrap(he, "Client", "Request", "probe upstream")

	if !Retryable(wrapped) {
		t.Error("wrapped 503 should stay retryable")
	}

	var out *HTTPError
	if !errors.As(wrapped, &out) {
		t.Fatal("errors.As should find HTTPError through the wrap")
	}
	if out.Status != 503 {
		t.Errorf("expected status 503, got %d", out.Status)
	}
}

func TestTaxonomyUnwrap(t *testing.T) {
	base := fmt.Errorf("connection reset by peer")
	ne := &NetworkError{URL: "https://api.example.com", Err: base}
	if !errors.Is(ne, base) {
		t.Error("NetworkError should unwrap to transport error")
	}

	decodeErr := fmt.Errorf("invalid character 'x'")
	pe := &ParseError{ContentType: "application/json", Err: decodeErr}
	if !errors.Is(pe, decodeErr) {
		t.Error("ParseError should unwrap to decode error")
	}

	marshalErr := fmt.Errorf("unsupported type")
	be := &InvalidBodyError{Err: marshalErr}
	if !errors.Is(be, marshalErr) {
		t.Error("InvalidBodyError should unwrap to marshal error")
	}
}
