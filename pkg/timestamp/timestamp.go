// Package timestamp normalizes the timestamp formats crypto APIs send.
//
// The canonical in-repo format is int64 Unix milliseconds (UTC): it is what
// the event envelope, the request logs, and the failure records carry.
// Upstream feeds disagree with each other — CoinGecko sends RFC3339 strings,
// exchange tickers send second-precision integers, some explorers send
// millisecond floats — so Parse accepts all of them and converts to the
// canonical form.
//
// Zero Value Semantics:
//   - A timestamp value of 0 means "not set" or "unknown"
//   - Functions handle zero values gracefully, returning appropriate defaults
package timestamp

import (
	"strconv"
	"time"
)

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time.
// Returns zero time if timestamp is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Format converts Unix milliseconds to RFC3339 string for display.
// Returns empty string if timestamp is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// Parse converts the timestamp formats upstream feeds send to Unix
// milliseconds. Supports:
//   - int64/int/int32 (milliseconds if > 1e12, otherwise seconds)
//   - float64 (same threshold; JSON numbers decode to float64)
//   - string (RFC3339, or a numeric string in either precision)
//   - time.Time / *time.Time
//   - nil (returns 0)
//
// Returns 0 for invalid input or parsing errors.
func Parse(input any) int64 {
	if input == nil {
		return 0
	}

	switch v := input.(type) {
	case int64:
		if v == 0 {
			return 0
		}
		// Above 1e12 it cannot be a second-precision timestamp for any
		// plausible date, so treat it as milliseconds.
		if v > 1e12 {
			return v
		}
		return v * 1000

	case float64:
		if v == 0 {
			return 0
		}
		if v > 1e12 {
			return int64(v)
		}
		return int64(v * 1000)

	case int:
		return Parse(int64(v))

	case int32:
		return Parse(int64(v))

	case string:
		if v == "" {
			return 0
		}

		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return ToUnixMs(t)
		}

		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			return Parse(ts)
		}

		if ts, err := strconv.ParseFloat(v, 64); err == nil {
			return Parse(ts)
		}

		return 0

	case time.Time:
		return ToUnixMs(v)

	case *time.Time:
		if v == nil {
			return 0
		}
		return ToUnixMs(*v)

	default:
		return 0
	}
}

// IsZero checks if a timestamp is unset (zero).
func IsZero(ms int64) bool {
	return ms == 0
}

// Since returns the duration since the given timestamp.
// Returns 0 if timestamp is zero.
func Since(ms int64) time.Duration {
	if ms == 0 {
		return 0
	}
	return time.Since(time.UnixMilli(ms))
}
