package timestamp

import (
	"testing"
	"time"
)

var (
	testTime   = time.Date(2026, 8, 25, 12, 30, 45, 123000000, time.UTC)
	testTimeMs = int64(1787661045123)
)

func TestNow(t *testing.T) {
	before := time.Now().UnixMilli()
	ts := Now()
	after := time.Now().UnixMilli()

	if ts < before || ts > after {
		t.Errorf("Now() = %d, expected between %d and %d", ts, before, after)
	}
}

func TestToUnixMs(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected int64
	}{
		{"normal time", testTime, testTimeMs},
		{"zero time", time.Time{}, 0},
		{"unix epoch", time.Unix(0, 0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToUnixMs(tt.input)
			if result != tt.expected {
				t.Errorf("ToUnixMs(%v) = %d, expected %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFromUnixMs(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected time.Time
	}{
		{"normal timestamp", testTimeMs, time.UnixMilli(testTimeMs)},
		{"zero timestamp", 0, time.Time{}},
		{"negative timestamp", -1000, time.UnixMilli(-1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FromUnixMs(tt.input)
			if !result.Equal(tt.expected) {
				t.Errorf("FromUnixMs(%d) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected string
	}{
		{"normal timestamp", testTimeMs, "2026-08-25T12:30:45Z"},
		{"zero timestamp", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Format(tt.input)
			if result != tt.expected {
				t.Errorf("Format(%d) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected int64
	}{
		{"nil", nil, 0},
		{"millisecond int64", int64(1787661045123), 1787661045123},
		{"second int64 upconverted", int64(1787661045), 1787661045000},
		{"zero int64", int64(0), 0},
		{"millisecond float64", float64(1787661045123), 1787661045123},
		{"second float64", float64(1787661045), 1787661045000},
		{"plain int", int(1787661045), 1787661045000},
		{"rfc3339 string", "2026-08-25T12:30:45Z", 1787661045000},
		{"numeric string seconds", "1787661045", 1787661045000},
		{"numeric string millis", "1787661045123", 1787661045123},
		{"float string", "1787661045.5", 1787661045500},
		{"empty string", "", 0},
		{"garbage string", "not-a-time", 0},
		{"time.Time", testTime, testTimeMs},
		{"unsupported type", struct{}{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(tt.input)
			if result != tt.expected {
				t.Errorf("Parse(%v) = %d, expected %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParse_PointerTime(t *testing.T) {
	if got := Parse(&testTime); got != testTimeMs {
		t.Errorf("Parse(*time.Time) = %d, expected %d", got, testTimeMs)
	}

	var nilTime *time.Time
	if got := Parse(nilTime); got != 0 {
		t.Errorf("Parse(nil *time.Time) = %d, expected 0", got)
	}
}

func TestIsZero(t *testing.T) {
	if !IsZero(0) {
		t.Error("IsZero(0) should be true")
	}
	if IsZero(testTimeMs) {
		t.Error("IsZero(non-zero) should be false")
	}
}

func TestSince(t *testing.T) {
	if Since(0) != 0 {
		t.Error("Since(0) should be 0")
	}

	past := Now() - 5000
	d := Since(past)
	if d < 4*time.Second || d > 10*time.Second {
		t.Errorf("Since(now-5s) = %v, expected around 5s", d)
	}
}
