package cache

import (
	"encoding/json"
	"testing"
	"time"
)

func TestConfig_UnmarshalJSON_DurationStrings(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Config
	}{
		{
			name: "duration strings",
			input: `{
				"enabled": true,
				"backend": "memory",
				"max_entries": 500,
				"default_ttl": "30s",
				"sweep_interval": "1m",
				"stale_for": "1h"
			}`,
			expected: Config{
				Enabled:       true,
				Backend:       BackendMemory,
				MaxEntries:    500,
				DefaultTTL:    30 * time.Second,
				SweepInterval: time.Minute,
				StaleFor:      time.Hour,
			},
		},
		{
			name: "integer nanoseconds",
			input: `{
				"enabled": true,
				"backend": "memory",
				"max_entries": 100,
				"default_ttl": 60000000000,
				"sweep_interval": 30000000000,
				"stale_for": 0
			}`,
			expected: Config{
				Enabled:       true,
				Backend:       BackendMemory,
				MaxEntries:    100,
				DefaultTTL:    time.Minute,
				SweepInterval: 30 * time.Second,
				StaleFor:      0,
			},
		},
		{
			name: "redis backend",
			input: `{
				"enabled": true,
				"backend": "redis",
				"default_ttl": "45s",
				"redis_url": "redis://localhost:6379/2",
				"redis_key_prefix": "agent:cache:"
			}`,
			expected: Config{
				Enabled:        true,
				Backend:        BackendRedis,
				DefaultTTL:     45 * time.Second,
				RedisURL:       "redis://localhost:6379/2",
				RedisKeyPrefix: "agent:cache:",
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var cfg Config
			if err := json.Unmarshal([]byte(test.input), &cfg); err != nil {
				t.Fatalf("Unexpected unmarshal error: %v", err)
			}
			if cfg != test.expected {
				t.Errorf("Expected %+v, got %+v", test.expected, cfg)
			}
		})
	}
}

func TestConfig_UnmarshalJSON_BadDuration(t *testing.T) {
	var cfg Config
	err := json.Unmarshal([]byte(`{"default_ttl": "not-a-duration"}`), &cfg)
	if err == nil {
		t.Error("Expected error for invalid duration string")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(_ *Config) {}, false},
		{"disabled skips validation", func(c *Config) { c.Enabled = false; c.MaxEntries = -1 }, false},
		{"zero max entries", func(c *Config) { c.MaxEntries = 0 }, true},
		{"zero sweep interval", func(c *Config) { c.SweepInterval = 0 }, true},
		{"zero ttl", func(c *Config) { c.DefaultTTL = 0 }, true},
		{"negative stale window", func(c *Config) { c.StaleFor = -time.Second }, true},
		{"unknown backend", func(c *Config) { c.Backend = "tape" }, true},
		{"redis missing url", func(c *Config) { c.Backend = BackendRedis; c.RedisURL = "" }, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.mutate(&cfg)
			err := cfg.Validate()
			if test.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !test.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}
