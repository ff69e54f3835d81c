package config

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// validConfig builds a configuration that passes Validate.
func validConfig(agentID string) *Config {
	cfg := NewLoader().getDefaults()
	cfg.Agent.ID = agentID
	return cfg
}

func TestSafeConfig_ThreadSafety(t *testing.T) {
	safeConfig := NewSafeConfig(validConfig("base-agent"))

	const numGoroutines = 100
	const numOperations = 1000

	var wg sync.WaitGroup
	errors := make(chan error, numGoroutines)

	// Start multiple goroutines doing concurrent reads
	for i := 0; i < numGoroutines/2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				cfg := safeConfig.Get()
				if cfg == nil {
					errors <- fmt.Errorf("Got nil config")
					return
				}
				if cfg.Agent.ID != "base-agent" && cfg.Agent.ID != "updated-agent" {
					errors <- fmt.Errorf("Unexpected agent ID: %s", cfg.Agent.ID)
					return
				}
			}
		}()
	}

	// Start multiple goroutines doing concurrent updates
	for i := 0; i < numGoroutines/2; i++ {
		wg.Add(1)
		go func(_ int) {
			defer wg.Done()
			for j := 0; j < numOperations/10; j++ { // Fewer updates than reads
				if err := safeConfig.Update(validConfig("updated-agent")); err != nil {
					errors <- fmt.Errorf("Update failed: %w", err)
					return
				}
			}
		}(i)
	}

	// Wait for all goroutines to complete
	done := make(chan bool)
	go func() {
		wg.Wait()
		close(done)
	}()

	// Wait for completion or timeout
	select {
	case <-done:
		// Check for errors
		close(errors)
		for err := range errors {
			t.Fatalf("Concurrent access error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Test timed out - possible deadlock")
	}
}

func TestSafeConfig_NilHandling(t *testing.T) {
	// Test with nil config
	safeConfig := NewSafeConfig(nil)

	cfg := safeConfig.Get()
	if cfg == nil {
		t.Error("SafeConfig.Get() should not return nil even with nil base config")
	}

	// Test updating with nil
	err := safeConfig.Update(nil)
	if err == nil {
		t.Error("SafeConfig.Update(nil) should return an error")
	}
}

func TestSafeConfig_ValidationDuringUpdate(t *testing.T) {
	safeConfig := NewSafeConfig(validConfig("original-agent"))

	// Try to update with invalid config (missing agent ID)
	invalidConfig := NewLoader().getDefaults()

	err := safeConfig.Update(invalidConfig)
	if err == nil {
		t.Error("Update with invalid config should fail validation")
	}

	// Original config should remain unchanged
	cfg := safeConfig.Get()
	if cfg.Agent.ID != "original-agent" {
		t.Error("Original config was modified after failed update")
	}
}

func TestSafeConfig_DeepCopy(t *testing.T) {
	baseConfig := validConfig("copy-agent")
	baseConfig.Bus.URLs = []string{"nats://a:4222", "nats://b:4222"}
	baseConfig.Providers = []ProviderConfig{
		{Name: "coingecko", BaseURL: "https://api.coingecko.com/api/v3"},
	}

	safeConfig := NewSafeConfig(baseConfig)

	// Get two copies
	cfg1 := safeConfig.Get()
	cfg2 := safeConfig.Get()

	// Modify cfg1
	cfg1.Agent.ID = "modified"
	cfg1.Bus.URLs = append(cfg1.Bus.URLs, "nats://c:4222")
	cfg1.Providers = append(cfg1.Providers, ProviderConfig{Name: "injected"})

	// cfg2 should be unchanged
	if cfg2.Agent.ID != "copy-agent" {
		t.Error("Deep copy failed - cfg2 was affected by cfg1 modification")
	}

	if len(cfg2.Bus.URLs) != 2 {
		t.Error("Deep copy failed - cfg2 bus URLs were affected")
	}

	if len(cfg2.Providers) != 1 {
		t.Error("Deep copy failed - cfg2 providers were affected")
	}

	// Original config should also be unchanged
	originalCfg := safeConfig.Get()
	if originalCfg.Agent.ID != "copy-agent" {
		t.Error("Original config was modified")
	}
}

func TestConfigClone(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{
			name:   "nil config",
			config: nil,
		},
		{
			name:   "empty config",
			config: &Config{},
		},
		{
			name: "full config",
			config: &Config{
				Agent: AgentConfig{
					ID:          "clone-agent",
					Environment: "prod",
				},
				Bus: BusConfig{
					URLs:          []string{"nats://localhost:4222"},
					ReconnectWait: 2 * time.Second,
				},
				Providers: []ProviderConfig{
					{Name: "coingecko"},
					{Name: "binance"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clone := tt.config.Clone()

			if tt.config == nil {
				if clone == nil {
					t.Error("Clone of nil should return empty config, not nil")
				}
				return
			}

			// Verify deep copy by modifying original slices
			if tt.config.Bus.URLs != nil {
				originalLen := len(tt.config.Bus.URLs)
				tt.config.Bus.URLs = append(tt.config.Bus.URLs, "nats://extra:4222")

				if len(clone.Bus.URLs) != originalLen {
					t.Error("Clone was affected by original modification")
				}
			}

			if tt.config.Providers != nil {
				originalLen := len(tt.config.Providers)
				tt.config.Providers = append(tt.config.Providers, ProviderConfig{Name: "extra"})

				if len(clone.Providers) != originalLen {
					t.Error("Clone was affected by original modification")
				}
			}

			// Durations survive the clone
			if tt.config.Bus.ReconnectWait != clone.Bus.ReconnectWait {
				t.Error("Clone lost duration value")
			}
		})
	}
}
