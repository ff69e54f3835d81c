// Package config provides configuration management for the crypto data agent.
//
// This package handles loading and validation of agent configuration from
// JSON files and environment variables, with layered overrides for different
// deployment environments.
//
// # Core Components
//
// Config: Main configuration structure containing agent identity, fetch
// client tuning, cache backend selection, relay and bus connection details,
// polling cadences, and the provider registry overlay.
//
// SafeConfig: Thread-safe wrapper using RWMutex and deep cloning to prevent
// concurrent access issues and accidental mutations.
//
// Loader: Loads configuration with layer merging (base + overrides) and
// environment variable substitution for flexible deployment scenarios.
//
// # Basic Usage
//
// Loading configuration from files with layer merging:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.json")
//	loader.AddLayer("config/production.json") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Thread-Safe Access
//
// SafeConfig ensures thread-safe access to configuration:
//
//	safeConfig := config.NewSafeConfig(cfg)
//
//	// Read config (deep copy returned, safe to use)
//	current := safeConfig.Get()
//
//	// Replace config atomically; the new config is validated first
//	next := current.Clone()
//	next.Poller.HealthInterval = 30 * time.Second
//	if err := safeConfig.Update(next); err != nil {
//		log.Printf("rejected config update: %v", err)
//	}
//
// # Durations
//
// Any duration field accepts Go duration strings in JSON:
//
//	{
//	  "client": {"timeout": "8s", "retry_delay": "1s"},
//	  "poller": {"health_interval": "60s"}
//	}
//
// # Environment Variable Overrides
//
// Configuration values can be overridden using environment variables:
//
//	# Override the agent ID
//	export CRYPTODT_AGENT_ID="cryptodt-west-1"
//
//	# Override NATS URLs (comma-separated)
//	export CRYPTODT_NATS_URLS="nats://server1:4222,nats://server2:4222"
//
//	# Credentials stay out of config files
//	export CRYPTODT_NATS_PASSWORD="..."
//	export CRYPTODT_OPENAI_API_KEY="..."
//
// # Layer Merging
//
// Configuration layers are merged with last-wins semantics:
//
//	base.json:
//	  {"agent": {"id": "dev", "environment": "dev"}}
//
//	production.json:
//	  {"agent": {"id": "prod"}}
//
//	Result:
//	  {"agent": {"id": "prod", "environment": "dev"}}
//
// # Security
//
// The package includes security validation:
//   - File size limits (1MB max) to prevent memory exhaustion
//   - JSON depth validation (32 levels max) to prevent DoS attacks
//   - Path validation to prevent directory traversal
//   - Regular file checks (no symlinks or device files)
//   - Environment values are shape-checked, never logged
package config
