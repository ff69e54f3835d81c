package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/cache"
)

// Config represents the complete agent configuration.
type Config struct {
	Agent     AgentConfig      `json:"agent"`
	Log       LogConfig        `json:"log,omitempty"`
	Client    ClientConfig     `json:"client,omitempty"`
	Cache     cache.Config     `json:"cache,omitempty"`
	Mirrors   MirrorsConfig    `json:"mirrors,omitempty"`
	Relay     RelayConfig      `json:"relay,omitempty"`
	Bus       BusConfig        `json:"bus,omitempty"`
	Poller    PollerConfig     `json:"poller,omitempty"`
	Sentiment SentimentConfig  `json:"sentiment,omitempty"`
	Server    ServerConfig     `json:"server,omitempty"`
	Store     StoreConfig      `json:"store,omitempty"`
	Providers []ProviderConfig `json:"providers,omitempty"`
}

// AgentConfig identifies this agent instance.
type AgentConfig struct {
	ID          string `json:"id"`                    // instance identifier, e.g. "cryptodt-west-1"
	Environment string `json:"environment,omitempty"` // "prod", "dev", "test"
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // json, text
}

// ClientConfig holds the fetch client defaults. Per-request options
// override these.
type ClientConfig struct {
	UserAgent  string        `json:"user_agent,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`     // per-attempt budget
	TTL        time.Duration `json:"ttl,omitempty"`         // default cache lifetime
	SlowTTL    time.Duration `json:"slow_ttl,omitempty"`    // lifetime for slow-moving resources
	Retries    int           `json:"retries,omitempty"`     // retry attempts after the first try
	RetryDelay time.Duration `json:"retry_delay,omitempty"` // backoff base
	ProxyURL   string        `json:"proxy_url,omitempty"`   // proxy relay endpoint, empty disables
	RateLimit  float64       `json:"rate_limit,omitempty"`  // per-host requests per second
	RateBurst  int           `json:"rate_burst,omitempty"`  // per-host burst allowance
}

// MirrorsConfig points at the host-mirror fallback table.
type MirrorsConfig struct {
	Enabled bool   `json:"enabled"`
	File    string `json:"file,omitempty"` // YAML mirror table path
}

// RelayConfig holds WebSocket event relay settings.
type RelayConfig struct {
	Enabled              bool          `json:"enabled"`
	URL                  string        `json:"url,omitempty"` // ws:// or wss:// endpoint
	HeartbeatInterval    time.Duration `json:"heartbeat_interval,omitempty"`
	ReconnectDelay       time.Duration `json:"reconnect_delay,omitempty"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts,omitempty"`
	HandshakeTimeout     time.Duration `json:"handshake_timeout,omitempty"`
}

// BusConfig holds NATS republishing settings.
type BusConfig struct {
	Enabled          bool          `json:"enabled"`
	URLs             []string      `json:"urls,omitempty"`
	Name             string        `json:"name,omitempty"`           // connection name shown in NATS monitoring
	SubjectPrefix    string        `json:"subject_prefix,omitempty"` // events publish under <prefix>.<type>
	MaxReconnects    int           `json:"max_reconnects,omitempty"`
	ReconnectWait    time.Duration `json:"reconnect_wait,omitempty"`
	Username         string        `json:"username,omitempty"`
	Password         string        `json:"password,omitempty"`
	Token            string        `json:"token,omitempty"`
	BreakerThreshold int           `json:"breaker_threshold,omitempty"`  // consecutive failures before the breaker opens
	BreakerBaseDelay time.Duration `json:"breaker_base_delay,omitempty"` // first probe delay, doubles per failed probe
}

// PollerConfig holds the provider polling cadence.
type PollerConfig struct {
	Enabled           bool          `json:"enabled"`
	HealthInterval    time.Duration `json:"health_interval,omitempty"`
	MarketIntervalMin time.Duration `json:"market_interval_min,omitempty"`
	MarketIntervalMax time.Duration `json:"market_interval_max,omitempty"`
	MaxConcurrent     int           `json:"max_concurrent,omitempty"` // concurrent provider probes
}

// SentimentConfig holds fear/greed polling and the optional classifier.
type SentimentConfig struct {
	Enabled     bool             `json:"enabled"`
	Endpoint    string           `json:"endpoint,omitempty"`
	Interval    time.Duration    `json:"interval,omitempty"`
	HistorySize int              `json:"history_size,omitempty"`
	Classifier  ClassifierConfig `json:"classifier,omitempty"`
}

// ClassifierConfig configures the OpenAI-compatible headline classifier.
type ClassifierConfig struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url,omitempty"` // empty uses the default OpenAI endpoint
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
}

// ServerConfig holds the operations API listener settings.
type ServerConfig struct {
	Enabled         bool          `json:"enabled"`
	Addr            string        `json:"addr,omitempty"`
	ReadTimeout     time.Duration `json:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `json:"write_timeout,omitempty"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout,omitempty"`
}

// StoreConfig holds the request-log archive settings.
type StoreConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"` // bbolt database file
}

// ProviderConfig overlays one entry of the built-in provider registry.
// A nil Enabled keeps the registry default.
type ProviderConfig struct {
	Name        string `json:"name"`
	BaseURL     string `json:"base_url,omitempty"`
	Category    string `json:"category,omitempty"`
	HealthPath  string `json:"health_path,omitempty"`
	MarketPath  string `json:"market_path,omitempty"`
	RequiresKey bool   `json:"requires_key,omitempty"`
	APIKey      string `json:"api_key,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{
		config: cfg,
	}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	// Validate before updating
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	// Use JSON marshaling/unmarshaling for deep copy
	data, err := json.Marshal(c)
	if err != nil {
		// Fallback to shallow copy if marshaling fails
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		// Fallback to shallow copy if unmarshaling fails
		copied := *c
		return &copied
	}

	return &clone
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: false,
		envPrefix:  "CRYPTODT",
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	// Start with defaults
	cfg := l.getDefaults()

	// Load each layer and merge using map-based approach
	for _, path := range l.layers {
		rawConfig, err := l.loadRawJSON(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg = l.mergeFromMap(cfg, rawConfig)
	}

	// Apply environment overrides
	l.applyEnvOverrides(cfg)

	// Validate if enabled
	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// getDefaults returns default configuration. A config file only needs to
// state what differs from these.
func (l *Loader) getDefaults() *Config {
	return &Config{
		Agent: AgentConfig{
			Environment: "dev",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Client: ClientConfig{
			UserAgent:  "crypto-dt-agent/1.0",
			Timeout:    8 * time.Second,
			TTL:        30 * time.Second,
			SlowTTL:    60 * time.Second,
			Retries:    3,
			RetryDelay: 1 * time.Second,
			RateLimit:  4,
			RateBurst:  8,
		},
		Cache: cache.DefaultConfig(),
		Mirrors: MirrorsConfig{
			Enabled: true,
			File:    "mirrors.yaml",
		},
		Relay: RelayConfig{
			Enabled:              false, // needs a URL before it can run
			HeartbeatInterval:    30 * time.Second,
			ReconnectDelay:       3 * time.Second,
			MaxReconnectAttempts: 5,
			HandshakeTimeout:     10 * time.Second,
		},
		Bus: BusConfig{
			Enabled:          false,
			URLs:             []string{"nats://localhost:4222"},
			Name:             "cryptodt",
			SubjectPrefix:    "crypto.events",
			MaxReconnects:    -1,
			ReconnectWait:    2 * time.Second,
			BreakerThreshold: 5,
			BreakerBaseDelay: 1 * time.Second,
		},
		Poller: PollerConfig{
			Enabled:           true,
			HealthInterval:    60 * time.Second,
			MarketIntervalMin: 30 * time.Second,
			MarketIntervalMax: 60 * time.Second,
			MaxConcurrent:     4,
		},
		Sentiment: SentimentConfig{
			Enabled:     true,
			Endpoint:    "https://api.alternative.me/fng/",
			Interval:    15 * time.Minute,
			HistorySize: 50,
			Classifier: ClassifierConfig{
				Enabled: false,
				Model:   "gpt-4o-mini",
			},
		},
		Server: ServerConfig{
			Enabled:         true,
			Addr:            ":8090",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Enabled: false,
			Path:    "cryptodt.db",
		},
	}
}

// loadRawJSON loads configuration from a JSON file as a map
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	// Use secure file reading with validation
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	// Validate JSON depth to prevent DoS
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	// Unmarshal into map
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return nil, err
	}

	// Convert duration strings
	l.parseDurations(rawConfig)

	return rawConfig, nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) *Config {
	if override == nil {
		return base
	}

	// Marshal the base config to JSON then to map
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base
	}

	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return base
	}

	// Deep merge the maps
	mergedMap := l.deepMergeMaps(baseMap, override)

	// Convert back to Config
	mergedJSON, err := json.Marshal(mergedMap)
	if err != nil {
		return base
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return base
	}

	return &merged
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func (l *Loader) deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any)

	// Copy base values
	for k, v := range base {
		result[k] = v
	}

	// Override with values from override map
	for k, v := range override {
		if v == nil {
			continue
		}

		// If both base and override have maps at this key, merge them
		if baseMap, baseOk := base[k].(map[string]any); baseOk {
			if overrideMap, overrideOk := v.(map[string]any); overrideOk {
				result[k] = l.deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}

		// Otherwise, override takes precedence
		result[k] = v
	}

	return result
}

// durationFields names the config keys that accept duration strings
// ("30s", "1m") in the JSON file. The cache section handles its own
// durations via cache.Config's UnmarshalJSON.
var durationFields = map[string][]string{
	"client":    {"timeout", "ttl", "slow_ttl", "retry_delay"},
	"relay":     {"heartbeat_interval", "reconnect_delay", "handshake_timeout"},
	"bus":       {"reconnect_wait", "breaker_base_delay"},
	"poller":    {"health_interval", "market_interval_min", "market_interval_max"},
	"sentiment": {"interval"},
	"server":    {"read_timeout", "write_timeout", "shutdown_timeout"},
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func (l *Loader) parseDurations(data map[string]any) {
	for section, keys := range durationFields {
		sectionMap, ok := data[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			str, ok := sectionMap[key].(string)
			if !ok {
				continue
			}
			if d, err := time.ParseDuration(str); err == nil {
				sectionMap[key] = d.Nanoseconds()
			}
		}
	}
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) {
	// Agent identity
	l.override("AGENT_ID", func(v string) { cfg.Agent.ID = v })
	l.override("ENVIRONMENT", func(v string) { cfg.Agent.Environment = v })

	// Logging
	l.override("LOG_LEVEL", func(v string) { cfg.Log.Level = v })
	l.override("LOG_FORMAT", func(v string) { cfg.Log.Format = v })

	// Client
	l.override("PROXY_URL", func(v string) { cfg.Client.ProxyURL = v })

	// Cache
	l.override("REDIS_URL", func(v string) { cfg.Cache.RedisURL = v })

	// Mirrors
	l.override("MIRRORS_FILE", func(v string) { cfg.Mirrors.File = v })

	// Relay
	l.override("RELAY_URL", func(v string) { cfg.Relay.URL = v })

	// Bus
	l.override("NATS_URLS", func(v string) { cfg.Bus.URLs = strings.Split(v, ",") })
	l.override("NATS_USERNAME", func(v string) { cfg.Bus.Username = v })
	l.override("NATS_PASSWORD", func(v string) { cfg.Bus.Password = v })
	l.override("NATS_TOKEN", func(v string) { cfg.Bus.Token = v })

	// Server
	l.override("SERVER_ADDR", func(v string) { cfg.Server.Addr = v })

	// Store
	l.override("STORE_PATH", func(v string) { cfg.Store.Path = v })

	// Sentiment classifier
	l.override("OPENAI_API_KEY", func(v string) { cfg.Sentiment.Classifier.APIKey = v })
	l.override("OPENAI_BASE_URL", func(v string) { cfg.Sentiment.Classifier.BaseURL = v })
}

// override applies one environment variable if it is set and passes
// validation. Oversized or null-byte values are ignored with a warning.
func (l *Loader) override(suffix string, apply func(string)) {
	key := l.envPrefix + "_" + suffix
	val := os.Getenv(key)
	if val == "" {
		return
	}
	if err := validateEnvVar(key, val); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "WARNING: ignoring %s: %v\n", key, err)
		return
	}
	apply(val)
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// Use secure file writing with validation
	return safeWriteFile(path, data)
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
