package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// Validate checks the whole configuration. It is called by SafeConfig.Update
// and by the loader when validation is enabled, so a bad file or environment
// override fails before any component starts.
func (c *Config) Validate() error {
	if c.Agent.ID == "" {
		return errors.New("agent.id is required")
	}

	if err := c.Log.validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Client.validate(); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Mirrors.validate(); err != nil {
		return fmt.Errorf("mirrors: %w", err)
	}
	if err := c.Relay.validate(); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if err := c.Bus.validate(); err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	if err := c.Poller.validate(); err != nil {
		return fmt.Errorf("poller: %w", err)
	}
	if err := c.Sentiment.validate(); err != nil {
		return fmt.Errorf("sentiment: %w", err)
	}
	if err := c.Server.validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Store.validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if p.BaseURL != "" {
			if err := validateHTTPURL(p.BaseURL); err != nil {
				return fmt.Errorf("providers[%d].base_url: %w", i, err)
			}
		}
	}

	return nil
}

func (c LogConfig) validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid level %q (must be debug, info, warn, or error)", c.Level)
	}
	switch c.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid format %q (must be json or text)", c.Format)
	}
	return nil
}

func (c ClientConfig) validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be positive, got %v", c.TTL)
	}
	if c.SlowTTL <= 0 {
		return fmt.Errorf("slow_ttl must be positive, got %v", c.SlowTTL)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries cannot be negative, got %d", c.Retries)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("retry_delay must be positive, got %v", c.RetryDelay)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative, got %v", c.RateLimit)
	}
	if c.RateBurst < 0 {
		return fmt.Errorf("rate_burst cannot be negative, got %d", c.RateBurst)
	}
	if c.ProxyURL != "" {
		if err := validateHTTPURL(c.ProxyURL); err != nil {
			return fmt.Errorf("proxy_url: %w", err)
		}
	}
	return nil
}

func (c MirrorsConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.File == "" {
		return errors.New("file is required when mirrors are enabled")
	}
	return nil
}

func (c RelayConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return errors.New("url is required when the relay is enabled")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %v", c.HeartbeatInterval)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect_delay must be positive, got %v", c.ReconnectDelay)
	}
	if c.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("max_reconnect_attempts must be positive, got %d", c.MaxReconnectAttempts)
	}
	return nil
}

func (c BusConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.URLs) == 0 {
		return errors.New("urls is required when the bus is enabled")
	}
	if c.SubjectPrefix == "" {
		return errors.New("subject_prefix is required when the bus is enabled")
	}
	if !isValidSubjectPrefix(c.SubjectPrefix) {
		return fmt.Errorf(
			"subject_prefix %q is not valid for NATS subjects (tokens must be alphanumeric with dashes or underscores)",
			c.SubjectPrefix,
		)
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("breaker_threshold must be positive, got %d", c.BreakerThreshold)
	}
	if c.BreakerBaseDelay <= 0 {
		return fmt.Errorf("breaker_base_delay must be positive, got %v", c.BreakerBaseDelay)
	}
	return nil
}

func (c PollerConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("health_interval must be positive, got %v", c.HealthInterval)
	}
	if c.MarketIntervalMin <= 0 {
		return fmt.Errorf("market_interval_min must be positive, got %v", c.MarketIntervalMin)
	}
	if c.MarketIntervalMax < c.MarketIntervalMin {
		return fmt.Errorf("market_interval_max %v is below market_interval_min %v",
			c.MarketIntervalMax, c.MarketIntervalMin)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent)
	}
	return nil
}

func (c SentimentConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required when sentiment polling is enabled")
	}
	if err := validateHTTPURL(c.Endpoint); err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", c.Interval)
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("history_size must be positive, got %d", c.HistorySize)
	}
	if c.Classifier.Enabled {
		if c.Classifier.APIKey == "" {
			return errors.New("classifier.api_key is required when the classifier is enabled")
		}
		if c.Classifier.Model == "" {
			return errors.New("classifier.model is required when the classifier is enabled")
		}
	}
	return nil
}

func (c ServerConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return errors.New("addr is required when the server is enabled")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got %v", c.ReadTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %v", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %v", c.ShutdownTimeout)
	}
	return nil
}

func (c StoreConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Path == "" {
		return errors.New("path is required when the store is enabled")
	}
	return nil
}

// validateHTTPURL checks that a string parses as an absolute http(s) URL.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// isValidSubjectPrefix checks that every dot-separated token of a NATS
// subject prefix is non-empty and uses only alphanumerics, dashes, and
// underscores. Wildcards are rejected; the publish side appends concrete
// event types.
func isValidSubjectPrefix(s string) bool {
	tokens := strings.Split(s, ".")
	for _, token := range tokens {
		if token == "" {
			return false
		}
		for _, r := range token {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
				return false
			}
		}
	}
	return true
}
