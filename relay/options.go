package relay

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nimazasinich/crypto-dt-source-sub009/metric"
)

// Option is a functional option for configuring the relay client.
type Option func(*Client) error

// WithMaxReconnects sets how many consecutive failed connection cycles are
// tolerated before the relay gives up.
func WithMaxReconnects(n int) Option {
	return func(c *Client) error {
		if n < 0 {
			return fmt.Errorf("max reconnects cannot be negative: %d", n)
		}
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the fixed delay between reconnect attempts.
func WithReconnectWait(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("reconnect wait must be positive: %v", d)
		}
		c.reconnectWait = d
		return nil
	}
}

// WithHeartbeatInterval sets the ping cadence on an open connection.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("heartbeat interval must be positive: %v", d)
		}
		c.heartbeatInterval = d
		return nil
	}
}

// WithHandshakeTimeout bounds the WebSocket handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("handshake timeout must be positive: %v", d)
		}
		c.dialer.HandshakeTimeout = d
		return nil
	}
}

// WithWriteTimeout bounds each outbound frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("write timeout must be positive: %v", d)
		}
		c.writeTimeout = d
		return nil
	}
}

// WithHeaders sets HTTP headers sent with the handshake (authentication).
func WithHeaders(h http.Header) Option {
	return func(c *Client) error {
		c.headers = h
		return nil
	}
}

// WithDialer replaces the WebSocket dialer (TLS configuration, proxies).
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) error {
		if d == nil {
			return fmt.Errorf("dialer cannot be nil")
		}
		c.dialer = d
		return nil
	}
}

// WithHandler registers an event handler at construction time.
func WithHandler(eventType string, h Handler) Option {
	return func(c *Client) error {
		if eventType == "" {
			return fmt.Errorf("event type cannot be empty")
		}
		c.handlers[eventType] = h
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetrics wires the relay gauges and counters into the registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(c *Client) error {
		if registry != nil {
			c.metrics = relayMetrics{core: registry.CoreMetrics()}
		}
		return nil
	}
}

// relayMetrics guards the optional metrics sink so call sites stay free of
// nil checks.
type relayMetrics struct {
	core *metric.Metrics
}

func (m relayMetrics) status(connected bool) {
	if m.core != nil {
		m.core.RecordRelayStatus(connected)
	}
}

func (m relayMetrics) reconnect() {
	if m.core != nil {
		m.core.RecordRelayReconnect()
	}
}

func (m relayMetrics) event(eventType string) {
	if m.core != nil {
		m.core.RecordRelayEvent(eventType)
	}
}

func (m relayMetrics) parseError() {
	if m.core != nil {
		m.core.RecordError("relay", "parse_error")
	}
}
