// Package relay maintains the WebSocket connection to the realtime backend
// channel and dispatches typed events to registered handlers.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
	"github.com/nimazasinich/crypto-dt-source-sub009/event"
	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/timestamp"
)

// State represents the relay connection state.
type State int32

// Relay connection states. GivenUp is terminal: the relay stops retrying
// until a manual Reconnect.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateGivenUp
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateGivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

// Handler receives events of the type it was registered for.
type Handler func(ev event.Event)

// Relay defaults, matching the backend channel's expectations.
const (
	DefaultMaxReconnects     = 5
	DefaultReconnectWait     = 3 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second

	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// Info is a point-in-time snapshot of the relay for the ops surface.
type Info struct {
	State     string `json:"state"`
	URL       string `json:"url"`
	SessionID string `json:"session_id,omitempty"`
	Attempts  int    `json:"reconnect_attempts"`
	Events    int64  `json:"events_received"`
}

// Client is the relay connection manager. It keeps one socket open to the
// backend's /ws channel, reconnects on a fixed delay after drops, and stops
// retrying after MaxReconnects consecutive failures (manual Reconnect
// resets the counter and starts over).
type Client struct {
	url     string
	dialer  *websocket.Dialer
	headers http.Header

	maxReconnects     int
	reconnectWait     time.Duration
	heartbeatInterval time.Duration
	writeTimeout      time.Duration

	logger  *slog.Logger
	metrics relayMetrics

	mu        sync.Mutex
	conn      *websocket.Conn
	handlers  map[string]Handler
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}

	writeMu sync.Mutex

	state    atomic.Int32
	attempts atomic.Int32
	events   atomic.Int64
}

// New creates a relay client for a ws:// or wss:// endpoint. The relay does
// not dial until Connect.
func New(rawURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.WrapInvalid(err, "relay", "New", "parse url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("relay url must be ws:// or wss://, got %q", u.Scheme),
			"relay", "New", "validate url")
	}

	c := &Client{
		url: rawURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		maxReconnects:     DefaultMaxReconnects,
		reconnectWait:     DefaultReconnectWait,
		heartbeatInterval: DefaultHeartbeatInterval,
		writeTimeout:      defaultWriteTimeout,
		logger:            slog.Default(),
		handlers:          make(map[string]Handler),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "relay", "New", "apply option")
		}
	}

	c.state.Store(int32(StateDisconnected))
	return c, nil
}

// URL returns the relay endpoint.
func (c *Client) URL() string {
	return c.url
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// IsConnected reports whether the socket is currently open.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// SessionID returns the server-assigned session ID from the welcome frame,
// empty until one arrives.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Info returns a snapshot for status endpoints.
func (c *Client) Info() Info {
	return Info{
		State:     c.State().String(),
		URL:       c.url,
		SessionID: c.SessionID(),
		Attempts:  int(c.attempts.Load()),
		Events:    c.events.Load(),
	}
}

// On registers the handler for an event type, replacing any previous one.
// At most one handler per type; a nil handler unregisters.
func (c *Client) On(eventType string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == nil {
		delete(c.handlers, eventType)
		return
	}
	c.handlers[eventType] = h
}

// Connect starts the connection loop in the background. The relay dials,
// reconnects on drops, and reports progress through State. Connect fails
// if the relay is already running.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx, "Connect")
}

// Reconnect restarts a relay that gave up or was disconnected. It resets
// the attempt counter; this is the manual trigger after GivenUp.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts.Store(0)
	return c.startLocked(ctx, "Reconnect")
}

func (c *Client) startLocked(ctx context.Context, method string) error {
	if c.cancel != nil {
		select {
		case <-c.done:
			// The previous loop exited (gave up); its cancel is stale.
			c.cancel = nil
		default:
			return errors.WrapInvalid(errors.ErrAlreadyStarted, "relay", method, "start connection loop")
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go c.run(runCtx, done)
	return nil
}

// Disconnect tears the relay down. Handlers are cleared and the timers
// stopped before the socket closes, so no callback fires mid-teardown.
// After Disconnect the relay is idle until Connect or Reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.handlers = make(map[string]Handler)
	cancel := c.cancel
	c.cancel = nil
	conn := c.conn
	c.conn = nil
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
	c.setState(StateDisconnected)
}

// Send marshals v and writes it as a text frame. It fails when the relay
// is not connected; there is no outbound queue.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return errors.WrapTransient(errors.ErrNotConnected, "relay", "Send", "write frame")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return errors.WrapInvalid(err, "relay", "Send", "marshal frame")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransient(err, "relay", "Send", "write frame")
	}
	return nil
}

// WaitForConnection blocks until the relay is connected, the relay gives
// up, or ctx expires.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		switch c.State() {
		case StateConnected:
			return nil
		case StateGivenUp:
			return errors.WrapTransient(errors.ErrRelayGivenUp, "relay", "WaitForConnection", "wait for socket")
		}

		select {
		case <-ctx.Done():
			return errors.WrapTransient(
				fmt.Errorf("connection wait: %w", ctx.Err()),
				"relay", "WaitForConnection", "wait for socket")
		case <-ticker.C:
		}
	}
}

// run is the connection loop: dial, serve the connection, retry on a fixed
// delay, and give up after too many consecutive failures.
func (c *Client) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		c.setState(StateConnecting)
		conn, resp, err := c.dialer.DialContext(ctx, c.url, c.headers)
		if err != nil {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return
			}
			c.logger.Warn("relay dial failed", "url", c.url, "error", err)
			if !c.retryAfterFailure(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.attempts.Store(0)
		c.setState(StateConnected)
		c.logger.Info("relay connected", "url", c.url)

		// The heartbeat goroutine also closes the socket when ctx ends,
		// which is what unblocks the read loop during shutdown.
		hbStop := make(chan struct{})
		hbDone := make(chan struct{})
		go func() {
			defer close(hbDone)
			c.heartbeatLoop(ctx, conn, hbStop)
		}()

		c.readLoop(ctx, conn)

		close(hbStop)
		<-hbDone

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}
		c.logger.Warn("relay connection lost", "url", c.url)
		if !c.retryAfterFailure(ctx) {
			return
		}
	}
}

// retryAfterFailure counts a failed connection cycle and either waits out
// the reconnect delay or gives up. Returns false when the loop should stop.
func (c *Client) retryAfterFailure(ctx context.Context) bool {
	n := int(c.attempts.Add(1))
	if n > c.maxReconnects {
		c.setState(StateGivenUp)
		c.logger.Error("relay gave up after repeated failures",
			"url", c.url, "reconnect_attempts", c.maxReconnects)
		return false
	}

	c.setState(StateReconnecting)
	c.metrics.reconnect()
	c.logger.Info("relay reconnecting",
		"attempt", n, "max", c.maxReconnects, "delay", c.reconnectWait)

	select {
	case <-ctx.Done():
		c.setState(StateDisconnected)
		return false
	case <-time.After(c.reconnectWait):
		return true
	}
}

// readLoop reads frames until the connection fails or is closed.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("relay read ended", "error", err)
			}
			return
		}

		ev, err := event.Parse(raw)
		if err != nil {
			c.metrics.parseError()
			c.logger.Debug("relay frame not parseable", "error", err)
			continue
		}

		c.dispatch(ev)
	}
}

// dispatch routes one event: built-in bookkeeping first, then the single
// registered handler for its type, if any.
func (c *Client) dispatch(ev event.Event) {
	c.events.Add(1)
	c.metrics.event(ev.Type)

	switch ev.Type {
	case event.TypeWelcome:
		var w event.Welcome
		if err := ev.Decode(&w); err == nil && w.SessionID != "" {
			c.mu.Lock()
			c.sessionID = w.SessionID
			c.mu.Unlock()
			c.logger.Info("relay session established", "session_id", w.SessionID)
		}
	case event.TypeHeartbeat:
		if err := c.sendControl(event.TypePong); err != nil {
			c.logger.Debug("heartbeat reply failed", "error", err)
		}
	case event.TypePong:
		// Server answered our ping; nothing to do.
	}

	c.mu.Lock()
	h := c.handlers[ev.Type]
	c.mu.Unlock()

	if h != nil {
		h(ev)
	}
}

// heartbeatLoop pings the server on a fixed cadence. It doubles as the
// shutdown watchdog: when ctx ends it closes the socket so the read loop
// unblocks.
func (c *Client) heartbeatLoop(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := c.sendControl(event.TypePing); err != nil {
				c.logger.Debug("heartbeat write failed", "error", err)
				return
			}
		}
	}
}

// sendControl writes a bare control frame (ping, pong).
func (c *Client) sendControl(eventType string) error {
	return c.Send(event.Event{Type: eventType, Timestamp: timestamp.Now()})
}

// setState transitions the connection state and mirrors it to metrics.
func (c *Client) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old == s {
		return
	}
	c.metrics.status(s == StateConnected)
	c.logger.Debug("relay state changed", "from", old.String(), "to", s.String())
}
