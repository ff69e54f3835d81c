package bus

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
	"github.com/nimazasinich/crypto-dt-source-sub009/event"
)

func newTestPublisher(t *testing.T, opts ...Option) *Publisher {
	t.Helper()
	p, err := New([]string{"nats://localhost:4222"}, opts...)
	require.NoError(t, err)
	return p
}

func TestNew_Validation(t *testing.T) {
	t.Run("no URLs", func(t *testing.T) {
		_, err := New(nil)
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrMissingConfig))
	})

	t.Run("invalid subject prefix", func(t *testing.T) {
		_, err := New([]string{"nats://localhost:4222"}, WithSubjectPrefix("bad prefix"))
		require.Error(t, err)
	})

	t.Run("invalid reconnect wait", func(t *testing.T) {
		_, err := New([]string{"nats://localhost:4222"}, WithReconnectWait(-time.Second))
		require.Error(t, err)
	})
}

func TestSubject(t *testing.T) {
	p := newTestPublisher(t)
	assert.Equal(t, "crypto.events.market_update", p.Subject(event.TypeMarketUpdate))

	p = newTestPublisher(t, WithSubjectPrefix("agents.alpha."))
	assert.Equal(t, "agents.alpha.alert", p.Subject(event.TypeAlert))
}

func TestPublish_NotConnected(t *testing.T) {
	p := newTestPublisher(t)

	ev, err := event.New(event.TypeAlert, event.Alert{Level: event.AlertInfo, Message: "hi"})
	require.NoError(t, err)

	err = p.Publish(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrNotConnected))
}

func TestPublish_InvalidEvent(t *testing.T) {
	p := newTestPublisher(t)
	err := p.Publish(context.Background(), event.Event{})
	require.Error(t, err)
}

func TestPublish_Success(t *testing.T) {
	p := newTestPublisher(t)

	var gotSubject string
	var gotData []byte
	p.publish = func(subject string, data []byte) error {
		gotSubject = subject
		gotData = data
		return nil
	}
	p.setStatus(StatusConnected)

	ev, err := event.New(event.TypePriceUpdate, event.PriceUpdate{Symbol: "BTC", PriceUSD: 67000})
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), ev))
	assert.Equal(t, "crypto.events.price_update", gotSubject)

	var onWire event.Event
	require.NoError(t, json.Unmarshal(gotData, &onWire))
	assert.Equal(t, event.TypePriceUpdate, onWire.Type)
	assert.Equal(t, ev.ID, onWire.ID)

	var tick event.PriceUpdate
	require.NoError(t, onWire.Decode(&tick))
	assert.Equal(t, "BTC", tick.Symbol)

	assert.Equal(t, int64(1), p.Info().Published)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	// Long probe delay so the breaker stays open for the assertions.
	p := newTestPublisher(t, WithBreaker(3, time.Hour))
	p.publish = func(string, []byte) error { return fmt.Errorf("publish refused") }
	p.setStatus(StatusConnected)

	ev, err := event.New(event.TypeAlert, event.Alert{Level: event.AlertWarning, Message: "x"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.Error(t, p.Publish(context.Background(), ev))
	}
	assert.Equal(t, StatusCircuitOpen, p.Status())

	// With the breaker open publishes fail fast, without touching the
	// transport.
	called := false
	p.publish = func(string, []byte) error { called = true; return nil }
	err = p.Publish(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrCircuitOpen))
	assert.False(t, called)

	// The next probe delay doubled when the breaker opened.
	assert.Equal(t, 2*time.Hour, p.backoff.Load().(time.Duration))
	assert.Equal(t, int64(3), p.Info().Failures)
}

func TestCircuitBreaker_ResetOnSuccess(t *testing.T) {
	p := newTestPublisher(t, WithBreaker(3, time.Second))

	fail := true
	p.publish = func(string, []byte) error {
		if fail {
			return fmt.Errorf("flaky")
		}
		return nil
	}
	p.setStatus(StatusConnected)

	ev, err := event.New(event.TypeStatsUpdate, event.StatsUpdate{TotalProviders: 5})
	require.NoError(t, err)

	require.Error(t, p.Publish(context.Background(), ev))
	require.Error(t, p.Publish(context.Background(), ev))
	assert.Equal(t, int32(2), p.circuitFailures.Load())

	fail = false
	require.NoError(t, p.Publish(context.Background(), ev))

	assert.Equal(t, int32(0), p.circuitFailures.Load())
	assert.Equal(t, time.Second, p.backoff.Load().(time.Duration))
	assert.Equal(t, StatusConnected, p.Status())
}

func TestCircuitBreaker_ProbeHalfCloses(t *testing.T) {
	p := newTestPublisher(t, WithBreaker(2, 20*time.Millisecond))
	p.publish = func(string, []byte) error { return fmt.Errorf("down") }
	p.setStatus(StatusConnected)

	ev, err := event.New(event.TypeAlert, event.Alert{Level: event.AlertCritical, Message: "y"})
	require.NoError(t, err)

	require.Error(t, p.Publish(context.Background(), ev))
	require.Error(t, p.Publish(context.Background(), ev))
	require.Equal(t, StatusCircuitOpen, p.Status())

	// The probe fires after the backoff and half-closes; with no live
	// connection it lands in disconnected rather than connected.
	assert.Eventually(t, func() bool {
		return p.Status() == StatusDisconnected
	}, time.Second, 5*time.Millisecond)
}

func TestClose_Idempotent(t *testing.T) {
	p := newTestPublisher(t)
	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, StatusDisconnected, p.Status())
}

func TestHealth(t *testing.T) {
	p := newTestPublisher(t)
	assert.True(t, p.Health().IsUnhealthy())

	p.setStatus(StatusConnected)
	assert.True(t, p.Health().IsHealthy())

	p.setStatus(StatusReconnecting)
	assert.True(t, p.Health().IsDegraded())
}
