package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StampsIDAndTimestamp(t *testing.T) {
	ev, err := New(TypePriceUpdate, PriceUpdate{Symbol: "BTC", PriceUSD: 64250.12})
	require.NoError(t, err)

	assert.Equal(t, TypePriceUpdate, ev.Type)
	assert.NotEmpty(t, ev.ID)
	assert.Greater(t, ev.Timestamp, int64(0))

	var p PriceUpdate
	require.NoError(t, ev.Decode(&p))
	assert.Equal(t, "BTC", p.Symbol)
	assert.Equal(t, 64250.12, p.PriceUSD)
}

func TestNew_NilDataProducesEmptyBody(t *testing.T) {
	ev, err := New(TypePing, nil)
	require.NoError(t, err)

	assert.Equal(t, TypePing, ev.Type)
	assert.Empty(t, ev.Data)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"data"`)
}

func TestParse_Frames(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType string
		wantMs   int64
	}{
		{
			name:     "millisecond timestamp",
			raw:      `{"type":"price_update","timestamp":1724567890123,"data":{"symbol":"ETH","price_usd":3301.5}}`,
			wantType: TypePriceUpdate,
			wantMs:   1724567890123,
		},
		{
			name:     "second timestamp upconverted",
			raw:      `{"type":"heartbeat","timestamp":1724567890}`,
			wantType: TypeHeartbeat,
			wantMs:   1724567890000,
		},
		{
			name:     "rfc3339 string timestamp",
			raw:      `{"type":"alert","timestamp":"2026-08-25T10:00:00Z","data":{"level":"warning","message":"provider degraded"}}`,
			wantType: TypeAlert,
			wantMs:   1787652000000,
		},
		{
			name:     "bare control frame",
			raw:      `{"type":"ping"}`,
			wantType: TypePing,
			wantMs:   0,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ev, err := Parse([]byte(test.raw))
			require.NoError(t, err)
			assert.Equal(t, test.wantType, ev.Type)
			assert.Equal(t, test.wantMs, ev.Timestamp)
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"id":"x","data":{}}`))
	assert.Error(t, err, "frame without type must be rejected")
}

func TestDecode_TypedPayloads(t *testing.T) {
	raw := `{"type":"market_update","data":{
		"provider":"coingecko",
		"coins":[{"symbol":"BTC","price_usd":64250.12,"change_24h":-1.2}],
		"btc_dominance":54.1,
		"fetched_at":1724567890123
	}}`

	ev, err := Parse([]byte(raw))
	require.NoError(t, err)

	var mu MarketUpdate
	require.NoError(t, ev.Decode(&mu))
	assert.Equal(t, "coingecko", mu.Provider)
	require.Len(t, mu.Coins, 1)
	assert.Equal(t, "BTC", mu.Coins[0].Symbol)
	assert.Equal(t, 54.1, mu.BTCDominance)
}

func TestDecode_EmptyBodyFails(t *testing.T) {
	ev := Event{Type: TypePong}
	var w Welcome
	assert.Error(t, ev.Decode(&w))
}

func TestEvent_RoundTrip(t *testing.T) {
	out, err := New(TypeAlert, Alert{Level: AlertCritical, Provider: "etherscan", Message: "5 consecutive failures"})
	require.NoError(t, err)

	raw, err := json.Marshal(out)
	require.NoError(t, err)

	in, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, out.Type, in.Type)
	assert.Equal(t, out.ID, in.ID)
	assert.Equal(t, out.Timestamp, in.Timestamp)

	var a Alert
	require.NoError(t, in.Decode(&a))
	assert.Equal(t, AlertCritical, a.Level)
	assert.Equal(t, "etherscan", a.Provider)
}

func TestEvent_Validate(t *testing.T) {
	assert.Error(t, Event{}.Validate())
	assert.NoError(t, Event{Type: "custom_type"}.Validate())
}

func TestEvent_Time(t *testing.T) {
	ev := Event{Type: TypeHeartbeat, Timestamp: 1724567890123}
	assert.Equal(t, int64(1724567890), ev.Time().Unix())

	assert.True(t, Event{Type: TypePing}.Time().IsZero())
}
