// Package event defines the wire envelope and typed payloads for frames
// crossing the WebSocket relay and the NATS bus.
//
// Every frame is a JSON object with a "type" discriminator:
//
//	{"type": "price_update", "id": "...", "timestamp": 1724567890123, "data": {...}}
//
// Control frames (ping, pong, heartbeat) usually carry no data. Timestamps
// travel as Unix milliseconds but are parsed leniently because upstream
// feeds mix seconds, milliseconds, and RFC3339 strings.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
	"github.com/nimazasinich/crypto-dt-source-sub009/pkg/timestamp"
)

// Built-in event types. Custom types are allowed; these are the ones the
// relay and server know how to handle without registration.
const (
	TypeWelcome      = "welcome"
	TypeHeartbeat    = "heartbeat"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeStatsUpdate  = "stats_update"
	TypeMarketUpdate = "market_update"
	TypePriceUpdate  = "price_update"
	TypeAlert        = "alert"
)

// Event is the wire envelope shared by the relay, the bus, and the server.
type Event struct {
	// Type discriminates the frame; dispatch keys on it.
	Type string `json:"type"`

	// ID correlates a frame across log lines and bus subjects. Optional.
	ID string `json:"id,omitempty"`

	// Timestamp is Unix milliseconds. Zero means the sender did not stamp it.
	Timestamp int64 `json:"timestamp,omitempty"`

	// Data is the type-specific body, decoded on demand via Decode.
	Data json.RawMessage `json:"data,omitempty"`
}

// New builds an outbound event: marshals data, assigns an ID, and stamps
// the current time. A nil data produces an envelope without a body.
func New(eventType string, data any) (Event, error) {
	ev := Event{
		Type:      eventType,
		ID:        uuid.New().String(),
		Timestamp: timestamp.Now(),
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, errors.WrapInvalid(err, "Event", "New", "marshal data")
		}
		ev.Data = raw
	}

	return ev, nil
}

// Parse decodes a raw frame into an Event, tolerating the timestamp formats
// upstream feeds actually send (seconds, milliseconds, RFC3339 strings).
func Parse(raw []byte) (Event, error) {
	var head struct {
		Type      string          `json:"type"`
		ID        string          `json:"id"`
		Timestamp any             `json:"timestamp"`
		Data      json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(raw, &head); err != nil {
		return Event{}, errors.WrapInvalid(err, "Event", "Parse", "unmarshal frame")
	}
	if head.Type == "" {
		return Event{}, errors.WrapInvalid(
			fmt.Errorf("frame has no type discriminator"), "Event", "Parse", "validate frame")
	}

	return Event{
		Type:      head.Type,
		ID:        head.ID,
		Timestamp: timestamp.Parse(head.Timestamp),
		Data:      head.Data,
	}, nil
}

// Decode unmarshals the event body into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("event %q has no data", e.Type), "Event", "Decode", "empty body")
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return errors.WrapInvalid(err, "Event", "Decode",
			fmt.Sprintf("decode %q body", e.Type))
	}
	return nil
}

// Time returns the event timestamp as a time.Time, zero when unset.
func (e Event) Time() time.Time {
	return timestamp.FromUnixMs(e.Timestamp)
}

// Validate checks the envelope is well formed enough to dispatch.
func (e Event) Validate() error {
	if e.Type == "" {
		return errors.WrapInvalid(
			fmt.Errorf("empty event type"), "Event", "Validate", "validate envelope")
	}
	return nil
}
