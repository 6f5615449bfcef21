// Package protocol implements the {event, data} wire frame exchanged
// with clients, plus the payload shape filters applied to registered
// events before their handlers run.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/kbessonov/roomhub/pkg/chaterr"
	"github.com/tidwall/gjson"
)

// Envelope is the only container that crosses the wire, in both
// directions. No other top-level fields are interpreted.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode serializes an event name and payload into a wire frame.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for event %q: %w", event, err)
	}
	raw, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope for event %q: %w", event, err)
	}
	return raw, nil
}

// Decode parses a wire frame into its event name and raw payload.
// Failures carry chaterr.Protocol; the frame is dropped, never fatal to
// the connection.
func Decode(raw []byte) (string, json.RawMessage, error) {
	if !gjson.ValidBytes(raw) {
		return "", nil, chaterr.New(chaterr.Protocol, "frame is not valid JSON")
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return "", nil, chaterr.New(chaterr.Protocol, "frame is not a JSON object")
	}
	event := parsed.Get("event")
	if event.Type != gjson.String {
		return "", nil, chaterr.New(chaterr.Protocol, "frame event is not a string")
	}
	data := parsed.Get("data")
	if !data.Exists() {
		return event.String(), json.RawMessage("null"), nil
	}
	return event.String(), json.RawMessage(data.Raw), nil
}
