package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbessonov/roomhub/pkg/chaterr"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frame, err := Encode("message", "hello")
	require.NoError(t, err)

	event, data, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, "message", event)
	assert.Equal(t, `"hello"`, string(data))
}

func TestDecodeMissingDataIsNull(t *testing.T) {
	event, data, err := Decode([]byte(`{"event":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, "ping", event)
	assert.Equal(t, "null", string(data))
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := []string{
		`not json`,
		`[1,2,3]`,
		`"just a string"`,
		`{"data":"no event"}`,
		`{"event":42,"data":null}`,
	}
	for _, raw := range cases {
		_, _, err := Decode([]byte(raw))
		require.Error(t, err, "frame %s", raw)
		assert.True(t, chaterr.Is(err, chaterr.Protocol), "frame %s", raw)
	}
}

func TestDecodeIgnoresExtraFields(t *testing.T) {
	event, data, err := Decode([]byte(`{"event":"message","data":"hi","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, "message", event)
	assert.Equal(t, `"hi"`, string(data))
}

func TestEncodeStructPayload(t *testing.T) {
	type payload struct {
		ID int `json:"id"`
	}
	frame, err := Encode("poll", payload{ID: 3})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, "poll", env.Event)
	assert.JSONEq(t, `{"id":3}`, string(env.Data))
}
