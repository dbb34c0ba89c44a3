package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	OrderID string  `json:"orderId"`
	Amount  float64 `json:"amount"`
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env, err := New("OrderCreated", testPayload{OrderID: "o-1", Amount: 42.5})
	require.NoError(t, err)
	require.NotEmpty(t, env.MessageID)
	require.False(t, env.Timestamp.IsZero())

	data, err := env.Encode()
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, env.MessageID, got.MessageID)
	assert.Equal(t, env.EventType, got.EventType)
	assert.True(t, env.Timestamp.Equal(got.Timestamp))
	assert.JSONEq(t, string(env.Payload), string(got.Payload))
}

func TestEnvelope_UniqueMessageIDs(t *testing.T) {
	a, err := New("OrderCreated", testPayload{})
	require.NoError(t, err)
	b, err := New("OrderCreated", testPayload{})
	require.NoError(t, err)
	assert.NotEqual(t, a.MessageID, b.MessageID)
}

func TestDecode_Malformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "not json at all"},
		{"missing message id", `{"eventType":"OrderCreated","timestamp":"2026-01-01T00:00:00Z","payload":{}}`},
		{"missing event type", `{"messageId":"m-1","timestamp":"2026-01-01T00:00:00Z","payload":{}}`},
		{"zero timestamp", `{"messageId":"m-1","eventType":"OrderCreated","payload":{}}`},
		{"missing payload", `{"messageId":"m-1","eventType":"OrderCreated","timestamp":"2026-01-01T00:00:00Z"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.body))
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestRegistry_Decode(t *testing.T) {
	r := NewRegistry()
	RegisterPayload[testPayload](r, "OrderCreated")

	env, err := New("OrderCreated", testPayload{OrderID: "o-1", Amount: 10})
	require.NoError(t, err)

	got, err := r.Decode(env)
	require.NoError(t, err)
	p, ok := got.(*testPayload)
	require.True(t, ok)
	assert.Equal(t, "o-1", p.OrderID)
	assert.Equal(t, 10.0, p.Amount)
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry()
	env := Envelope{
		MessageID: "m-1",
		EventType: "SomethingElse",
		Timestamp: time.Now(),
	}
	_, err := r.Decode(env)
	require.ErrorIs(t, err, ErrUnknownType)
	assert.False(t, r.Known("SomethingElse"))
}

func TestRegistry_MalformedPayload(t *testing.T) {
	r := NewRegistry()
	RegisterPayload[testPayload](r, "OrderCreated")

	env := Envelope{
		MessageID: "m-1",
		EventType: "OrderCreated",
		Timestamp: time.Now(),
		Payload:   []byte(`{"amount":"not a number"}`),
	}
	_, err := r.Decode(env)
	require.ErrorIs(t, err, ErrMalformed)
}
