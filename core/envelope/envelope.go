// Package envelope implements the wire-level event envelope shared by all
// services: a self-describing JSON wrapper carrying the event type tag,
// message metadata and a type-specific payload. Decoding is two-phase: the
// envelope itself is parsed first (payload kept raw), the concrete payload
// is constructed afterwards through a Registry keyed by event type.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMalformed   = errors.New("malformed envelope")
	ErrUnknownType = errors.New("unknown event type")
)

// Envelope is what goes over the wire. The correlation id is deliberately not
// part of the body; it travels as a transport property.
type Envelope struct {
	MessageID string          `json:"messageId"` // MessageID is a uuid, unique per publish
	EventType string          `json:"eventType"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func (e Envelope) Validate() error {
	if e.MessageID == "" {
		return fmt.Errorf("%w: message id is empty", ErrMalformed)
	}
	if e.EventType == "" {
		return fmt.Errorf("%w: event type is empty", ErrMalformed)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is zero", ErrMalformed)
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: payload is missing", ErrMalformed)
	}
	return nil
}

// New wraps payload in a fresh envelope with a generated message id.
func New(eventType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode payload: %w", err)
	}
	return Envelope{
		MessageID: uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}, nil
}

// Encode serializes the envelope for publishing.
func (e Envelope) Encode() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode is the cheap first-pass decode: it extracts the discriminator and
// metadata while leaving the payload raw. Use a Registry to decode the
// payload once the type is known.
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
