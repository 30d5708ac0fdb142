package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the JSON frame carried on every bus subject. Payloads are full
// input snapshots so that handlers can recompute state idempotently under
// at-least-once delivery.
type Envelope struct {
	JobID      string          `json:"job_id"`
	Kind       string          `json:"kind"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope wraps a payload with a fresh job id.
func NewEnvelope(kind string, payload any) (*Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		raw = data
	}
	return &Envelope{
		JobID:      uuid.NewString(),
		Kind:       kind,
		EnqueuedAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// Decode unmarshals the payload into the given value.
func (e *Envelope) Decode(into any) error {
	if e == nil {
		return fmt.Errorf("nil envelope")
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("envelope %s has no payload", e.Kind)
	}
	if err := json.Unmarshal(e.Payload, into); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}
