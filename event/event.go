package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// APIVersion is stamped on every envelope placed on the wire
const APIVersion = "2024-01"

/* Envelope is the wire format delivered to subscriber endpoints.
 * Immutable once rendered: the serialized bytes are signed and re-sent
 * unchanged on every retry of the same delivery.
 * DeliveryID is unique per (event, subscription) pairing and is the
 * idempotency key subscribers should deduplicate on.
 */
type Envelope struct {
	Event       Type            `json:"event"`
	Timestamp   time.Time       `json:"timestamp"`
	WebhookID   string          `json:"webhook_id"`
	DeliveryID  string          `json:"delivery_id"`
	APIVersion  string          `json:"api_version"`
	Environment string          `json:"environment"`
	Data        json.RawMessage `json:"data"`
}

// Validate checks the envelope is complete and its data matches the
// payload shape required by its event type
func (e Envelope) Validate() error {
	if err := e.Event.Validate(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if e.WebhookID == "" {
		return fmt.Errorf("webhook_id is required")
	}
	if e.DeliveryID == "" {
		return fmt.Errorf("delivery_id is required")
	}
	if err := ValidatePayload(e.Event, e.Data); err != nil {
		return fmt.Errorf("validating %s payload: %w", e.Event, err)
	}
	return nil
}

// Bytes returns the minified JSON encoding of the envelope.
// These are the exact bytes placed on the wire and covered by the signature.
func (e Envelope) Bytes() ([]byte, error) {
	return json.Marshal(e)
}

// Parse parses and validates a JSON envelope
func Parse(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("unmarshaling envelope: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("validating envelope: %w", err)
	}
	return e, nil
}
