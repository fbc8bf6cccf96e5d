package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vasa-trade/webhook-engine/delivery"
	"github.com/vasa-trade/webhook-engine/event"
	"github.com/vasa-trade/webhook-engine/subscription"
)

/* ErrInvalidEvent marks a producer contract violation: a malformed
 * event is rejected at ingestion and never becomes a delivery attempt.
 */
var ErrInvalidEvent = errors.New("invalid event")

/* Dispatcher fans an incoming event out to every matching subscription.
 * Collaborators are injected interfaces so tests substitute in-memory
 * fakes for the registry and the delivery store.
 */
type Dispatcher struct {
	registry    subscription.Reader
	store       delivery.Store
	environment string
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher with dependency injection
func NewDispatcher(registry subscription.Reader, store delivery.Store, environment string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:    registry,
		store:       store,
		environment: environment,
		logger:      logger,
	}
}

/* Emit accepts a domain event and enqueues one delivery per matching
 * active subscription. Returns the minted delivery IDs.
 * A registry outage is returned as an error so the producer can retry;
 * the event is never silently dropped. Zero matching subscriptions is
 * a normal outcome, not an error.
 */
func (d *Dispatcher) Emit(ctx context.Context, t event.Type, data json.RawMessage) ([]string, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEvent, err)
	}
	if err := event.ValidatePayload(t, data); err != nil {
		return nil, fmt.Errorf("%w: validating %s payload: %s", ErrInvalidEvent, t, err)
	}

	subs, err := d.registry.ListActiveForEvent(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions for %s: %w", t, err)
	}

	fields := event.ExtractFilterFields(t, data)

	var deliveryIDs []string
	for _, sub := range subs {
		if !sub.Matches(t, fields) {
			continue
		}
		id, err := d.enqueue(ctx, sub, t, data)
		if err != nil {
			return deliveryIDs, fmt.Errorf("enqueuing delivery for subscription %s: %w", sub.ID, err)
		}
		deliveryIDs = append(deliveryIDs, id)
	}

	d.logger.Info("event dispatched",
		"event", t.String(),
		"matched", len(deliveryIDs),
		"candidates", len(subs))
	return deliveryIDs, nil
}

/* EmitTest enqueues a manual system.test delivery for one subscription,
 * bypassing event-type and filter matching. Used by the management API.
 */
func (d *Dispatcher) EmitTest(ctx context.Context, subID string) (string, error) {
	sub, err := d.registry.Get(ctx, subID)
	if err != nil {
		return "", fmt.Errorf("getting subscription: %w", err)
	}
	if !sub.IsActive {
		return "", fmt.Errorf("subscription %s is not active", subID)
	}

	data, err := json.Marshal(event.SystemPayload{
		Message:     "test delivery",
		TriggeredBy: "management-api",
	})
	if err != nil {
		return "", fmt.Errorf("marshaling test payload: %w", err)
	}

	return d.enqueue(ctx, sub, event.SystemTest, data)
}

/* enqueue renders the envelope once: the serialized bytes are stored on
 * the attempt and re-sent unchanged on every retry, so the signature
 * and the delivery_id stay stable for the delivery's whole lifetime.
 */
func (d *Dispatcher) enqueue(ctx context.Context, sub subscription.Subscription, t event.Type, data json.RawMessage) (string, error) {
	deliveryID := uuid.New().String()
	now := time.Now().UTC()

	envelope := event.Envelope{
		Event:       t,
		Timestamp:   now,
		WebhookID:   sub.ID,
		DeliveryID:  deliveryID,
		APIVersion:  event.APIVersion,
		Environment: d.environment,
		Data:        data,
	}
	payload, err := envelope.Bytes()
	if err != nil {
		return "", fmt.Errorf("serializing envelope: %w", err)
	}

	attempt := delivery.Attempt{
		ID:          uuid.New().String(),
		WebhookID:   sub.ID,
		EventType:   t,
		EventID:     deliveryID,
		Status:      delivery.Pending,
		MaxAttempts: sub.RetryPolicy.MaxRetries + 1,
		Request: delivery.Request{
			URL:       sub.URL,
			Method:    sub.Method,
			Payload:   payload,
			Timestamp: now,
		},
		CreatedAt: now,
	}

	if err := d.store.Create(ctx, attempt); err != nil {
		return "", fmt.Errorf("creating attempt: %w", err)
	}
	if err := d.store.Schedule(ctx, attempt.ID, now); err != nil {
		return "", fmt.Errorf("scheduling attempt: %w", err)
	}

	return deliveryID, nil
}
