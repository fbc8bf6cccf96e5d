package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasa-trade/webhook-engine/delivery"
	"github.com/vasa-trade/webhook-engine/engine"
	"github.com/vasa-trade/webhook-engine/event"
	"github.com/vasa-trade/webhook-engine/subscription"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeSub(id string, events ...event.Type) subscription.Subscription {
	return subscription.Subscription{
		ID:          id,
		Name:        id,
		URL:         "https://example.com/hooks/" + id,
		Method:      "POST",
		Events:      events,
		Secret:      "whsec_" + id,
		IsActive:    true,
		RetryPolicy: subscription.DefaultRetryPolicy(),
	}
}

func orderData(t *testing.T, value float64) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(event.OrderPayload{
		OrderID:      "ord-1",
		Status:       "confirmed",
		TotalValue:   value,
		Currency:     "EUR",
		BuyerCountry: "DE",
	})
	require.NoError(t, err)
	return data
}

type failingReader struct{}

func (failingReader) ListActiveForEvent(context.Context, event.Type) ([]subscription.Subscription, error) {
	return nil, errors.New("registry unavailable")
}

func (failingReader) Get(context.Context, string) (subscription.Subscription, error) {
	return subscription.Subscription{}, errors.New("registry unavailable")
}

func (failingReader) List(context.Context) ([]subscription.Subscription, error) {
	return nil, errors.New("registry unavailable")
}

func TestDispatcherEmit(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects unknown event type", func(t *testing.T) {
		d := engine.NewDispatcher(subscription.NewMemoryRegistry(), delivery.NewMemoryStore(), "test", discardLogger())
		_, err := d.Emit(ctx, event.Type("order.exploded"), orderData(t, 10))
		require.ErrorIs(t, err, engine.ErrInvalidEvent)
	})

	t.Run("rejects payload violating the event shape", func(t *testing.T) {
		d := engine.NewDispatcher(subscription.NewMemoryRegistry(), delivery.NewMemoryStore(), "test", discardLogger())
		_, err := d.Emit(ctx, event.OrderCreated, json.RawMessage(`{"status":"confirmed"}`))
		require.ErrorIs(t, err, engine.ErrInvalidEvent)

		_, err = d.Emit(ctx, event.OrderCreated, json.RawMessage(`not json`))
		require.ErrorIs(t, err, engine.ErrInvalidEvent)
	})

	t.Run("zero matching subscriptions is not an error", func(t *testing.T) {
		d := engine.NewDispatcher(subscription.NewMemoryRegistry(), delivery.NewMemoryStore(), "test", discardLogger())
		ids, err := d.Emit(ctx, event.OrderCreated, orderData(t, 10))
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("registry outage surfaces to the producer", func(t *testing.T) {
		d := engine.NewDispatcher(failingReader{}, delivery.NewMemoryStore(), "test", discardLogger())
		_, err := d.Emit(ctx, event.OrderCreated, orderData(t, 10))
		require.Error(t, err)
		assert.NotErrorIs(t, err, engine.ErrInvalidEvent)
	})

	t.Run("fans out to matching subscriptions only", func(t *testing.T) {
		reg := subscription.NewMemoryRegistry()
		store := delivery.NewMemoryStore()

		matching := activeSub("sub-match", event.OrderCreated)
		min := 500.0
		filtered := activeSub("sub-filtered", event.OrderCreated)
		filtered.Filters = &subscription.Filters{MinOrderValue: &min}
		otherEvent := activeSub("sub-other", event.PaymentCompleted)
		inactive := activeSub("sub-inactive", event.OrderCreated)
		inactive.IsActive = false

		for _, sub := range []subscription.Subscription{matching, filtered, otherEvent, inactive} {
			require.NoError(t, reg.Save(ctx, sub))
		}

		d := engine.NewDispatcher(reg, store, "test", discardLogger())
		ids, err := d.Emit(ctx, event.OrderCreated, orderData(t, 100))
		require.NoError(t, err)
		require.Len(t, ids, 1)

		n, err := store.ScheduledCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("filter passes when the threshold is met", func(t *testing.T) {
		reg := subscription.NewMemoryRegistry()
		min := 500.0
		sub := activeSub("sub-1", event.OrderCreated)
		sub.Filters = &subscription.Filters{MinOrderValue: &min}
		require.NoError(t, reg.Save(ctx, sub))

		d := engine.NewDispatcher(reg, delivery.NewMemoryStore(), "test", discardLogger())
		ids, err := d.Emit(ctx, event.OrderCreated, orderData(t, 500))
		require.NoError(t, err)
		assert.Len(t, ids, 1)
	})

	t.Run("enqueued attempt carries the rendered envelope", func(t *testing.T) {
		reg := subscription.NewMemoryRegistry()
		store := delivery.NewMemoryStore()
		require.NoError(t, reg.Save(ctx, activeSub("sub-1", event.OrderCreated)))

		d := engine.NewDispatcher(reg, store, "staging", discardLogger())
		ids, err := d.Emit(ctx, event.OrderCreated, orderData(t, 42))
		require.NoError(t, err)
		require.Len(t, ids, 1)

		attemptIDs, err := store.ClaimDue(ctx, time.Now().Add(time.Second), 10)
		require.NoError(t, err)
		require.Len(t, attemptIDs, 1)

		att, err := store.Get(ctx, attemptIDs[0])
		require.NoError(t, err)
		assert.Equal(t, delivery.Pending, att.Status)
		assert.Equal(t, "sub-1", att.WebhookID)
		assert.Equal(t, ids[0], att.EventID)
		assert.Equal(t, subscription.DefaultRetryPolicy().MaxRetries+1, att.MaxAttempts)

		env, err := event.Parse(att.Request.Payload)
		require.NoError(t, err)
		assert.Equal(t, event.OrderCreated, env.Event)
		assert.Equal(t, "sub-1", env.WebhookID)
		assert.Equal(t, ids[0], env.DeliveryID)
		assert.Equal(t, event.APIVersion, env.APIVersion)
		assert.Equal(t, "staging", env.Environment)
	})

	t.Run("each matching subscription gets its own delivery id", func(t *testing.T) {
		reg := subscription.NewMemoryRegistry()
		require.NoError(t, reg.Save(ctx, activeSub("sub-1", event.OrderCreated)))
		require.NoError(t, reg.Save(ctx, activeSub("sub-2", event.OrderCreated)))

		d := engine.NewDispatcher(reg, delivery.NewMemoryStore(), "test", discardLogger())
		ids, err := d.Emit(ctx, event.OrderCreated, orderData(t, 10))
		require.NoError(t, err)
		require.Len(t, ids, 2)
		assert.NotEqual(t, ids[0], ids[1])
	})
}

func TestDispatcherEmitTest(t *testing.T) {
	ctx := context.Background()

	t.Run("bypasses event type matching", func(t *testing.T) {
		reg := subscription.NewMemoryRegistry()
		store := delivery.NewMemoryStore()
		// subscribed to orders only, still receives the test event
		require.NoError(t, reg.Save(ctx, activeSub("sub-1", event.OrderCreated)))

		d := engine.NewDispatcher(reg, store, "test", discardLogger())
		id, err := d.EmitTest(ctx, "sub-1")
		require.NoError(t, err)

		attemptIDs, err := store.ClaimDue(ctx, time.Now().Add(time.Second), 10)
		require.NoError(t, err)
		require.Len(t, attemptIDs, 1)

		att, err := store.Get(ctx, attemptIDs[0])
		require.NoError(t, err)
		assert.Equal(t, event.SystemTest, att.EventType)
		assert.Equal(t, id, att.EventID)
	})

	t.Run("refuses inactive subscriptions", func(t *testing.T) {
		reg := subscription.NewMemoryRegistry()
		sub := activeSub("sub-1", event.OrderCreated)
		sub.IsActive = false
		require.NoError(t, reg.Save(ctx, sub))

		d := engine.NewDispatcher(reg, delivery.NewMemoryStore(), "test", discardLogger())
		_, err := d.EmitTest(ctx, "sub-1")
		require.Error(t, err)
	})

	t.Run("refuses unknown subscriptions", func(t *testing.T) {
		d := engine.NewDispatcher(subscription.NewMemoryRegistry(), delivery.NewMemoryStore(), "test", discardLogger())
		_, err := d.EmitTest(ctx, "nope")
		require.Error(t, err)
	})
}
