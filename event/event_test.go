package event_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasa-trade/webhook-engine/event"
)

func TestParseType(t *testing.T) {
	t.Run("success - known types", func(t *testing.T) {
		for _, s := range []string{"order.created", "payment.completed", "compliance.screening_flagged", "system.test"} {
			typ, err := event.ParseType(s)
			require.NoError(t, err)
			assert.Equal(t, s, typ.String())
		}
	})

	t.Run("error - unknown type", func(t *testing.T) {
		_, err := event.ParseType("order.exploded")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown event type")
	})

	t.Run("error - empty type", func(t *testing.T) {
		_, err := event.ParseType("")
		require.Error(t, err)
	})
}

func TestTypeCategory(t *testing.T) {
	assert.Equal(t, "order", event.OrderCreated.Category())
	assert.Equal(t, "payment", event.PaymentRefunded.Category())
	assert.Equal(t, "shipping", event.ShippingInTransit.Category())
	assert.Equal(t, "system", event.SystemTest.Category())
}

func TestValidatePayload(t *testing.T) {
	t.Run("success - order payload", func(t *testing.T) {
		data, _ := json.Marshal(event.OrderPayload{
			OrderID:    "ord-1",
			Status:     "created",
			TotalValue: 1500,
			Currency:   "EUR",
		})
		require.NoError(t, event.ValidatePayload(event.OrderCreated, data))
	})

	t.Run("error - order payload missing order_id", func(t *testing.T) {
		err := event.ValidatePayload(event.OrderCreated, []byte(`{"status":"created"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "order_id is required")
	})

	t.Run("error - payment payload missing payment_type", func(t *testing.T) {
		err := event.ValidatePayload(event.PaymentCompleted, []byte(`{"payment_id":"pay-1","amount":10}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "payment_type is required")
	})

	t.Run("error - invalid JSON", func(t *testing.T) {
		err := event.ValidatePayload(event.OrderCreated, []byte(`{not json`))
		require.Error(t, err)
	})

	t.Run("error - empty data", func(t *testing.T) {
		err := event.ValidatePayload(event.SystemTest, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "data is required")
	})

	t.Run("success - every category has a shape", func(t *testing.T) {
		samples := map[event.Type]string{
			event.OrderCreated:               `{"order_id":"o","status":"created","total_value":1}`,
			event.PaymentCompleted:           `{"payment_id":"p","order_id":"o","payment_type":"card","amount":1,"status":"completed"}`,
			event.ShippingBooked:             `{"shipment_id":"s","order_id":"o","status":"booked"}`,
			event.ProductCreated:             `{"product_id":"pr","name":"Widget"}`,
			event.UserRegistered:             `{"user_id":"u"}`,
			event.DocumentUploaded:           `{"document_id":"d","owner_id":"u"}`,
			event.ComplianceScreeningCleared: `{"screening_id":"sc","subject_id":"u"}`,
			event.SystemTest:                 `{"message":"ping"}`,
		}
		for typ, data := range samples {
			assert.NoError(t, event.ValidatePayload(typ, []byte(data)), typ.String())
		}
	})
}

func TestEnvelope(t *testing.T) {
	t.Run("round trip through wire bytes", func(t *testing.T) {
		env := event.Envelope{
			Event:       event.OrderCreated,
			Timestamp:   time.Now().UTC().Truncate(time.Second),
			WebhookID:   "wh-1",
			DeliveryID:  "del-1",
			APIVersion:  event.APIVersion,
			Environment: "test",
			Data:        json.RawMessage(`{"order_id":"o","status":"created","total_value":100}`),
		}

		raw, err := env.Bytes()
		require.NoError(t, err)

		parsed, err := event.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, env.Event, parsed.Event)
		assert.Equal(t, env.DeliveryID, parsed.DeliveryID)
		assert.JSONEq(t, string(env.Data), string(parsed.Data))
	})

	t.Run("error - envelope with unknown type", func(t *testing.T) {
		_, err := event.Parse([]byte(`{"event":"order.exploded","timestamp":"2026-01-01T00:00:00Z","webhook_id":"w","delivery_id":"d","data":{}}`))
		require.Error(t, err)
	})
}

func TestExtractFilterFields(t *testing.T) {
	t.Run("order fields", func(t *testing.T) {
		data := []byte(`{"order_id":"o","status":"shipped","total_value":999,"buyer_country":"DE","seller_country":"PL"}`)
		ff := event.ExtractFilterFields(event.OrderShipped, data)
		assert.Equal(t, "shipped", ff.OrderStatus)
		require.NotNil(t, ff.OrderValue)
		assert.Equal(t, float64(999), *ff.OrderValue)
		assert.ElementsMatch(t, []string{"DE", "PL"}, ff.Countries)
	})

	t.Run("payment fields", func(t *testing.T) {
		data := []byte(`{"payment_id":"p","order_id":"o","payment_type":"wire","amount":50,"status":"completed"}`)
		ff := event.ExtractFilterFields(event.PaymentCompleted, data)
		assert.Equal(t, "wire", ff.PaymentType)
	})

	t.Run("product category", func(t *testing.T) {
		data := []byte(`{"product_id":"pr","name":"Widget","category":"electronics"}`)
		ff := event.ExtractFilterFields(event.ProductUpdated, data)
		assert.Equal(t, "electronics", ff.ProductCategory)
	})

	t.Run("system payload has no filter fields", func(t *testing.T) {
		ff := event.ExtractFilterFields(event.SystemTest, []byte(`{"message":"ping"}`))
		assert.Empty(t, ff.OrderStatus)
		assert.Nil(t, ff.OrderValue)
	})
}
