//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasa-trade/webhook-engine/delivery"
	"github.com/vasa-trade/webhook-engine/event"
)

func testAttempt(id, webhookID string) delivery.Attempt {
	return delivery.Attempt{
		ID:          id,
		WebhookID:   webhookID,
		EventType:   event.OrderCreated,
		EventID:     "del-" + id,
		Status:      delivery.Pending,
		MaxAttempts: 3,
		Request: delivery.Request{
			URL:     "https://example.com/hooks",
			Method:  "POST",
			Payload: []byte(`{"event":"order.created","data":{}}`),
		},
		CreatedAt: time.Now(),
	}
}

func TestStore_Integration(t *testing.T) {
	ctx := context.Background()
	rc, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	store := CreateTestStore(t, rc.Addr)
	defer store.Close(ctx)

	t.Run("create and get round trip", func(t *testing.T) {
		id := GenerateID(t, 1)
		att := testAttempt(id, "sub-rt")
		require.NoError(t, store.Create(ctx, att))

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, att.EventID, got.EventID)
		assert.Equal(t, delivery.Pending, got.Status)
		assert.Equal(t, att.Request.Payload, got.Request.Payload,
			"stored payload bytes must survive unchanged")
	})

	t.Run("schedule claim and idempotent reclaim", func(t *testing.T) {
		id := GenerateID(t, 2)
		require.NoError(t, store.Schedule(ctx, id, time.Now().Add(-time.Second)))

		claimed, err := store.ClaimDue(ctx, time.Now(), 10)
		require.NoError(t, err)
		assert.Contains(t, claimed, id)

		claimed, err = store.ClaimDue(ctx, time.Now(), 10)
		require.NoError(t, err)
		assert.NotContains(t, claimed, id, "a claim removes the entry")
	})

	t.Run("future deliveries stay queued", func(t *testing.T) {
		id := GenerateID(t, 3)
		require.NoError(t, store.Schedule(ctx, id, time.Now().Add(time.Hour)))

		claimed, err := store.ClaimDue(ctx, time.Now(), 10)
		require.NoError(t, err)
		assert.NotContains(t, claimed, id)
	})

	t.Run("record result updates log health and schedule atomically", func(t *testing.T) {
		id := GenerateID(t, 4)
		webhookID := "sub-" + id
		att := testAttempt(id, webhookID)
		require.NoError(t, store.Create(ctx, att))

		att.Status = delivery.Retry
		att.Attempts = 1
		att.NextRetryAt = time.Now().Add(time.Minute)
		att.ErrorDetail = &delivery.ErrorDetail{Message: "boom", Type: delivery.ErrServer}
		require.NoError(t, store.RecordResult(ctx, att, delivery.LogEntry{
			AttemptID: id, WebhookID: webhookID,
			EventType: att.EventType, EventID: att.EventID,
			Try: 1, Status: delivery.Retry,
			ErrorDetail: att.ErrorDetail, Timestamp: time.Now(),
		}))

		health, err := store.Health(ctx, webhookID)
		require.NoError(t, err)
		assert.Equal(t, 1, health.ConsecutiveFailures)
		assert.False(t, health.IsHealthy)

		logs, err := store.ListLogs(ctx, webhookID, 10, 0)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, delivery.Retry, logs[0].Status)
		require.NotNil(t, logs[0].ErrorDetail)
		assert.Equal(t, delivery.ErrServer, logs[0].ErrorDetail.Type)

		att.Status = delivery.Success
		att.Attempts = 2
		att.NextRetryAt = time.Time{}
		att.ErrorDetail = nil
		att.Response = &delivery.Response{StatusCode: 200, ResponseTime: 80 * time.Millisecond}
		require.NoError(t, store.RecordResult(ctx, att, delivery.LogEntry{
			AttemptID: id, WebhookID: webhookID,
			EventType: att.EventType, EventID: att.EventID,
			Try: 2, Status: delivery.Success,
			Response: att.Response, Timestamp: time.Now(),
		}))

		health, err = store.Health(ctx, webhookID)
		require.NoError(t, err)
		assert.Zero(t, health.ConsecutiveFailures)
		assert.True(t, health.IsHealthy)

		claimed, err := store.ClaimDue(ctx, time.Now().Add(2*time.Minute), 100)
		require.NoError(t, err)
		assert.NotContains(t, claimed, id, "success removes the delivery from the schedule")

		stats, err := store.Stats(ctx, webhookID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.TotalDeliveries)
		assert.Equal(t, int64(1), stats.SuccessfulDeliveries)
		assert.Equal(t, int64(1), stats.FailedDeliveries)
		assert.Equal(t, 80*time.Millisecond, stats.AverageResponseTime)
	})

	t.Run("logs are most recent first and paginated", func(t *testing.T) {
		id := GenerateID(t, 5)
		webhookID := "sub-" + id
		att := testAttempt(id, webhookID)
		require.NoError(t, store.Create(ctx, att))

		for try := 1; try <= 4; try++ {
			att.Status = delivery.Retry
			att.Attempts = try
			att.NextRetryAt = time.Now().Add(time.Minute)
			require.NoError(t, store.RecordResult(ctx, att, delivery.LogEntry{
				AttemptID: id, WebhookID: webhookID,
				EventType: att.EventType, EventID: att.EventID,
				Try: try, Status: delivery.Retry, Timestamp: time.Now(),
			}))
		}

		page, err := store.ListLogs(ctx, webhookID, 2, 0)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, 4, page[0].Try)
		assert.Equal(t, 3, page[1].Try)

		page, err = store.ListLogs(ctx, webhookID, 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, 2, page[0].Try)
	})

	t.Run("status counts follow transitions", func(t *testing.T) {
		id := GenerateID(t, 6)
		att := testAttempt(id, "sub-counts")
		require.NoError(t, store.Create(ctx, att))

		before, err := store.StatusCounts(ctx)
		require.NoError(t, err)

		att.Status = delivery.Success
		att.Attempts = 1
		require.NoError(t, store.RecordResult(ctx, att, delivery.LogEntry{
			AttemptID: id, WebhookID: att.WebhookID,
			EventType: att.EventType, EventID: att.EventID,
			Try: 1, Status: delivery.Success, Timestamp: time.Now(),
		}))

		after, err := store.StatusCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, before["pending"]-1, after["pending"])
		assert.Equal(t, before["success"]+1, after["success"])
	})

	t.Run("mark delivering keeps status counts consistent", func(t *testing.T) {
		id := GenerateID(t, 7)
		att := testAttempt(id, "sub-flight")
		require.NoError(t, store.Create(ctx, att))

		before, err := store.StatusCounts(ctx)
		require.NoError(t, err)

		require.NoError(t, store.MarkDelivering(ctx, id))
		require.NoError(t, store.MarkDelivering(ctx, id), "marking twice is a no-op")

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, delivery.Delivering, got.Status)

		after, err := store.StatusCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, before["pending"]-1, after["pending"])
		assert.Equal(t, before["delivering"]+1, after["delivering"])
	})

	t.Run("unknown subscription is healthy with empty stats", func(t *testing.T) {
		health, err := store.Health(ctx, "sub-never-seen")
		require.NoError(t, err)
		assert.True(t, health.IsHealthy)

		stats, err := store.Stats(ctx, "sub-never-seen")
		require.NoError(t, err)
		assert.Zero(t, stats.TotalDeliveries)
		assert.Zero(t, stats.SuccessRate)
	})
}
