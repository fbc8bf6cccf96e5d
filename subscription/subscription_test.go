package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasa-trade/webhook-engine/event"
	"github.com/vasa-trade/webhook-engine/subscription"
)

func validSubscription() subscription.Subscription {
	return subscription.Subscription{
		ID:          "sub-1",
		Name:        "orders feed",
		URL:         "https://example.com/hooks",
		Method:      "POST",
		Events:      []event.Type{event.OrderCreated, event.OrderShipped},
		IsActive:    true,
		RetryPolicy: subscription.DefaultRetryPolicy(),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func TestSubscriptionValidate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		sub := validSubscription()
		require.NoError(t, sub.Validate())
	})

	t.Run("error - bad method", func(t *testing.T) {
		sub := validSubscription()
		sub.Method = "GET"
		err := sub.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "method must be POST, PUT or PATCH")
	})

	t.Run("error - no events", func(t *testing.T) {
		sub := validSubscription()
		sub.Events = nil
		require.Error(t, sub.Validate())
	})

	t.Run("error - unknown event type", func(t *testing.T) {
		sub := validSubscription()
		sub.Events = []event.Type{"order.exploded"}
		require.Error(t, sub.Validate())
	})

	t.Run("error - invalid url", func(t *testing.T) {
		sub := validSubscription()
		sub.URL = "not a url"
		require.Error(t, sub.Validate())
	})

	t.Run("error - negative max retries", func(t *testing.T) {
		sub := validSubscription()
		sub.RetryPolicy.MaxRetries = -1
		require.Error(t, sub.Validate())
	})

	t.Run("error - zero timeout", func(t *testing.T) {
		sub := validSubscription()
		sub.RetryPolicy.Timeout = 0
		require.Error(t, sub.Validate())
	})

	t.Run("error - backoff multiplier below one", func(t *testing.T) {
		sub := validSubscription()
		sub.RetryPolicy.BackoffMultiplier = 0.5
		require.Error(t, sub.Validate())
	})

	t.Run("error - rate limit enabled without caps", func(t *testing.T) {
		sub := validSubscription()
		sub.RateLimit = subscription.RateLimit{Enabled: true}
		require.Error(t, sub.Validate())
	})
}

func TestFiltersMatches(t *testing.T) {
	orderFields := func(status string, total float64, countries ...string) event.FilterFields {
		return event.FilterFields{
			OrderStatus: status,
			OrderValue:  &total,
			Countries:   countries,
		}
	}

	t.Run("nil filters match everything", func(t *testing.T) {
		var f *subscription.Filters
		assert.True(t, f.Matches(orderFields("created", 1)))
		assert.True(t, f.Matches(event.FilterFields{}))
	})

	t.Run("min order value boundary", func(t *testing.T) {
		min := float64(1000)
		f := &subscription.Filters{MinOrderValue: &min}

		assert.False(t, f.Matches(orderFields("created", 999)))
		assert.True(t, f.Matches(orderFields("created", 1000)))
		assert.True(t, f.Matches(orderFields("created", 1001)))
	})

	t.Run("min order value rejects events without a value", func(t *testing.T) {
		min := float64(1)
		f := &subscription.Filters{MinOrderValue: &min}
		assert.False(t, f.Matches(event.FilterFields{}))
	})

	t.Run("order status set", func(t *testing.T) {
		f := &subscription.Filters{OrderStatuses: []string{"created", "shipped"}}
		assert.True(t, f.Matches(orderFields("created", 1)))
		assert.False(t, f.Matches(orderFields("cancelled", 1)))
	})

	t.Run("payment types", func(t *testing.T) {
		f := &subscription.Filters{PaymentTypes: []string{"wire"}}
		assert.True(t, f.Matches(event.FilterFields{PaymentType: "wire"}))
		assert.False(t, f.Matches(event.FilterFields{PaymentType: "card"}))
	})

	t.Run("countries match either party", func(t *testing.T) {
		f := &subscription.Filters{Countries: []string{"DE"}}
		assert.True(t, f.Matches(orderFields("created", 1, "DE", "PL")))
		assert.True(t, f.Matches(orderFields("created", 1, "FR", "DE")))
		assert.False(t, f.Matches(orderFields("created", 1, "FR", "PL")))
	})

	t.Run("adding filters only narrows the match set", func(t *testing.T) {
		min := float64(100)
		broad := &subscription.Filters{MinOrderValue: &min}
		narrow := &subscription.Filters{
			MinOrderValue: &min,
			OrderStatuses: []string{"created"},
			Countries:     []string{"DE"},
		}

		fields := []event.FilterFields{
			orderFields("created", 150, "DE"),
			orderFields("created", 150, "FR"),
			orderFields("shipped", 150, "DE"),
			orderFields("created", 50, "DE"),
		}
		for _, ff := range fields {
			if narrow.Matches(ff) {
				assert.True(t, broad.Matches(ff), "narrow filter matched something the broad one rejected")
			}
		}
	})
}

func TestSubscriptionMatches(t *testing.T) {
	t.Run("unsubscribed event type never matches", func(t *testing.T) {
		sub := validSubscription()
		assert.False(t, sub.Matches(event.PaymentCompleted, event.FilterFields{}))
	})

	t.Run("subscribed type with no filters matches", func(t *testing.T) {
		sub := validSubscription()
		assert.True(t, sub.Matches(event.OrderCreated, event.FilterFields{}))
	})

	t.Run("subscribed type with failing filter does not match", func(t *testing.T) {
		sub := validSubscription()
		min := float64(1000)
		sub.Filters = &subscription.Filters{MinOrderValue: &min}
		total := float64(999)
		assert.False(t, sub.Matches(event.OrderCreated, event.FilterFields{OrderValue: &total}))
	})
}

func TestMemoryRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("save, get, list", func(t *testing.T) {
		reg := subscription.NewMemoryRegistry()
		sub := validSubscription()
		require.NoError(t, reg.Save(ctx, sub))

		got, err := reg.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, sub.Name, got.Name)

		all, err := reg.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("list active for event excludes inactive", func(t *testing.T) {
		reg := subscription.NewMemoryRegistry()
		active := validSubscription()
		inactive := validSubscription()
		inactive.ID = "sub-2"
		inactive.IsActive = false
		require.NoError(t, reg.Save(ctx, active))
		require.NoError(t, reg.Save(ctx, inactive))

		subs, err := reg.ListActiveForEvent(ctx, event.OrderCreated)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "sub-1", subs[0].ID)
	})

	t.Run("list active for event excludes other types", func(t *testing.T) {
		reg := subscription.NewMemoryRegistry()
		require.NoError(t, reg.Save(ctx, validSubscription()))

		subs, err := reg.ListActiveForEvent(ctx, event.PaymentFailed)
		require.NoError(t, err)
		assert.Empty(t, subs)
	})

	t.Run("set active", func(t *testing.T) {
		reg := subscription.NewMemoryRegistry()
		require.NoError(t, reg.Save(ctx, validSubscription()))
		require.NoError(t, reg.SetActive(ctx, "sub-1", false))

		got, err := reg.Get(ctx, "sub-1")
		require.NoError(t, err)
		assert.False(t, got.IsActive)
	})

	t.Run("delete", func(t *testing.T) {
		reg := subscription.NewMemoryRegistry()
		require.NoError(t, reg.Save(ctx, validSubscription()))
		require.NoError(t, reg.Delete(ctx, "sub-1"))

		_, err := reg.Get(ctx, "sub-1")
		require.Error(t, err)
	})

	t.Run("save rejects invalid subscription", func(t *testing.T) {
		reg := subscription.NewMemoryRegistry()
		sub := validSubscription()
		sub.Method = "DELETE"
		require.Error(t, reg.Save(ctx, sub))
	})
}
