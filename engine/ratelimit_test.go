package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vasa-trade/webhook-engine/engine"
	"github.com/vasa-trade/webhook-engine/subscription"
)

func limitedSub(id string, rl subscription.RateLimit) subscription.Subscription {
	return subscription.Subscription{ID: id, RateLimit: rl}
}

func TestRateLimiter(t *testing.T) {
	t.Run("disabled always allows", func(t *testing.T) {
		rl := engine.NewRateLimiter()
		sub := limitedSub("s1", subscription.RateLimit{})
		for i := 0; i < 100; i++ {
			assert.True(t, rl.Allow(sub))
		}
	})

	t.Run("minute cap refuses above burst", func(t *testing.T) {
		rl := engine.NewRateLimiter()
		sub := limitedSub("s1", subscription.RateLimit{Enabled: true, MaxRequestsPerMinute: 2})

		assert.True(t, rl.Allow(sub))
		assert.True(t, rl.Allow(sub))
		assert.False(t, rl.Allow(sub))
	})

	t.Run("hour cap refuses above burst", func(t *testing.T) {
		rl := engine.NewRateLimiter()
		sub := limitedSub("s1", subscription.RateLimit{Enabled: true, MaxRequestsPerHour: 1})

		assert.True(t, rl.Allow(sub))
		assert.False(t, rl.Allow(sub))
	})

	t.Run("limits are per subscription", func(t *testing.T) {
		rl := engine.NewRateLimiter()
		cfg := subscription.RateLimit{Enabled: true, MaxRequestsPerMinute: 1}

		assert.True(t, rl.Allow(limitedSub("s1", cfg)))
		assert.True(t, rl.Allow(limitedSub("s2", cfg)))
		assert.False(t, rl.Allow(limitedSub("s1", cfg)))
	})

	t.Run("config change rebuilds the bucket", func(t *testing.T) {
		rl := engine.NewRateLimiter()
		sub := limitedSub("s1", subscription.RateLimit{Enabled: true, MaxRequestsPerMinute: 1})

		assert.True(t, rl.Allow(sub))
		assert.False(t, rl.Allow(sub))

		sub.RateLimit.MaxRequestsPerMinute = 5
		assert.True(t, rl.Allow(sub))
	})

	t.Run("forget resets state", func(t *testing.T) {
		rl := engine.NewRateLimiter()
		sub := limitedSub("s1", subscription.RateLimit{Enabled: true, MaxRequestsPerMinute: 1})

		assert.True(t, rl.Allow(sub))
		assert.False(t, rl.Allow(sub))

		rl.Forget("s1")
		assert.True(t, rl.Allow(sub))
	})
}
