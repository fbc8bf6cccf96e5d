package engine

import (
	"sync"

	"github.com/vasa-trade/webhook-engine/subscription"
	"golang.org/x/time/rate"
)

/* RateLimiter caps outbound requests per subscription using token
 * buckets for the per-minute and per-hour windows. Exceeding a cap
 * defers the attempt; it is never counted as a failed HTTP try and
 * never consumes a retry slot.
 */
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*subLimiter
}

type subLimiter struct {
	cfg    subscription.RateLimit
	minute *rate.Limiter
	hour   *rate.Limiter
}

// NewRateLimiter creates an empty per-subscription rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*subLimiter)}
}

// Allow reports whether a request to the subscription may proceed now.
// Disabled rate limits always allow.
func (r *RateLimiter) Allow(sub subscription.Subscription) bool {
	if !sub.RateLimit.Enabled {
		return true
	}

	r.mu.Lock()
	lim, ok := r.limiters[sub.ID]
	if !ok || lim.cfg != sub.RateLimit {
		lim = newSubLimiter(sub.RateLimit)
		r.limiters[sub.ID] = lim
	}
	r.mu.Unlock()

	// Checked in order; a minute token spent on an hour-capped refusal
	// is lost, which slightly under-delivers but never over-delivers.
	if lim.minute != nil && !lim.minute.Allow() {
		return false
	}
	if lim.hour != nil && !lim.hour.Allow() {
		return false
	}
	return true
}

// Forget drops limiter state for a deleted subscription
func (r *RateLimiter) Forget(subID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, subID)
}

func newSubLimiter(cfg subscription.RateLimit) *subLimiter {
	lim := &subLimiter{cfg: cfg}
	if cfg.MaxRequestsPerMinute > 0 {
		lim.minute = rate.NewLimiter(rate.Limit(float64(cfg.MaxRequestsPerMinute)/60.0), cfg.MaxRequestsPerMinute)
	}
	if cfg.MaxRequestsPerHour > 0 {
		lim.hour = rate.NewLimiter(rate.Limit(float64(cfg.MaxRequestsPerHour)/3600.0), cfg.MaxRequestsPerHour)
	}
	return lim
}
