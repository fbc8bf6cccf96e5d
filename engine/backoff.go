package engine

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/vasa-trade/webhook-engine/subscription"
)

// DefaultBackoffCeiling bounds exponential growth of retry delays
const DefaultBackoffCeiling = 15 * time.Minute

// Backoff computes the delay before the n-th retry (n >= 1):
// retryDelay * backoffMultiplier^(n-1), capped at ceiling.
func Backoff(policy subscription.RetryPolicy, retry int, ceiling time.Duration) time.Duration {
	if retry < 1 {
		retry = 1
	}
	if ceiling <= 0 {
		ceiling = DefaultBackoffCeiling
	}

	delay := float64(policy.RetryDelay) * math.Pow(policy.BackoffMultiplier, float64(retry-1))
	if delay > float64(ceiling) || math.IsInf(delay, 1) {
		return ceiling
	}
	return time.Duration(delay)
}

/* RetryAfter parses a Retry-After response header, either delta-seconds
 * or an HTTP date. Returns zero when absent or unparseable. A 429 with
 * Retry-After overrides the computed backoff for that one attempt.
 */
func RetryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
