package delivery

import (
	"time"

	"github.com/vasa-trade/webhook-engine/event"
)

/* Attempt represents one logical delivery: one event paired with one
 * subscription. A delivery may involve multiple HTTP tries; the record
 * evolves (Attempts counter, Status) while each try also appends an
 * immutable LogEntry, so the full history stays reconstructable.
 * Uses value semantics as it represents data, not behavior.
 */
type Attempt struct {
	ID          string
	WebhookID   string // subscription id
	EventType   event.Type
	EventID     string // delivery_id: stable across retries, subscribers dedupe on it
	Status      Status
	Attempts    int // HTTP tries performed so far
	MaxAttempts int // initial try + max retries
	Request     Request
	Response    *Response
	ErrorDetail *ErrorDetail
	CreatedAt   time.Time
	UpdatedAt   time.Time
	NextRetryAt time.Time // zero when not scheduled
}

// Request captures what was (or will be) put on the wire.
// Payload holds the exact serialized envelope bytes; the signature is
// computed over these bytes on every try.
type Request struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Payload   []byte            `json:"payload"`
	Timestamp time.Time         `json:"timestamp"`
}

// Response captures the subscriber's answer to one try.
// RetryAfter carries a parsed Retry-After header, zero when absent.
type Response struct {
	StatusCode   int           `json:"status_code"`
	Body         string        `json:"body,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
	RetryAfter   time.Duration `json:"retry_after,omitempty"`
}

// RemainingRetries returns how many more tries the delivery may consume
func (a Attempt) RemainingRetries() int {
	remaining := a.MaxAttempts - a.Attempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

/* LogEntry is one line of the append-only delivery log: the outcome of
 * a single HTTP try. The log is the single source of truth for stats.
 */
type LogEntry struct {
	AttemptID   string       `json:"attempt_id"`
	WebhookID   string       `json:"webhook_id"`
	EventType   event.Type   `json:"event_type"`
	EventID     string       `json:"event_id"`
	Try         int          `json:"try"` // 1-based
	Status      Status       `json:"status"`
	Request     Request      `json:"request"`
	Response    *Response    `json:"response,omitempty"`
	ErrorDetail *ErrorDetail `json:"error,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Succeeded reports whether this try ended in delivery
func (l LogEntry) Succeeded() bool {
	return l.Status == Success
}

/* HealthState is the derived reliability classification of a
 * subscription. isHealthy is a pure function of the counter.
 */
type HealthState struct {
	ConsecutiveFailures int  `json:"consecutive_failures"`
	IsHealthy           bool `json:"is_healthy"`
}

// HealthBands holds the configured classification thresholds
type HealthBands struct {
	DegradedAt  int // consecutive failures to be considered degraded
	UnhealthyAt int // consecutive failures to be considered unhealthy
}

// DefaultHealthBands mirrors the documented bands: healthy 0,
// degraded 1-2, unhealthy >= 3
func DefaultHealthBands() HealthBands {
	return HealthBands{DegradedAt: 1, UnhealthyAt: 3}
}

// Band returns the categorical band name for a failure counter
func (b HealthBands) Band(consecutiveFailures int) string {
	switch {
	case consecutiveFailures >= b.UnhealthyAt:
		return "unhealthy"
	case consecutiveFailures >= b.DegradedAt:
		return "degraded"
	default:
		return "healthy"
	}
}

/* Stats are derived on demand from the delivery log, never persisted,
 * so they cannot drift from the underlying entries.
 */
type Stats struct {
	TotalDeliveries      int64         `json:"total_deliveries"`
	SuccessfulDeliveries int64         `json:"successful_deliveries"`
	FailedDeliveries     int64         `json:"failed_deliveries"`
	SuccessRate          float64       `json:"success_rate"`
	AverageResponseTime  time.Duration `json:"average_response_time"`
	LastDeliveryAt       time.Time     `json:"last_delivery_at"`
}

// ComputeStats aggregates log entries into Stats. Entries in Retry
// status are in-progress tries and count as failed tries for totals.
func ComputeStats(entries []LogEntry) Stats {
	var s Stats
	var totalResponseTime time.Duration
	var timedResponses int64

	for _, e := range entries {
		s.TotalDeliveries++
		if e.Succeeded() {
			s.SuccessfulDeliveries++
		} else {
			s.FailedDeliveries++
		}
		if e.Response != nil {
			totalResponseTime += e.Response.ResponseTime
			timedResponses++
		}
		if e.Timestamp.After(s.LastDeliveryAt) {
			s.LastDeliveryAt = e.Timestamp
		}
	}

	if s.TotalDeliveries > 0 {
		s.SuccessRate = float64(s.SuccessfulDeliveries) / float64(s.TotalDeliveries)
	}
	if timedResponses > 0 {
		s.AverageResponseTime = totalResponseTime / time.Duration(timedResponses)
	}
	return s
}
