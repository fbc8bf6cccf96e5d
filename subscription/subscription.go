package subscription

import (
	"fmt"
	"net/url"
	"time"

	"github.com/vasa-trade/webhook-engine/event"
)

/* Subscription represents a subscriber's webhook registration: the
 * endpoint plus the events, filters and policies governing deliveries.
 * Uses value semantics as it represents data, not behavior.
 * The engine reads subscriptions; CRUD is owned by the management API.
 */
type Subscription struct {
	ID          string
	Name        string
	Description string
	URL         string
	Method      string
	Events      []event.Type
	Secret      string
	Headers     map[string]string
	IsActive    bool
	RetryPolicy RetryPolicy
	Filters     *Filters
	RateLimit   RateLimit
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RetryPolicy controls retry scheduling for failed deliveries
type RetryPolicy struct {
	MaxRetries        int           // retries after the initial attempt
	RetryDelay        time.Duration // delay before the first retry
	BackoffMultiplier float64       // >= 1
	Timeout           time.Duration // per-attempt HTTP timeout
}

// DefaultRetryPolicy returns the policy applied when a subscription
// does not configure its own
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		RetryDelay:        time.Second,
		BackoffMultiplier: 2,
		Timeout:           30 * time.Second,
	}
}

// Validate checks the retry policy invariants
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("retry_delay cannot be negative")
	}
	if p.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be at least 1")
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// RateLimit caps outbound requests to a subscriber endpoint
type RateLimit struct {
	Enabled              bool `json:"enabled"`
	MaxRequestsPerMinute int  `json:"max_requests_per_minute,omitempty"`
	MaxRequestsPerHour   int  `json:"max_requests_per_hour,omitempty"`
}

// Validate checks the rate limit configuration
func (r RateLimit) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.MaxRequestsPerMinute <= 0 && r.MaxRequestsPerHour <= 0 {
		return fmt.Errorf("rate limit enabled but no caps configured")
	}
	if r.MaxRequestsPerMinute < 0 || r.MaxRequestsPerHour < 0 {
		return fmt.Errorf("rate limit caps cannot be negative")
	}
	return nil
}

var allowedMethods = map[string]struct{}{
	"POST": {}, "PUT": {}, "PATCH": {},
}

// Validate checks the whole subscription configuration
func (s *Subscription) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if s.Name == "" {
		return fmt.Errorf("name cannot be empty for subscription %s", s.ID)
	}
	if s.URL == "" {
		return fmt.Errorf("url cannot be empty for subscription %s", s.ID)
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid url for subscription %s: %s", s.ID, s.URL)
	}
	if _, ok := allowedMethods[s.Method]; !ok {
		return fmt.Errorf("method must be POST, PUT or PATCH for subscription %s (got %q)", s.ID, s.Method)
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("subscription %s must subscribe to at least one event type", s.ID)
	}
	for _, t := range s.Events {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("subscription %s: %w", s.ID, err)
		}
	}
	if err := s.RetryPolicy.Validate(); err != nil {
		return fmt.Errorf("retry policy for subscription %s: %w", s.ID, err)
	}
	if err := s.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit for subscription %s: %w", s.ID, err)
	}
	return nil
}

// SubscribesTo reports whether the subscription covers the event type
func (s *Subscription) SubscribesTo(t event.Type) bool {
	for _, e := range s.Events {
		if e == t {
			return true
		}
	}
	return false
}

// Matches reports whether an event of the given type with the given
// filterable fields should be delivered to this subscription
func (s *Subscription) Matches(t event.Type, ff event.FilterFields) bool {
	if !s.SubscribesTo(t) {
		return false
	}
	if s.Filters == nil {
		return true
	}
	return s.Filters.Matches(ff)
}
