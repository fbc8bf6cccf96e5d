package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vasa-trade/webhook-engine/delivery"
	"github.com/vasa-trade/webhook-engine/event"
	"github.com/vasa-trade/webhook-engine/subscription"
)

/* HTTP layer DTOs for subscription management
 * Secrets go in, never out: responses carry only whether one is set
 */

// subscriptionRequest represents a create or update payload
type subscriptionRequest struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	URL         string                  `json:"url"`
	Method      string                  `json:"method,omitempty"`
	Events      []string                `json:"events"`
	Secret      string                  `json:"secret,omitempty"`
	Headers     map[string]string       `json:"headers,omitempty"`
	IsActive    *bool                   `json:"is_active,omitempty"`
	RetryPolicy *retryPolicyRequest     `json:"retry_policy,omitempty"`
	Filters     *subscription.Filters   `json:"filters,omitempty"`
	RateLimit   *subscription.RateLimit `json:"rate_limit,omitempty"`
}

// retryPolicyRequest overrides individual retry policy fields
type retryPolicyRequest struct {
	MaxRetries        *int     `json:"max_retries,omitempty"`
	RetryDelayMS      *int     `json:"retry_delay_ms,omitempty"`
	BackoffMultiplier *float64 `json:"backoff_multiplier,omitempty"`
	TimeoutSeconds    *int     `json:"timeout_seconds,omitempty"`
}

// subscriptionResponse represents a subscription in the API
type subscriptionResponse struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	URL         string                  `json:"url"`
	Method      string                  `json:"method"`
	Events      []string                `json:"events"`
	SecretSet   bool                    `json:"secret_set"`
	Headers     map[string]string       `json:"headers,omitempty"`
	IsActive    bool                    `json:"is_active"`
	RetryPolicy retryPolicyResponse     `json:"retry_policy"`
	Filters     *subscription.Filters   `json:"filters,omitempty"`
	RateLimit   *subscription.RateLimit `json:"rate_limit,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

type retryPolicyResponse struct {
	MaxRetries        int     `json:"max_retries"`
	RetryDelayMS      int64   `json:"retry_delay_ms"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	TimeoutSeconds    int64   `json:"timeout_seconds"`
}

// healthResponse represents a subscription's delivery health
type healthResponse struct {
	SubscriptionID      string `json:"subscription_id"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	IsHealthy           bool   `json:"is_healthy"`
	Band                string `json:"band"`
}

func toResponse(sub subscription.Subscription) subscriptionResponse {
	events := make([]string, 0, len(sub.Events))
	for _, t := range sub.Events {
		events = append(events, t.String())
	}

	var rateLimit *subscription.RateLimit
	if sub.RateLimit.Enabled {
		rl := sub.RateLimit
		rateLimit = &rl
	}

	return subscriptionResponse{
		ID:          sub.ID,
		Name:        sub.Name,
		Description: sub.Description,
		URL:         sub.URL,
		Method:      sub.Method,
		Events:      events,
		SecretSet:   sub.Secret != "",
		Headers:     sub.Headers,
		IsActive:    sub.IsActive,
		RetryPolicy: retryPolicyResponse{
			MaxRetries:        sub.RetryPolicy.MaxRetries,
			RetryDelayMS:      sub.RetryPolicy.RetryDelay.Milliseconds(),
			BackoffMultiplier: sub.RetryPolicy.BackoffMultiplier,
			TimeoutSeconds:    int64(sub.RetryPolicy.Timeout.Seconds()),
		},
		Filters:   sub.Filters,
		RateLimit: rateLimit,
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	}
}

// apply maps the request onto a subscription, filling defaults
func (sr subscriptionRequest) apply(sub subscription.Subscription) (subscription.Subscription, error) {
	sub.Name = sr.Name
	sub.Description = sr.Description
	sub.URL = sr.URL
	sub.Headers = sr.Headers
	sub.Filters = sr.Filters

	sub.Method = sr.Method
	if sub.Method == "" {
		sub.Method = http.MethodPost
	}
	if sr.Secret != "" {
		sub.Secret = sr.Secret
	}
	if sr.IsActive != nil {
		sub.IsActive = *sr.IsActive
	}
	if sr.RateLimit != nil {
		sub.RateLimit = *sr.RateLimit
	}

	sub.Events = make([]event.Type, 0, len(sr.Events))
	for _, name := range sr.Events {
		t, err := event.ParseType(name)
		if err != nil {
			return subscription.Subscription{}, err
		}
		sub.Events = append(sub.Events, t)
	}

	if sr.RetryPolicy != nil {
		if sr.RetryPolicy.MaxRetries != nil {
			sub.RetryPolicy.MaxRetries = *sr.RetryPolicy.MaxRetries
		}
		if sr.RetryPolicy.RetryDelayMS != nil {
			sub.RetryPolicy.RetryDelay = time.Duration(*sr.RetryPolicy.RetryDelayMS) * time.Millisecond
		}
		if sr.RetryPolicy.BackoffMultiplier != nil {
			sub.RetryPolicy.BackoffMultiplier = *sr.RetryPolicy.BackoffMultiplier
		}
		if sr.RetryPolicy.TimeoutSeconds != nil {
			sub.RetryPolicy.Timeout = time.Duration(*sr.RetryPolicy.TimeoutSeconds) * time.Second
		}
	}

	return sub, nil
}

// getSubscriptions handles GET /v1/subscriptions
func getSubscriptions(registry subscription.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		all, err := registry.List(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		result := make([]subscriptionResponse, 0, len(all))
		for _, sub := range all {
			result = append(result, toResponse(sub))
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// getSubscription handles GET /v1/subscriptions/:id
func getSubscription(registry subscription.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sub, err := registry.Get(r.Context(), id)
		if err != nil {
			http.Error(w, fmt.Sprintf("subscription not found: %s", id), http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(toResponse(sub)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// postSubscription handles POST /v1/subscriptions
func postSubscription(registry subscription.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sr subscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&sr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		sub, err := sr.apply(subscription.Subscription{
			ID:          uuid.New().String(),
			IsActive:    true,
			RetryPolicy: subscription.DefaultRetryPolicy(),
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		sub.UpdatedAt = sub.CreatedAt

		if err := registry.Save(r.Context(), sub); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(toResponse(sub)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// putSubscription handles PUT /v1/subscriptions/:id
func putSubscription(registry subscription.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		existing, err := registry.Get(r.Context(), id)
		if err != nil {
			http.Error(w, fmt.Sprintf("subscription not found: %s", id), http.StatusNotFound)
			return
		}

		var sr subscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&sr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		sub, err := sr.apply(existing)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		sub.UpdatedAt = time.Now().UTC()

		if err := registry.Save(r.Context(), sub); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(toResponse(sub)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// deleteSubscription handles DELETE /v1/subscriptions/:id
func deleteSubscription(registry subscription.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := registry.Delete(r.Context(), id); err != nil {
			http.Error(w, fmt.Sprintf("subscription not found: %s", id), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// setSubscriptionActive handles the activate and deactivate routes
func setSubscriptionActive(registry subscription.Registry, active bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := registry.SetActive(r.Context(), id, active); err != nil {
			http.Error(w, fmt.Sprintf("subscription not found: %s", id), http.StatusNotFound)
			return
		}

		sub, err := registry.Get(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(toResponse(sub)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// getDeliveryLogs handles GET /v1/subscriptions/:id/logs
func getDeliveryLogs(registry subscription.Registry, store delivery.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := registry.Get(r.Context(), id); err != nil {
			http.Error(w, fmt.Sprintf("subscription not found: %s", id), http.StatusNotFound)
			return
		}

		limit := queryInt(r, "limit", 50)
		offset := queryInt(r, "offset", 0)
		if limit < 1 || limit > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		if offset < 0 {
			http.Error(w, "offset cannot be negative", http.StatusBadRequest)
			return
		}

		logs, err := store.ListLogs(r.Context(), id, limit, offset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(logs); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// getDeliveryStats handles GET /v1/subscriptions/:id/stats
func getDeliveryStats(registry subscription.Registry, store delivery.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := registry.Get(r.Context(), id); err != nil {
			http.Error(w, fmt.Sprintf("subscription not found: %s", id), http.StatusNotFound)
			return
		}

		stats, err := store.Stats(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// getSubscriptionHealth handles GET /v1/subscriptions/:id/health
func getSubscriptionHealth(registry subscription.Registry, store delivery.Store, bands delivery.HealthBands) http.Handler {
	if bands == (delivery.HealthBands{}) {
		bands = delivery.DefaultHealthBands()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := registry.Get(r.Context(), id); err != nil {
			http.Error(w, fmt.Sprintf("subscription not found: %s", id), http.StatusNotFound)
			return
		}

		health, err := store.Health(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		response := healthResponse{
			SubscriptionID:      id,
			ConsecutiveFailures: health.ConsecutiveFailures,
			IsHealthy:           health.IsHealthy,
			Band:                bands.Band(health.ConsecutiveFailures),
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
