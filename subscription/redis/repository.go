package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vasa-trade/webhook-engine/event"
	"github.com/vasa-trade/webhook-engine/subscription"
)

/* Redis implementation of subscription.Registry
 * Uses Redis Hashes for subscription records and Sets as a per-event-type
 * index so ListActiveForEvent never scans the whole keyspace.
 */

const (
	hashPrefix  = "subscription"        // subscription:{id}
	allKey      = "subscriptions"       // set of all subscription ids
	eventPrefix = "subscriptions:event" // subscriptions:event:{type} -> set of ids
)

type Registry struct {
	client *redis.Client
}

// NewRegistry creates a Redis-backed registry and verifies connectivity
func NewRegistry(addr, password string, db int) (*Registry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Registry{client: client}, nil
}

// NewRegistryWithClient wraps an existing client, sharing the connection
// pool with other Redis-backed components
func NewRegistryWithClient(client *redis.Client) *Registry {
	return &Registry{client: client}
}

// Save stores or replaces a subscription and refreshes the event-type index
func (r *Registry) Save(ctx context.Context, sub subscription.Subscription) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("validating subscription: %w", err)
	}

	eventsJSON, err := json.Marshal(sub.Events)
	if err != nil {
		return fmt.Errorf("marshaling events: %w", err)
	}
	headersJSON, err := json.Marshal(sub.Headers)
	if err != nil {
		return fmt.Errorf("marshaling headers: %w", err)
	}
	retryJSON, err := json.Marshal(retryDTO{
		MaxRetries:        sub.RetryPolicy.MaxRetries,
		RetryDelayMs:      sub.RetryPolicy.RetryDelay.Milliseconds(),
		BackoffMultiplier: sub.RetryPolicy.BackoffMultiplier,
		TimeoutMs:         sub.RetryPolicy.Timeout.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("marshaling retry policy: %w", err)
	}
	filtersJSON := []byte("null")
	if sub.Filters != nil {
		filtersJSON, err = json.Marshal(sub.Filters)
		if err != nil {
			return fmt.Errorf("marshaling filters: %w", err)
		}
	}
	rateJSON, err := json.Marshal(sub.RateLimit)
	if err != nil {
		return fmt.Errorf("marshaling rate limit: %w", err)
	}

	// Drop stale event-type index entries before re-indexing
	old, err := r.Get(ctx, sub.ID)
	hadOld := err == nil

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, hashKey(sub.ID), map[string]interface{}{
		"id":          sub.ID,
		"name":        sub.Name,
		"description": sub.Description,
		"url":         sub.URL,
		"method":      sub.Method,
		"events":      string(eventsJSON),
		"secret":      sub.Secret,
		"headers":     string(headersJSON),
		"is_active":   boolToInt(sub.IsActive),
		"retry":       string(retryJSON),
		"filters":     string(filtersJSON),
		"rate_limit":  string(rateJSON),
		"created_at":  sub.CreatedAt.Unix(),
		"updated_at":  time.Now().Unix(),
	})
	pipe.SAdd(ctx, allKey, sub.ID)
	if hadOld {
		for _, t := range old.Events {
			pipe.SRem(ctx, eventKey(t), sub.ID)
		}
	}
	for _, t := range sub.Events {
		pipe.SAdd(ctx, eventKey(t), sub.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing subscription: %w", err)
	}
	return nil
}

// Get retrieves a subscription by ID
func (r *Registry) Get(ctx context.Context, id string) (subscription.Subscription, error) {
	data, err := r.client.HGetAll(ctx, hashKey(id)).Result()
	if err != nil {
		return subscription.Subscription{}, fmt.Errorf("getting subscription: %w", err)
	}
	if len(data) == 0 {
		return subscription.Subscription{}, fmt.Errorf("subscription not found: %s", id)
	}
	return fromHash(data)
}

// List returns every stored subscription
func (r *Registry) List(ctx context.Context) ([]subscription.Subscription, error) {
	ids, err := r.client.SMembers(ctx, allKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing subscription ids: %w", err)
	}

	subs := make([]subscription.Subscription, 0, len(ids))
	for _, id := range ids {
		sub, err := r.Get(ctx, id)
		if err != nil {
			continue // index can briefly outlive a deleted hash
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// ListActiveForEvent returns active subscriptions covering the event type
func (r *Registry) ListActiveForEvent(ctx context.Context, t event.Type) ([]subscription.Subscription, error) {
	ids, err := r.client.SMembers(ctx, eventKey(t)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions for %s: %w", t, err)
	}

	subs := make([]subscription.Subscription, 0, len(ids))
	for _, id := range ids {
		sub, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		if sub.IsActive {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// SetActive toggles dispatch for a subscription
func (r *Registry) SetActive(ctx context.Context, id string, active bool) error {
	exists, err := r.client.Exists(ctx, hashKey(id)).Result()
	if err != nil {
		return fmt.Errorf("checking subscription: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("subscription not found: %s", id)
	}

	err = r.client.HSet(ctx, hashKey(id), map[string]interface{}{
		"is_active":  boolToInt(active),
		"updated_at": time.Now().Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("updating is_active: %w", err)
	}
	return nil
}

// Delete removes a subscription and its index entries
func (r *Registry) Delete(ctx context.Context, id string) error {
	sub, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, hashKey(id))
	pipe.SRem(ctx, allKey, id)
	for _, t := range sub.Events {
		pipe.SRem(ctx, eventKey(t), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *Registry) Close(ctx context.Context) error {
	return r.client.Close()
}

// Helper functions

type retryDTO struct {
	MaxRetries        int     `json:"max_retries"`
	RetryDelayMs      int64   `json:"retry_delay_ms"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	TimeoutMs         int64   `json:"timeout_ms"`
}

func fromHash(data map[string]string) (subscription.Subscription, error) {
	var events []event.Type
	if err := json.Unmarshal([]byte(data["events"]), &events); err != nil {
		return subscription.Subscription{}, fmt.Errorf("unmarshaling events: %w", err)
	}

	headers := make(map[string]string)
	if s, ok := data["headers"]; ok && s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &headers); err != nil {
			return subscription.Subscription{}, fmt.Errorf("unmarshaling headers: %w", err)
		}
	}

	var retry retryDTO
	if err := json.Unmarshal([]byte(data["retry"]), &retry); err != nil {
		return subscription.Subscription{}, fmt.Errorf("unmarshaling retry policy: %w", err)
	}

	var filters *subscription.Filters
	if s, ok := data["filters"]; ok && s != "" && s != "null" {
		filters = &subscription.Filters{}
		if err := json.Unmarshal([]byte(s), filters); err != nil {
			return subscription.Subscription{}, fmt.Errorf("unmarshaling filters: %w", err)
		}
	}

	var rateLimit subscription.RateLimit
	if s, ok := data["rate_limit"]; ok && s != "" {
		if err := json.Unmarshal([]byte(s), &rateLimit); err != nil {
			return subscription.Subscription{}, fmt.Errorf("unmarshaling rate limit: %w", err)
		}
	}

	return subscription.Subscription{
		ID:          data["id"],
		Name:        data["name"],
		Description: data["description"],
		URL:         data["url"],
		Method:      data["method"],
		Events:      events,
		Secret:      data["secret"],
		Headers:     headers,
		IsActive:    data["is_active"] == "1",
		RetryPolicy: subscription.RetryPolicy{
			MaxRetries:        retry.MaxRetries,
			RetryDelay:        time.Duration(retry.RetryDelayMs) * time.Millisecond,
			BackoffMultiplier: retry.BackoffMultiplier,
			Timeout:           time.Duration(retry.TimeoutMs) * time.Millisecond,
		},
		Filters:   filters,
		RateLimit: rateLimit,
		CreatedAt: time.Unix(parseInt64(data["created_at"]), 0),
		UpdatedAt: time.Unix(parseInt64(data["updated_at"]), 0),
	}, nil
}

func hashKey(id string) string {
	return fmt.Sprintf("%s:%s", hashPrefix, id)
}

func eventKey(t event.Type) string {
	return fmt.Sprintf("%s:%s", eventPrefix, t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseInt64(s string) int64 {
	var result int64
	fmt.Sscanf(s, "%d", &result)
	return result
}
