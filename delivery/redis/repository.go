package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vasa-trade/webhook-engine/delivery"
	"github.com/vasa-trade/webhook-engine/event"
)

/* Redis implementation of delivery.Store
 * Uses Redis Hashes for evolving attempt records, Lists for the
 * append-only per-subscription delivery log, and a Sorted Set keyed by
 * next-retry time as the durable schedule. A crash-restart resumes
 * pending retries from the sorted set without loss.
 */

const (
	attemptPrefix = "delivery"                 // delivery:{attempt_id}
	logPrefix     = "deliverylog"              // deliverylog:{webhook_id}
	healthPrefix  = "deliveryhealth"           // deliveryhealth:{webhook_id}
	scheduleKey   = "deliveries:scheduled"     // zset: attempt_id scored by due time (unix ms)
	countsKey     = "deliveries:status_counts" // hash: status -> attempt count
)

type Store struct {
	client *redis.Client
}

// NewStore creates a Redis-backed delivery store and verifies connectivity
func NewStore(addr, password string, db int) (*Store, error) {
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

	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client, sharing the connection
// pool with other Redis-backed components
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Create stores a new delivery attempt record
func (s *Store) Create(ctx context.Context, attempt delivery.Attempt) error {
	fields, err := toHash(attempt)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, attemptKey(attempt.ID), fields)
	pipe.HIncrBy(ctx, countsKey, attempt.Status.String(), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing attempt: %w", err)
	}
	return nil
}

// Get retrieves a delivery attempt by ID
func (s *Store) Get(ctx context.Context, id string) (delivery.Attempt, error) {
	data, err := s.client.HGetAll(ctx, attemptKey(id)).Result()
	if err != nil {
		return delivery.Attempt{}, fmt.Errorf("getting attempt: %w", err)
	}
	if len(data) == 0 {
		return delivery.Attempt{}, fmt.Errorf("attempt not found: %s", id)
	}
	return fromHash(data)
}

// MarkDelivering flags the attempt as in flight, keeping the status
// counts consistent with the transition
func (s *Store) MarkDelivering(ctx context.Context, id string) error {
	prevStatus, err := s.client.HGet(ctx, attemptKey(id), "status").Result()
	if err == redis.Nil {
		return fmt.Errorf("attempt not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("reading attempt status: %w", err)
	}
	if prevStatus == delivery.Delivering.String() {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, attemptKey(id),
		"status", delivery.Delivering.String(),
		"updated_at", time.Now().UnixMilli())
	pipe.HIncrBy(ctx, countsKey, prevStatus, -1)
	pipe.HIncrBy(ctx, countsKey, delivery.Delivering.String(), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("marking attempt delivering: %w", err)
	}
	return nil
}

// RecordResult applies the outcome of one HTTP try: attempt update, log
// append, failure counter and schedule change in one pipeline
func (s *Store) RecordResult(ctx context.Context, attempt delivery.Attempt, entry delivery.LogEntry) error {
	prevStatus, err := s.client.HGet(ctx, attemptKey(attempt.ID), "status").Result()
	if err == redis.Nil {
		return fmt.Errorf("attempt not found: %s", attempt.ID)
	}
	if err != nil {
		return fmt.Errorf("reading attempt status: %w", err)
	}

	attempt.UpdatedAt = time.Now()
	fields, err := toHash(attempt)
	if err != nil {
		return err
	}

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling log entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, attemptKey(attempt.ID), fields)
	pipe.LPush(ctx, logKey(attempt.WebhookID), entryJSON)

	if entry.Succeeded() {
		pipe.HSet(ctx, healthKey(attempt.WebhookID), "consecutive_failures", 0)
	} else {
		pipe.HIncrBy(ctx, healthKey(attempt.WebhookID), "consecutive_failures", 1)
	}

	if prevStatus != attempt.Status.String() {
		pipe.HIncrBy(ctx, countsKey, prevStatus, -1)
		pipe.HIncrBy(ctx, countsKey, attempt.Status.String(), 1)
	}

	if attempt.Status == delivery.Retry && !attempt.NextRetryAt.IsZero() {
		pipe.ZAdd(ctx, scheduleKey, redis.Z{
			Score:  float64(attempt.NextRetryAt.UnixMilli()),
			Member: attempt.ID,
		})
	} else {
		pipe.ZRem(ctx, scheduleKey, attempt.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording result: %w", err)
	}
	return nil
}

// Schedule queues a delivery for execution at the given time
func (s *Store) Schedule(ctx context.Context, attemptID string, at time.Time) error {
	err := s.client.ZAdd(ctx, scheduleKey, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: attemptID,
	}).Err()
	if err != nil {
		return fmt.Errorf("scheduling delivery: %w", err)
	}
	return nil
}

// ClaimDue removes and returns up to limit due attempt IDs. ZRem is the
// claim: only the worker whose removal succeeds owns the delivery.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	candidates, err := s.client.ZRangeByScore(ctx, scheduleKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing due deliveries: %w", err)
	}

	var claimed []string
	for _, id := range candidates {
		removed, err := s.client.ZRem(ctx, scheduleKey, id).Result()
		if err != nil {
			return claimed, fmt.Errorf("claiming delivery: %w", err)
		}
		if removed == 1 {
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

// ScheduledCount returns the number of queued deliveries
func (s *Store) ScheduledCount(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, scheduleKey).Result()
	if err != nil {
		return 0, fmt.Errorf("counting scheduled deliveries: %w", err)
	}
	return n, nil
}

// ListLogs returns a subscription's log entries, most-recent-first
func (s *Store) ListLogs(ctx context.Context, webhookID string, limit, offset int) ([]delivery.LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	stop := int64(offset + limit - 1)

	raw, err := s.client.LRange(ctx, logKey(webhookID), int64(offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("listing delivery logs: %w", err)
	}

	entries := make([]delivery.LogEntry, 0, len(raw))
	for _, item := range raw {
		var entry delivery.LogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("unmarshaling log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Stats recomputes aggregates from the subscription's full log
func (s *Store) Stats(ctx context.Context, webhookID string) (delivery.Stats, error) {
	raw, err := s.client.LRange(ctx, logKey(webhookID), 0, -1).Result()
	if err != nil {
		return delivery.Stats{}, fmt.Errorf("reading delivery log: %w", err)
	}

	entries := make([]delivery.LogEntry, 0, len(raw))
	for _, item := range raw {
		var entry delivery.LogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return delivery.Stats{}, fmt.Errorf("unmarshaling log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return delivery.ComputeStats(entries), nil
}

// Health returns the subscription's consecutive-failure state
func (s *Store) Health(ctx context.Context, webhookID string) (delivery.HealthState, error) {
	val, err := s.client.HGet(ctx, healthKey(webhookID), "consecutive_failures").Result()
	if err == redis.Nil {
		return delivery.HealthState{IsHealthy: true}, nil
	}
	if err != nil {
		return delivery.HealthState{}, fmt.Errorf("reading health: %w", err)
	}

	failures, _ := strconv.Atoi(val)
	return delivery.HealthState{
		ConsecutiveFailures: failures,
		IsHealthy:           failures == 0,
	}, nil
}

// StatusCounts counts attempts per status for the metrics collector
func (s *Store) StatusCounts(ctx context.Context) (map[string]int64, error) {
	data, err := s.client.HGetAll(ctx, countsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("reading status counts: %w", err)
	}

	counts := make(map[string]int64, len(data))
	for status, v := range data {
		n, _ := strconv.ParseInt(v, 10, 64)
		counts[status] = n
	}
	return counts, nil
}

// Close closes the Redis connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Close()
}

// Helper functions

func toHash(a delivery.Attempt) (map[string]interface{}, error) {
	requestJSON, err := json.Marshal(a.Request)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	responseJSON := []byte("null")
	if a.Response != nil {
		responseJSON, err = json.Marshal(a.Response)
		if err != nil {
			return nil, fmt.Errorf("marshaling response: %w", err)
		}
	}
	errorJSON := []byte("null")
	if a.ErrorDetail != nil {
		errorJSON, err = json.Marshal(a.ErrorDetail)
		if err != nil {
			return nil, fmt.Errorf("marshaling error detail: %w", err)
		}
	}

	nextRetry := int64(0)
	if !a.NextRetryAt.IsZero() {
		nextRetry = a.NextRetryAt.UnixMilli()
	}

	return map[string]interface{}{
		"id":            a.ID,
		"webhook_id":    a.WebhookID,
		"event_type":    a.EventType.String(),
		"event_id":      a.EventID,
		"status":        a.Status.String(),
		"attempts":      a.Attempts,
		"max_attempts":  a.MaxAttempts,
		"request":       string(requestJSON),
		"response":      string(responseJSON),
		"error":         string(errorJSON),
		"created_at":    a.CreatedAt.UnixMilli(),
		"updated_at":    a.UpdatedAt.UnixMilli(),
		"next_retry_at": nextRetry,
	}, nil
}

func fromHash(data map[string]string) (delivery.Attempt, error) {
	var request delivery.Request
	if err := json.Unmarshal([]byte(data["request"]), &request); err != nil {
		return delivery.Attempt{}, fmt.Errorf("unmarshaling request: %w", err)
	}

	var response *delivery.Response
	if s, ok := data["response"]; ok && s != "" && s != "null" {
		response = &delivery.Response{}
		if err := json.Unmarshal([]byte(s), response); err != nil {
			return delivery.Attempt{}, fmt.Errorf("unmarshaling response: %w", err)
		}
	}

	var errDetail *delivery.ErrorDetail
	if s, ok := data["error"]; ok && s != "" && s != "null" {
		errDetail = &delivery.ErrorDetail{}
		if err := json.Unmarshal([]byte(s), errDetail); err != nil {
			return delivery.Attempt{}, fmt.Errorf("unmarshaling error detail: %w", err)
		}
	}

	var nextRetryAt time.Time
	if ms := parseInt64(data["next_retry_at"]); ms > 0 {
		nextRetryAt = time.UnixMilli(ms)
	}

	return delivery.Attempt{
		ID:          data["id"],
		WebhookID:   data["webhook_id"],
		EventType:   event.Type(data["event_type"]),
		EventID:     data["event_id"],
		Status:      delivery.NewStatus(data["status"]),
		Attempts:    int(parseInt64(data["attempts"])),
		MaxAttempts: int(parseInt64(data["max_attempts"])),
		Request:     request,
		Response:    response,
		ErrorDetail: errDetail,
		CreatedAt:   time.UnixMilli(parseInt64(data["created_at"])),
		UpdatedAt:   time.UnixMilli(parseInt64(data["updated_at"])),
		NextRetryAt: nextRetryAt,
	}, nil
}

func attemptKey(id string) string {
	return fmt.Sprintf("%s:%s", attemptPrefix, id)
}

func logKey(webhookID string) string {
	return fmt.Sprintf("%s:%s", logPrefix, webhookID)
}

func healthKey(webhookID string) string {
	return fmt.Sprintf("%s:%s", healthPrefix, webhookID)
}

func parseInt64(s string) int64 {
	var result int64
	fmt.Sscanf(s, "%d", &result)
	return result
}
