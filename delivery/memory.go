package delivery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

/* MemoryStore is an in-memory Store used in tests and dev mode.
 * Mirrors the Redis store's semantics: RecordResult applies the
 * attempt update, log append, failure counter and schedule change
 * under one lock.
 */
type MemoryStore struct {
	mu        sync.RWMutex
	attempts  map[string]Attempt
	logs      map[string][]LogEntry // webhookID -> entries, oldest first
	failures  map[string]int       // webhookID -> consecutive failures
	scheduled map[string]time.Time // attemptID -> due time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts:  make(map[string]Attempt),
		logs:      make(map[string][]LogEntry),
		failures:  make(map[string]int),
		scheduled: make(map[string]time.Time),
	}
}

// Create stores a new delivery attempt record
func (m *MemoryStore) Create(ctx context.Context, attempt Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.attempts[attempt.ID]; exists {
		return fmt.Errorf("attempt already exists: %s", attempt.ID)
	}
	m.attempts[attempt.ID] = attempt
	return nil
}

// Get retrieves a delivery attempt by ID
func (m *MemoryStore) Get(ctx context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	attempt, ok := m.attempts[id]
	if !ok {
		return Attempt{}, fmt.Errorf("attempt not found: %s", id)
	}
	return attempt, nil
}

// MarkDelivering flags the attempt as in flight
func (m *MemoryStore) MarkDelivering(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	attempt, ok := m.attempts[id]
	if !ok {
		return fmt.Errorf("attempt not found: %s", id)
	}
	attempt.Status = Delivering
	attempt.UpdatedAt = time.Now()
	m.attempts[id] = attempt
	return nil
}

// RecordResult applies the outcome of one HTTP try atomically
func (m *MemoryStore) RecordResult(ctx context.Context, attempt Attempt, entry LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.attempts[attempt.ID]; !ok {
		return fmt.Errorf("attempt not found: %s", attempt.ID)
	}

	attempt.UpdatedAt = time.Now()
	m.attempts[attempt.ID] = attempt
	m.logs[attempt.WebhookID] = append(m.logs[attempt.WebhookID], entry)

	if entry.Succeeded() {
		m.failures[attempt.WebhookID] = 0
	} else {
		m.failures[attempt.WebhookID]++
	}

	if attempt.Status == Retry && !attempt.NextRetryAt.IsZero() {
		m.scheduled[attempt.ID] = attempt.NextRetryAt
	} else {
		delete(m.scheduled, attempt.ID)
	}
	return nil
}

// Schedule queues a delivery for execution at the given time
func (m *MemoryStore) Schedule(ctx context.Context, attemptID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled[attemptID] = at
	return nil
}

// ClaimDue removes and returns up to limit due attempt IDs
func (m *MemoryStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type due struct {
		id string
		at time.Time
	}
	var dues []due
	for id, at := range m.scheduled {
		if !at.After(now) {
			dues = append(dues, due{id, at})
		}
	}
	sort.Slice(dues, func(i, j int) bool { return dues[i].at.Before(dues[j].at) })

	if limit > 0 && len(dues) > limit {
		dues = dues[:limit]
	}

	ids := make([]string, 0, len(dues))
	for _, d := range dues {
		delete(m.scheduled, d.id)
		ids = append(ids, d.id)
	}
	return ids, nil
}

// ScheduledCount returns the number of queued deliveries
func (m *MemoryStore) ScheduledCount(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.scheduled)), nil
}

// ListLogs returns a subscription's log entries, most-recent-first
func (m *MemoryStore) ListLogs(ctx context.Context, webhookID string, limit, offset int) ([]LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	entries := m.logs[webhookID]
	out := make([]LogEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}

	if offset >= len(out) {
		return []LogEntry{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats recomputes aggregates from the subscription's log
func (m *MemoryStore) Stats(ctx context.Context, webhookID string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ComputeStats(m.logs[webhookID]), nil
}

// Health returns the subscription's consecutive-failure state
func (m *MemoryStore) Health(ctx context.Context, webhookID string) (HealthState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	failures := m.failures[webhookID]
	return HealthState{
		ConsecutiveFailures: failures,
		IsHealthy:           failures == 0,
	}, nil
}

// StatusCounts counts attempts per status for the metrics collector
func (m *MemoryStore) StatusCounts(ctx context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for _, a := range m.attempts {
		counts[a.Status.String()]++
	}
	return counts, nil
}

// Close releases nothing for the in-memory store
func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}
