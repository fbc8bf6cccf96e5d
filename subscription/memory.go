package subscription

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vasa-trade/webhook-engine/event"
)

/* MemoryRegistry is an in-memory Registry used in tests and dev mode.
 * Safe for concurrent use.
 */
type MemoryRegistry struct {
	mu   sync.RWMutex
	subs map[string]Subscription
}

// NewMemoryRegistry creates an empty in-memory registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{subs: make(map[string]Subscription)}
}

// ListActiveForEvent returns active subscriptions covering the event type
func (m *MemoryRegistry) ListActiveForEvent(ctx context.Context, t event.Type) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Subscription
	for _, sub := range m.subs {
		if sub.IsActive && sub.SubscribesTo(t) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get retrieves a subscription by ID
func (m *MemoryRegistry) Get(ctx context.Context, id string) (Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subs[id]
	if !ok {
		return Subscription{}, fmt.Errorf("subscription not found: %s", id)
	}
	return sub, nil
}

// List returns every subscription sorted by ID
func (m *MemoryRegistry) List(ctx context.Context) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save stores or replaces a subscription
func (m *MemoryRegistry) Save(ctx context.Context, sub Subscription) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("validating subscription: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

// Delete removes a subscription
func (m *MemoryRegistry) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[id]; !ok {
		return fmt.Errorf("subscription not found: %s", id)
	}
	delete(m.subs, id)
	return nil
}

// SetActive toggles dispatch for a subscription
func (m *MemoryRegistry) SetActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok {
		return fmt.Errorf("subscription not found: %s", id)
	}
	sub.IsActive = active
	m.subs[id] = sub
	return nil
}

// Close releases nothing for the in-memory registry
func (m *MemoryRegistry) Close(ctx context.Context) error {
	return nil
}
