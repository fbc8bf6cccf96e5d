package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/vasa-trade/webhook-engine/delivery"
	"github.com/vasa-trade/webhook-engine/subscription"
)

// throughputScanLimit bounds how far back into each subscription's
// delivery log a throughput scrape looks
const throughputScanLimit = 1000

// StoreCollector implements the Collector interface on top of the
// delivery store and the subscription registry
type StoreCollector struct {
	store    delivery.Store
	registry subscription.Reader
	bands    delivery.HealthBands
}

// NewStoreCollector creates a metrics collector over the engine's stores
func NewStoreCollector(store delivery.Store, registry subscription.Reader, bands delivery.HealthBands) *StoreCollector {
	if bands == (delivery.HealthBands{}) {
		bands = delivery.DefaultHealthBands()
	}
	return &StoreCollector{
		store:    store,
		registry: registry,
		bands:    bands,
	}
}

// Collect gathers all metrics from the stores
func (c *StoreCollector) Collect(ctx context.Context) (Metrics, error) {
	scheduled, err := c.GetScheduledRetries(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting scheduled retries: %w", err)
	}

	statusCounts, err := c.GetStatusCounts(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting status counts: %w", err)
	}

	throughput, err := c.GetThroughput(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting throughput: %w", err)
	}

	healthBands, err := c.GetHealthBands(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting health bands: %w", err)
	}

	return Metrics{
		ScheduledRetries: scheduled,
		StatusCounts:     statusCounts,
		Throughput:       throughput,
		HealthBands:      healthBands,
		Timestamp:        time.Now(),
	}, nil
}

// GetScheduledRetries returns the depth of the delivery schedule
func (c *StoreCollector) GetScheduledRetries(ctx context.Context) (int64, error) {
	return c.store.ScheduledCount(ctx)
}

// GetStatusCounts returns counts of deliveries grouped by status
func (c *StoreCollector) GetStatusCounts(ctx context.Context) (map[string]int64, error) {
	counts, err := c.store.StatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting delivery statuses: %w", err)
	}

	// every status appears even when zero, so dashboards keep stable series
	out := map[string]int64{
		delivery.Pending.String():    0,
		delivery.Delivering.String(): 0,
		delivery.Success.String():    0,
		delivery.Retry.String():      0,
		delivery.Abandoned.String():  0,
	}
	for status, n := range counts {
		out[status] = n
	}
	return out, nil
}

// GetThroughput counts recent successful deliveries across all
// subscriptions, recomputed from the delivery logs on each scrape
func (c *StoreCollector) GetThroughput(ctx context.Context) (ThroughputMetrics, error) {
	subs, err := c.registry.List(ctx)
	if err != nil {
		return ThroughputMetrics{}, fmt.Errorf("listing subscriptions: %w", err)
	}

	now := time.Now()
	oneMinuteAgo := now.Add(-1 * time.Minute)
	fiveMinutesAgo := now.Add(-5 * time.Minute)
	fifteenMinutesAgo := now.Add(-15 * time.Minute)

	var tp ThroughputMetrics
	for _, sub := range subs {
		entries, err := c.store.ListLogs(ctx, sub.ID, throughputScanLimit, 0)
		if err != nil {
			// one bad log must not blank the whole scrape
			continue
		}
		for _, e := range entries {
			if !e.Succeeded() || e.Timestamp.Before(fifteenMinutesAgo) {
				continue
			}
			tp.LastFifteenMinutes++
			if e.Timestamp.After(fiveMinutesAgo) {
				tp.LastFiveMinutes++
				if e.Timestamp.After(oneMinuteAgo) {
					tp.LastMinute++
				}
			}
		}
	}
	return tp, nil
}

// GetHealthBands classifies every subscription into its health band
func (c *StoreCollector) GetHealthBands(ctx context.Context) (map[string]int64, error) {
	subs, err := c.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}

	out := map[string]int64{"healthy": 0, "degraded": 0, "unhealthy": 0}
	for _, sub := range subs {
		health, err := c.store.Health(ctx, sub.ID)
		if err != nil {
			continue
		}
		out[c.bands.Band(health.ConsecutiveFailures)]++
	}
	return out, nil
}
