package metrics

import (
	"context"
	"time"
)

// Metrics represents the current state of the delivery engine.
type Metrics struct {
	// ScheduledRetries is the number of deliveries waiting on the schedule
	ScheduledRetries int64 `json:"scheduled_retries"`

	// StatusCounts maps delivery status name to the number of deliveries in it
	StatusCounts map[string]int64 `json:"status_counts"`

	// Throughput represents successful deliveries per time window
	Throughput ThroughputMetrics `json:"throughput"`

	// HealthBands maps band name to the number of subscriptions in that band
	HealthBands map[string]int64 `json:"health_bands"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// ThroughputMetrics represents successful deliveries over different time windows.
type ThroughputMetrics struct {
	// LastMinute is deliveries completed in the last 1 minute
	LastMinute int64 `json:"last_minute"`

	// LastFiveMinutes is deliveries completed in the last 5 minutes
	LastFiveMinutes int64 `json:"last_five_minutes"`

	// LastFifteenMinutes is deliveries completed in the last 15 minutes
	LastFifteenMinutes int64 `json:"last_fifteen_minutes"`
}

// Collector defines the interface for collecting metrics from the engine.
type Collector interface {
	// Collect gathers current metrics from the system
	Collect(ctx context.Context) (Metrics, error)

	// GetScheduledRetries returns the number of deliveries on the schedule
	GetScheduledRetries(ctx context.Context) (int64, error)

	// GetStatusCounts returns the count of deliveries by status
	GetStatusCounts(ctx context.Context) (map[string]int64, error)

	// GetThroughput returns successful deliveries over time windows
	GetThroughput(ctx context.Context) (ThroughputMetrics, error)

	// GetHealthBands returns the number of subscriptions per health band
	GetHealthBands(ctx context.Context) (map[string]int64, error)
}
