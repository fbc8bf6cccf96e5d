package delivery

import (
	"context"
	"time"
)

/* Small, focused interfaces following "The Go Way"
 * The log store is an injected collaborator: the engine never talks to
 * a process-wide singleton, so tests substitute the in-memory store.
 */

// Reader provides read operations over deliveries and their logs
type Reader interface {
	Get(ctx context.Context, id string) (Attempt, error)
	/* ListLogs returns log entries for a subscription,
	 * most-recent-first, bounded by limit/offset.
	 */
	ListLogs(ctx context.Context, webhookID string, limit, offset int) ([]LogEntry, error)
	/* Stats aggregates a subscription's log entries on demand.
	 * Never cached: recomputed so it cannot drift from the log.
	 */
	Stats(ctx context.Context, webhookID string) (Stats, error)
	Health(ctx context.Context, webhookID string) (HealthState, error)
}

// Writer provides the engine's write path
type Writer interface {
	Create(ctx context.Context, attempt Attempt) error
	/* MarkDelivering flags the attempt as in flight for the duration
	 * of one HTTP try. Purely observational: claim ownership comes
	 * from ClaimDue, not from this status.
	 */
	MarkDelivering(ctx context.Context, id string) error
	/* RecordResult applies the outcome of one HTTP try in a single
	 * atomic step: update the attempt record, append the log entry,
	 * adjust the consecutive-failure counter, and (re)schedule or
	 * unschedule the delivery according to attempt.Status and
	 * attempt.NextRetryAt. Counters are never mutated outside this
	 * path, which keeps health and stats read-consistent with the log.
	 */
	RecordResult(ctx context.Context, attempt Attempt, entry LogEntry) error
}

// Scheduler is the durable, time-ordered retry queue. Schedule entries
// survive restarts; a delivery waiting for its retry time holds no
// worker slot.
type Scheduler interface {
	Schedule(ctx context.Context, attemptID string, at time.Time) error
	/* ClaimDue atomically removes and returns up to limit attempt IDs
	 * whose scheduled time is <= now. An ID is claimed by exactly one
	 * worker.
	 */
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]string, error)
	ScheduledCount(ctx context.Context) (int64, error)
}

// Counter exposes aggregate state for the metrics collector
type Counter interface {
	StatusCounts(ctx context.Context) (map[string]int64, error)
}

/* Interface composition - combining small interfaces into larger ones */
type Store interface {
	Reader
	Writer
	Scheduler
	Counter
	Close(ctx context.Context) error
}
