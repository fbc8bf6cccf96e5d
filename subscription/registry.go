package subscription

import (
	"context"

	"github.com/vasa-trade/webhook-engine/event"
)

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// Reader provides the read operations the delivery engine depends on
type Reader interface {
	/* ListActiveForEvent returns active subscriptions covering the
	 * event type. A registry outage is a transient error surfaced to
	 * the caller; the event must not be dropped silently.
	 */
	ListActiveForEvent(ctx context.Context, t event.Type) ([]Subscription, error)
	Get(ctx context.Context, id string) (Subscription, error)
	List(ctx context.Context) ([]Subscription, error)
}

// Writer provides the management operations for subscription configs
type Writer interface {
	Save(ctx context.Context, sub Subscription) error
	Delete(ctx context.Context, id string) error
	/* SetActive toggles dispatch for a subscription. Deactivating stops
	 * new dispatch immediately; already-scheduled retries are cancelled
	 * when the worker claims them.
	 */
	SetActive(ctx context.Context, id string, active bool) error
}

/* Interface composition - combining small interfaces into larger ones
 * This is preferred over large monolithic interfaces
 */
type Registry interface {
	Reader
	Writer
	Close(ctx context.Context) error
}
