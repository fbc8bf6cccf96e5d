package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/vasa-trade/webhook-engine/delivery"
	"github.com/vasa-trade/webhook-engine/engine"
	"github.com/vasa-trade/webhook-engine/subscription"
)

// Deps holds the collaborators the management API is built on
type Deps struct {
	Registry   subscription.Registry
	Store      delivery.Store
	Dispatcher *engine.Dispatcher
	Bands      delivery.HealthBands

	// Metrics serves the Prometheus scrape endpoint; nil disables it
	Metrics http.Handler
}

// Handlers sets up the management API routes
func Handlers(ctx context.Context, deps Deps) *chi.Mux {
	logger := httplog.NewLogger("webhook-engine-api", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		// Event ingestion
		r.Post("/events", postEvent(deps.Dispatcher).ServeHTTP)
		r.Get("/event-types", getEventTypes().ServeHTTP)

		// Subscription management
		r.Get("/subscriptions", getSubscriptions(deps.Registry).ServeHTTP)
		r.Post("/subscriptions", postSubscription(deps.Registry).ServeHTTP)
		r.Get("/subscriptions/{id}", getSubscription(deps.Registry).ServeHTTP)
		r.Put("/subscriptions/{id}", putSubscription(deps.Registry).ServeHTTP)
		r.Delete("/subscriptions/{id}", deleteSubscription(deps.Registry).ServeHTTP)
		r.Post("/subscriptions/{id}/activate", setSubscriptionActive(deps.Registry, true).ServeHTTP)
		r.Post("/subscriptions/{id}/deactivate", setSubscriptionActive(deps.Registry, false).ServeHTTP)

		// Delivery observability
		r.Post("/subscriptions/{id}/test", postTestDelivery(deps.Dispatcher).ServeHTTP)
		r.Get("/subscriptions/{id}/logs", getDeliveryLogs(deps.Registry, deps.Store).ServeHTTP)
		r.Get("/subscriptions/{id}/stats", getDeliveryStats(deps.Registry, deps.Store).ServeHTTP)
		r.Get("/subscriptions/{id}/health", getSubscriptionHealth(deps.Registry, deps.Store, deps.Bands).ServeHTTP)
	})

	return r
}
