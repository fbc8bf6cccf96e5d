package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/vasa-trade/webhook-engine/engine"
	"github.com/vasa-trade/webhook-engine/event"
)

/* HTTP layer DTOs for event ingestion
 * Separate from domain entities to avoid leaking internal structure
 */

// eventRequest represents an incoming domain event
type eventRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// eventResponse represents the API response when an event is accepted
type eventResponse struct {
	Event       string   `json:"event"`
	Matched     int      `json:"matched"`
	DeliveryIDs []string `json:"delivery_ids"`
}

// testDeliveryResponse represents the API response for a manual test delivery
type testDeliveryResponse struct {
	SubscriptionID string `json:"subscription_id"`
	DeliveryID     string `json:"delivery_id"`
}

// postEvent handles POST /v1/events
func postEvent(dispatcher *engine.Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var er eventRequest
		if err := json.NewDecoder(r.Body).Decode(&er); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ids, err := dispatcher.Emit(r.Context(), event.Type(er.Event), er.Data)
		if err != nil {
			if errors.Is(err, engine.ErrInvalidEvent) {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if ids == nil {
			ids = []string{}
		}

		// 202: accepted for delivery, outcomes are visible in the logs
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		response := eventResponse{
			Event:       er.Event,
			Matched:     len(ids),
			DeliveryIDs: ids,
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// getEventTypes handles GET /v1/event-types
func getEventTypes() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		types := event.Types()
		names := make([]string, 0, len(types))
		for _, t := range types {
			names = append(names, t.String())
		}
		sort.Strings(names)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(names); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// postTestDelivery handles POST /v1/subscriptions/:id/test
func postTestDelivery(dispatcher *engine.Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		deliveryID, err := dispatcher.EmitTest(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		response := testDeliveryResponse{
			SubscriptionID: id,
			DeliveryID:     deliveryID,
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
