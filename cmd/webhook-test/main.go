package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vasa-trade/webhook-engine/delivery/signature"
	"github.com/vasa-trade/webhook-engine/event"
)

/* webhook-test - test harness for the delivery engine
 *
 * Subcommands:
 *   listen  starts a subscriber endpoint that verifies signatures
 *   send    emits a sample event through the engine's API
 *   load    emits many events concurrently
 */

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "listen":
		err = runListen(os.Args[2:])
	case "send":
		err = runSend(os.Args[2:])
	case "load":
		err = runLoad(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: webhook-test <listen|send|load> [flags]")
}

// runListen serves a subscriber endpoint that prints and verifies
// every delivery it receives
func runListen(args []string) error {
	fs := flag.NewFlagSet("listen", flag.ExitOnError)
	port := fs.String("port", "9090", "port to listen on")
	secret := fs.String("secret", "", "shared secret for signature verification")
	status := fs.Int("status", 200, "status code to answer with")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var received atomic.Int64
	handler := func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "reading body", http.StatusBadRequest)
			return
		}

		n := received.Add(1)
		fmt.Printf("[%d] %s delivery=%s webhook=%s\n",
			n,
			r.Header.Get("X-VASA-Event"),
			r.Header.Get("X-VASA-Delivery"),
			r.Header.Get("X-VASA-Webhook"))

		if *secret != "" {
			sig := r.Header.Get("X-VASA-Signature")
			if !signature.Verify(body, sig, *secret) {
				fmt.Printf("[%d]   signature INVALID\n", n)
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}
			fmt.Printf("[%d]   signature ok\n", n)
		}

		if env, err := event.Parse(body); err != nil {
			fmt.Printf("[%d]   envelope INVALID: %v\n", n, err)
		} else {
			fmt.Printf("[%d]   envelope ok, api_version=%s environment=%s\n", n, env.APIVersion, env.Environment)
		}

		w.WriteHeader(*status)
	}

	fmt.Printf("Listening for deliveries on :%s (answering %d)\n", *port, *status)
	return http.ListenAndServe(":"+*port, http.HandlerFunc(handler))
}

// runSend posts one sample event to the engine's management API
func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	api := fs.String("api", "http://localhost:8080", "engine API base URL")
	eventType := fs.String("event", "order.created", "event type to emit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := event.ParseType(*eventType)
	if err != nil {
		return err
	}

	raw, status, err := emit(*api, t)
	if err != nil {
		return err
	}
	fmt.Printf("HTTP %d: %s\n", status, bytes.TrimSpace(raw))
	return nil
}

// runLoad emits many events concurrently and reports the tally
func runLoad(args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	api := fs.String("api", "http://localhost:8080", "engine API base URL")
	eventType := fs.String("event", "order.created", "event type to emit")
	count := fs.Int("count", 100, "number of events to emit")
	concurrency := fs.Int("concurrency", 10, "number of concurrent senders")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := event.ParseType(*eventType)
	if err != nil {
		return err
	}

	var accepted, failed atomic.Int64
	jobs := make(chan struct{})
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				if _, status, err := emit(*api, t); err != nil || status != http.StatusAccepted {
					failed.Add(1)
					continue
				}
				accepted.Add(1)
			}
		}()
	}
	for i := 0; i < *count; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("Emitted %d events in %s (%.0f/s): %d accepted, %d failed\n",
		*count, elapsed.Round(time.Millisecond),
		float64(*count)/elapsed.Seconds(),
		accepted.Load(), failed.Load())
	return nil
}

// emit posts one sample event of the given type and returns the response
func emit(api string, t event.Type) ([]byte, int, error) {
	body, err := json.Marshal(map[string]any{
		"event": t.String(),
		"data":  samplePayload(t),
	})
	if err != nil {
		return nil, 0, err
	}

	resp, err := http.Post(api+"/v1/events", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}

// samplePayload builds a payload satisfying the event category's shape
func samplePayload(t event.Type) any {
	switch t.Category() {
	case "order":
		return event.OrderPayload{
			OrderID: "ord-sample", Status: "confirmed",
			TotalValue: 149.90, Currency: "EUR",
			BuyerCountry: "DE", SellerCountry: "PT",
		}
	case "payment":
		return event.PaymentPayload{
			PaymentID: "pay-sample", OrderID: "ord-sample",
			PaymentType: "card", Amount: 149.90, Currency: "EUR", Status: "completed",
		}
	case "shipping":
		return event.ShippingPayload{
			ShipmentID: "shp-sample", OrderID: "ord-sample",
			Carrier: "dhl", Status: "in_transit", DestinationCountry: "DE",
		}
	case "product":
		return event.ProductPayload{
			ProductID: "prd-sample", Name: "Sample Product", Category: "electronics",
		}
	case "user":
		return event.UserPayload{UserID: "usr-sample", Country: "DE"}
	case "document":
		return event.DocumentPayload{DocumentID: "doc-sample", OwnerID: "usr-sample"}
	case "compliance":
		return event.CompliancePayload{
			ScreeningID: "scr-sample", SubjectID: "usr-sample", Country: "DE",
		}
	default:
		return event.SystemPayload{Message: "sample event", TriggeredBy: "webhook-test"}
	}
}
