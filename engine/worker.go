package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vasa-trade/webhook-engine/delivery"
	"github.com/vasa-trade/webhook-engine/delivery/signature"
	"github.com/vasa-trade/webhook-engine/subscription"
)

// Standard headers stamped on every outbound request
const (
	HeaderEvent        = "X-VASA-Event"
	HeaderDelivery     = "X-VASA-Delivery"
	HeaderWebhook      = "X-VASA-Webhook"
	HeaderSignature    = "X-VASA-Signature"
	HeaderSignatureAlg = "X-VASA-Signature-Algorithm"
)

// maxResponseBody caps how much of a subscriber's response is recorded
const maxResponseBody = 64 * 1024

// Config holds the delivery engine's tunables
type Config struct {
	Workers           int           // concurrent delivery goroutines
	PollInterval      time.Duration // schedule poll cadence
	ClaimBatch        int           // max deliveries claimed per poll
	MaxInFlightPerSub int           // per-subscription concurrency cap
	BackoffCeiling    time.Duration
	DeferDelay        time.Duration // re-schedule delay for throttled attempts
	HealthBands       delivery.HealthBands
	AutoDisable       bool // disable subscriptions crossing the threshold
	AutoDisableAfter  int  // consecutive failures before auto-disable
	Environment       string
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		Workers:           8,
		PollInterval:      250 * time.Millisecond,
		ClaimBatch:        32,
		MaxInFlightPerSub: 4,
		BackoffCeiling:    DefaultBackoffCeiling,
		DeferDelay:        time.Second,
		HealthBands:       delivery.DefaultHealthBands(),
		AutoDisable:       false,
		AutoDisableAfter:  5,
		Environment:       "production",
	}
}

/* Worker executes delivery attempts claimed from the durable schedule.
 * One claimed delivery runs on one goroutine at a time; attempts within
 * a delivery are strictly sequential because the delivery is only ever
 * re-scheduled after its outcome is recorded.
 */
type Worker struct {
	registry subscription.Registry
	store    delivery.Store
	limiter  *RateLimiter
	client   *http.Client
	cfg      Config
	logger   *slog.Logger

	slots    chan struct{} // global in-flight cap
	perSubMu sync.Mutex
	perSub   map[string]chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a delivery worker with dependency injection.
// A nil client gets a default with sane connection pooling; per-attempt
// timeouts come from each subscription's retry policy.
func NewWorker(registry subscription.Registry, store delivery.Store, limiter *RateLimiter, client *http.Client, cfg Config, logger *slog.Logger) *Worker {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.ClaimBatch <= 0 {
		cfg.ClaimBatch = DefaultConfig().ClaimBatch
	}
	if cfg.MaxInFlightPerSub <= 0 {
		cfg.MaxInFlightPerSub = DefaultConfig().MaxInFlightPerSub
	}
	if cfg.DeferDelay <= 0 {
		cfg.DeferDelay = DefaultConfig().DeferDelay
	}
	if cfg.HealthBands == (delivery.HealthBands{}) {
		cfg.HealthBands = delivery.DefaultHealthBands()
	}
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = NewRateLimiter()
	}

	return &Worker{
		registry: registry,
		store:    store,
		limiter:  limiter,
		client:   client,
		cfg:      cfg,
		logger:   logger,
		slots:    make(chan struct{}, cfg.Workers),
		perSub:   make(map[string]chan struct{}),
	}
}

// Run polls the schedule until the context is cancelled, then waits for
// in-flight deliveries to finish
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.logger.Info("delivery worker started",
		"workers", w.cfg.Workers,
		"poll_interval", w.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			w.logger.Info("delivery worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("polling schedule", "error", err)
			}
		}
	}
}

func (w *Worker) poll(ctx context.Context) error {
	ids, err := w.store.ClaimDue(ctx, time.Now(), w.cfg.ClaimBatch)
	if err != nil {
		return fmt.Errorf("claiming due deliveries: %w", err)
	}

	for _, id := range ids {
		select {
		case w.slots <- struct{}{}:
		case <-ctx.Done():
			// hand the claim back so a restart picks it up
			_ = w.store.Schedule(context.WithoutCancel(ctx), id, time.Now())
			return ctx.Err()
		}

		w.wg.Add(1)
		go func(attemptID string) {
			defer w.wg.Done()
			defer func() { <-w.slots }()
			w.ProcessOne(ctx, attemptID)
		}(id)
	}
	return nil
}

/* ProcessOne runs a single claimed delivery through one HTTP try and
 * records the outcome. Exported for the worker tests; production code
 * reaches it through Run.
 */
func (w *Worker) ProcessOne(ctx context.Context, attemptID string) {
	attempt, err := w.store.Get(ctx, attemptID)
	if err != nil {
		w.logger.Error("loading claimed attempt", "attempt_id", attemptID, "error", err)
		return
	}
	if attempt.Status.IsFinal() {
		return
	}

	sub, err := w.registry.Get(ctx, attempt.WebhookID)
	if err != nil {
		// registry blip: put the delivery back instead of losing it
		w.logger.Warn("subscription lookup failed, re-scheduling",
			"attempt_id", attemptID, "webhook_id", attempt.WebhookID, "error", err)
		_ = w.store.Schedule(ctx, attemptID, time.Now().Add(w.cfg.DeferDelay))
		return
	}

	/* Deactivation cancels queued work: scheduled retries for an
	 * inactive subscription are abandoned when claimed, with an
	 * explicit log entry rather than a silent drop.
	 */
	if !sub.IsActive {
		w.abandonInactive(ctx, attempt)
		return
	}

	// Caller-side throttling defers, it never fails the delivery
	if !w.limiter.Allow(sub) {
		_ = w.store.Schedule(ctx, attemptID, time.Now().Add(w.cfg.DeferDelay))
		return
	}

	release, ok := w.acquireSubSlot(sub.ID)
	if !ok {
		_ = w.store.Schedule(ctx, attemptID, time.Now().Add(w.cfg.DeferDelay))
		return
	}
	defer release()

	w.execute(ctx, sub, attempt)
}

func (w *Worker) execute(ctx context.Context, sub subscription.Subscription, attempt delivery.Attempt) {
	if err := w.store.MarkDelivering(ctx, attempt.ID); err != nil {
		w.logger.Error("marking attempt in flight", "attempt_id", attempt.ID, "error", err)
		w.handBack(ctx, attempt.ID, time.Now().Add(w.cfg.DeferDelay))
		return
	}
	attempt.Status = delivery.Delivering

	attempt.Attempts++
	try := attempt.Attempts

	headers := buildHeaders(sub, attempt)
	attempt.Request.Headers = headers
	attempt.Request.Timestamp = time.Now()

	resp, errDetail := w.executeHTTP(ctx, sub, attempt, headers)

	/* A cancelled run context means the engine is shutting down, not
	 * that the subscriber failed. The interrupted try is not an
	 * outcome: hand the claim back so a restart picks it up.
	 */
	if errDetail != nil && ctx.Err() != nil {
		w.logger.Warn("delivery interrupted by shutdown, re-scheduling",
			"attempt_id", attempt.ID, "webhook_id", attempt.WebhookID)
		w.handBack(ctx, attempt.ID, time.Now())
		return
	}

	now := time.Now()
	attempt.Response = resp
	attempt.ErrorDetail = errDetail

	if errDetail == nil {
		attempt.Status = delivery.Success
		attempt.NextRetryAt = time.Time{}
	} else if try < attempt.MaxAttempts {
		attempt.Status = delivery.Retry
		attempt.NextRetryAt = now.Add(w.retryDelay(sub.RetryPolicy, try, resp))
	} else {
		attempt.Status = delivery.Abandoned
		attempt.NextRetryAt = time.Time{}
	}

	entry := delivery.LogEntry{
		AttemptID:   attempt.ID,
		WebhookID:   attempt.WebhookID,
		EventType:   attempt.EventType,
		EventID:     attempt.EventID,
		Try:         try,
		Status:      attempt.Status,
		Request:     attempt.Request,
		Response:    resp,
		ErrorDetail: errDetail,
		Timestamp:   now,
	}

	// Recording survives shutdown: a completed try must not be re-run
	// just because the context was cancelled while it was in flight
	if err := w.store.RecordResult(context.WithoutCancel(ctx), attempt, entry); err != nil {
		w.logger.Error("recording delivery result", "attempt_id", attempt.ID, "error", err)
		// the claim is already off the schedule; without a hand-back
		// the delivery would be stranded in a non-final status
		w.handBack(ctx, attempt.ID, time.Now().Add(w.cfg.DeferDelay))
		return
	}

	switch attempt.Status {
	case delivery.Success:
		w.logger.Info("delivery succeeded",
			"webhook_id", attempt.WebhookID,
			"delivery_id", attempt.EventID,
			"try", try,
			"status_code", resp.StatusCode)
	case delivery.Retry:
		w.logger.Warn("delivery failed, retry scheduled",
			"webhook_id", attempt.WebhookID,
			"delivery_id", attempt.EventID,
			"try", try,
			"error", errDetail.Error(),
			"next_retry_at", attempt.NextRetryAt)
	case delivery.Abandoned:
		w.logger.Error("delivery abandoned",
			"webhook_id", attempt.WebhookID,
			"delivery_id", attempt.EventID,
			"tries", try,
			"error", errDetail.Error())
	}

	if errDetail != nil {
		w.maybeAutoDisable(ctx, sub)
	}
}

// executeHTTP performs one bounded HTTP call and classifies the outcome
func (w *Worker) executeHTTP(ctx context.Context, sub subscription.Subscription, attempt delivery.Attempt, headers map[string]string) (*delivery.Response, *delivery.ErrorDetail) {
	callCtx, cancel := context.WithTimeout(ctx, sub.RetryPolicy.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, attempt.Request.Method, attempt.Request.URL, bytes.NewReader(attempt.Request.Payload))
	if err != nil {
		return nil, &delivery.ErrorDetail{
			Message: fmt.Sprintf("building request: %v", err),
			Type:    delivery.ErrConnection,
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := w.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	response := &delivery.Response{
		StatusCode:   resp.StatusCode,
		Body:         string(body),
		ResponseTime: elapsed,
		RetryAfter:   RetryAfter(resp.Header, time.Now()),
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return response, nil
	}

	return response, classifyHTTPStatus(resp.StatusCode)
}

// retryDelay computes the wait before the next try. A 429 Retry-After
// overrides the exponential backoff for that one attempt.
func (w *Worker) retryDelay(policy subscription.RetryPolicy, completedTries int, resp *delivery.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests && resp.RetryAfter > 0 {
		return resp.RetryAfter
	}
	return Backoff(policy, completedTries, w.cfg.BackoffCeiling)
}

func (w *Worker) abandonInactive(ctx context.Context, attempt delivery.Attempt) {
	attempt.Attempts++
	attempt.Status = delivery.Abandoned
	attempt.NextRetryAt = time.Time{}
	errDetail := &delivery.ErrorDetail{
		Message: "subscription deactivated",
		Type:    delivery.ErrClient,
	}
	attempt.ErrorDetail = errDetail

	entry := delivery.LogEntry{
		AttemptID:   attempt.ID,
		WebhookID:   attempt.WebhookID,
		EventType:   attempt.EventType,
		EventID:     attempt.EventID,
		Try:         attempt.Attempts,
		Status:      delivery.Abandoned,
		Request:     attempt.Request,
		ErrorDetail: errDetail,
		Timestamp:   time.Now(),
	}
	if err := w.store.RecordResult(context.WithoutCancel(ctx), attempt, entry); err != nil {
		w.logger.Error("recording cancelled delivery", "attempt_id", attempt.ID, "error", err)
		w.handBack(ctx, attempt.ID, time.Now().Add(w.cfg.DeferDelay))
	}
}

// handBack returns a claimed delivery to the schedule. Runs detached
// from the caller's context so a shutdown cannot strand the claim.
func (w *Worker) handBack(ctx context.Context, attemptID string, at time.Time) {
	if err := w.store.Schedule(context.WithoutCancel(ctx), attemptID, at); err != nil {
		w.logger.Error("re-scheduling claimed delivery", "attempt_id", attemptID, "error", err)
	}
}

func (w *Worker) maybeAutoDisable(ctx context.Context, sub subscription.Subscription) {
	health, err := w.store.Health(ctx, sub.ID)
	if err != nil {
		return
	}

	band := w.cfg.HealthBands.Band(health.ConsecutiveFailures)
	if band != "healthy" {
		w.logger.Warn("subscription health degraded",
			"webhook_id", sub.ID,
			"band", band,
			"consecutive_failures", health.ConsecutiveFailures)
	}

	if !w.cfg.AutoDisable || health.ConsecutiveFailures < w.cfg.AutoDisableAfter {
		return
	}
	if err := w.registry.SetActive(ctx, sub.ID, false); err != nil {
		w.logger.Error("auto-disabling subscription", "webhook_id", sub.ID, "error", err)
		return
	}
	w.logger.Error("subscription auto-disabled after sustained failure",
		"webhook_id", sub.ID,
		"consecutive_failures", health.ConsecutiveFailures)
}

func (w *Worker) acquireSubSlot(subID string) (func(), bool) {
	w.perSubMu.Lock()
	slot, ok := w.perSub[subID]
	if !ok {
		slot = make(chan struct{}, w.cfg.MaxInFlightPerSub)
		w.perSub[subID] = slot
	}
	w.perSubMu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, true
	default:
		return nil, false
	}
}

// buildHeaders merges the subscription's custom headers with the
// standard delivery headers; standard headers win on collision
func buildHeaders(sub subscription.Subscription, attempt delivery.Attempt) map[string]string {
	headers := make(map[string]string, len(sub.Headers)+6)
	for k, v := range sub.Headers {
		headers[k] = v
	}
	headers["Content-Type"] = "application/json"
	headers[HeaderEvent] = attempt.EventType.String()
	headers[HeaderDelivery] = attempt.EventID
	headers[HeaderWebhook] = attempt.WebhookID

	// No secret means the subscriber opted out of signing
	if sub.Secret != "" {
		headers[HeaderSignature] = signature.Sign(attempt.Request.Payload, sub.Secret)
		headers[HeaderSignatureAlg] = signature.Algorithm
	}
	return headers
}

func classifyTransportError(err error) *delivery.ErrorDetail {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &delivery.ErrorDetail{Message: err.Error(), Type: delivery.ErrDNS}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &delivery.ErrorDetail{Message: err.Error(), Type: delivery.ErrTimeout}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &delivery.ErrorDetail{Message: err.Error(), Type: delivery.ErrTimeout}
	}

	return &delivery.ErrorDetail{Message: err.Error(), Type: delivery.ErrConnection}
}

func classifyHTTPStatus(code int) *delivery.ErrorDetail {
	detail := &delivery.ErrorDetail{
		Message: fmt.Sprintf("unexpected status code: %d", code),
	}
	switch {
	case code == http.StatusTooManyRequests:
		detail.Type = delivery.ErrRateLimit
	case code >= 500:
		detail.Type = delivery.ErrServer
	case code >= 400:
		detail.Type = delivery.ErrClient
	default:
		detail.Type = delivery.ErrHTTP
	}
	return detail
}
