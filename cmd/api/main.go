package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vasa-trade/webhook-engine/config"
	"github.com/vasa-trade/webhook-engine/delivery"
	deliveryredis "github.com/vasa-trade/webhook-engine/delivery/redis"
	"github.com/vasa-trade/webhook-engine/engine"
	"github.com/vasa-trade/webhook-engine/internal/http/chi"
	"github.com/vasa-trade/webhook-engine/metrics"
	"github.com/vasa-trade/webhook-engine/subscription"
	subscriptionredis "github.com/vasa-trade/webhook-engine/subscription/redis"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	registry, store, err := buildStores(cfg, logger)
	if err != nil {
		return err
	}
	defer registry.Close(ctx)
	defer store.Close(ctx)

	if cfg.SubscriptionsFile != "" {
		if err := subscription.LoadSeedFile(ctx, registry, cfg.SubscriptionsFile); err != nil {
			return err
		}
		logger.Info("seeded subscriptions", "file", cfg.SubscriptionsFile)
	}

	bands := delivery.HealthBands{
		DegradedAt:  cfg.HealthDegradedAt,
		UnhealthyAt: cfg.HealthUnhealthyAt,
	}

	dispatcher := engine.NewDispatcher(registry, store, cfg.Environment, logger)
	worker := engine.NewWorker(registry, store, engine.NewRateLimiter(), nil, engine.Config{
		Workers:           cfg.Workers,
		PollInterval:      cfg.PollInterval(),
		ClaimBatch:        cfg.ClaimBatch,
		MaxInFlightPerSub: cfg.MaxInFlightPerSub,
		BackoffCeiling:    cfg.BackoffCeiling(),
		DeferDelay:        cfg.DeferDelay(),
		HealthBands:       bands,
		AutoDisable:       cfg.AutoDisable,
		AutoDisableAfter:  cfg.AutoDisableAfter,
		Environment:       cfg.Environment,
	}, logger)

	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Run(ctx) }()

	collector := metrics.NewStoreCollector(store, registry, bands)
	exporter, err := metrics.NewOTelExporter(collector)
	if err != nil {
		return err
	}
	defer exporter.Shutdown(context.Background())

	r := chi.Handlers(ctx, chi.Deps{
		Registry:   registry,
		Store:      store,
		Dispatcher: dispatcher,
		Bands:      bands,
		Metrics:    exporter.ServeHTTP(),
	})

	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)

	logger.Info("listening", "port", cfg.Port, "environment", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-errShutdown; err != nil {
		return err
	}
	if err := <-workerDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildStores selects the Redis-backed stores, or the in-memory ones
// when no Redis address is configured
func buildStores(cfg *config.Config, logger *slog.Logger) (subscription.Registry, delivery.Store, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("no REDIS_ADDR configured, using in-memory stores")
		return subscription.NewMemoryRegistry(), delivery.NewMemoryStore(), nil
	}

	registry, err := subscriptionredis.NewRegistry(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	store, err := deliveryredis.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	return registry, store, nil
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch {
	case err == nil:
		slog.Info("shutting down server")
		errShutdown <- nil
	default:
		errShutdown <- errors.New("forcing closing the server")
	}
}
