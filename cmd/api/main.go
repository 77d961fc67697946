package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/yuskondo/docquiz/internal/adapters/http"
	"github.com/yuskondo/docquiz/internal/bootstrap"
	"github.com/yuskondo/docquiz/internal/config"
	"github.com/yuskondo/docquiz/internal/observability/logging"
	"github.com/yuskondo/docquiz/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger("docquiz-api", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	// Reindex notifications from the ingestion pipeline drop the cached
	// chunk pool and keyword index.
	go func() {
		err := app.Queue.SubscribeIndexChanged(ctx, func(_ context.Context, reason string) error {
			logger.Info("index changed, invalidating caches", "reason", reason)
			app.InvalidateCaches()
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("index event subscription ended", "error", err)
		}
	}()

	// The manual rebuild endpoint drops local caches and publishes the
	// same index-change event other instances listen for.
	rebuild := func() {
		app.InvalidateCaches()
		if err := app.Queue.PublishIndexChanged(context.Background(), "manual_rebuild"); err != nil {
			logger.Warn("publish index change event", "error", err)
		}
	}

	serverMetrics := metrics.NewHTTPServerMetrics("docquiz-api")
	router := httpadapter.NewRouter(
		app.Ask,
		app.Quiz,
		app.Sources,
		rebuild,
		serverMetrics,
		logger,
		cfg.RateLimitRPS,
		cfg.RateLimitBurst,
		cfg.MaxInFlight,
	).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
}
