package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/tiffin/internal"
	"github.com/dukerupert/tiffin/internal/bootstrap"
	"github.com/dukerupert/tiffin/internal/handler"
	"github.com/dukerupert/tiffin/internal/tax"
	"github.com/dukerupert/tiffin/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	if err := tax.SetRate(cfg.Pricing.TaxRate); err != nil {
		return fmt.Errorf("invalid tax rate: %w", err)
	}

	flushSentry, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Env,
		Release:     cfg.Sentry.Release,
		SampleRate:  cfg.Sentry.SampleRate,
	}, logger)
	if err != nil {
		return err
	}
	defer flushSentry()

	// Guest cart storage
	storage, err := bootstrap.OpenCartStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewBusinessMetrics("tiffin", reg)

	e := handler.New(handler.Deps{
		Carts:       storage.Backend,
		Pricer:      bootstrap.NewPricer(cfg),
		LoginPolicy: cfg.Cart.LoginPolicy,
		Checks:      storage.Checks,
		Limits: handler.Limits{
			RequestsPerSecond: cfg.HTTP.RateLimit,
			Burst:             cfg.HTTP.RateBurst,
			MaxBodySize:       cfg.HTTP.MaxBodySize,
			RequestTimeout:    cfg.HTTP.RequestTimeout,
		},
		Production:  cfg.Env == "prod",
		Gatherer:    reg,
		HTTPMetrics: telemetry.NewHTTPMetrics("tiffin", reg),
		Metrics:     metrics,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", "address", srv.Addr, "env", cfg.Env, "cart_backend", cfg.Cart.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	if w := bootstrap.NewCleanupWorker(cfg, storage.Backend, logger, metrics); w != nil {
		g.Go(func() error {
			if err := w.Start(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
