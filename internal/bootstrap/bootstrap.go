// Package bootstrap builds the infrastructure named by the configuration:
// guest cart storage, backend clients, the payment provider, the geocoder
// and the event publisher.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/tiffin/internal"
	"github.com/dukerupert/tiffin/internal/address"
	"github.com/dukerupert/tiffin/internal/api"
	"github.com/dukerupert/tiffin/internal/billing"
	"github.com/dukerupert/tiffin/internal/cart"
	"github.com/dukerupert/tiffin/internal/checkout"
	"github.com/dukerupert/tiffin/internal/events"
	"github.com/dukerupert/tiffin/internal/handler"
	"github.com/dukerupert/tiffin/internal/jobs"
	"github.com/dukerupert/tiffin/internal/telemetry"
	"github.com/dukerupert/tiffin/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// CartStorage is an open guest cart backend and the health checks of the
// connections behind it.
type CartStorage struct {
	Backend cart.Backend
	Checks  map[string]handler.HealthCheck

	closers []func()
}

// Close releases the underlying connections.
func (s *CartStorage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// OpenCartStorage connects the configured guest cart backend. Postgres
// storage runs pending migrations first.
func OpenCartStorage(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (*CartStorage, error) {
	s := &CartStorage{Checks: map[string]handler.HealthCheck{}}

	switch cfg.Cart.Backend {
	case "memory":
		s.Backend = cart.NewMemoryBackend()

	case "file":
		b, err := cart.NewFileBackend(cfg.Cart.FileDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open cart directory: %w", err)
		}
		s.Backend = b

	case "redis":
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		s.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		s.Backend = cart.NewRedisBackend(client, cfg.Cart.TTL)

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
		logger.Info("Running database migrations...")
		if err := internal.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("Database migrations completed successfully")
		s.closers = append(s.closers, pool.Close)
		s.Checks["postgres"] = pool.Ping
		s.Backend = cart.NewPostgresBackend(pool)

	default:
		return nil, fmt.Errorf("unknown cart backend %q", cfg.Cart.Backend)
	}

	logger.Info("Guest cart storage ready", "backend", cfg.Cart.Backend)
	return s, nil
}

// NewAPIClient returns a client for the backend services. token overrides
// the configured API token when non-empty.
func NewAPIClient(cfg *internal.Config, token string, logger *slog.Logger) *api.Client {
	if token == "" {
		token = cfg.API.Token
	}
	return api.New(api.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Tokens:  api.StaticToken(token),
		Logger:  logger,
	})
}

// NewPaymentProvider returns the Stripe provider when enabled, else the
// backend Payment service.
func NewPaymentProvider(cfg *internal.Config, client *api.Client, logger *slog.Logger) (billing.Provider, error) {
	if !cfg.Stripe.Enabled {
		return billing.NewHTTPProvider(client), nil
	}

	stripeConfig := billing.StripeConfig{
		APIKey:         cfg.Stripe.SecretKey,
		BackendURL:     cfg.Stripe.BackendURL,
		MaxRetries:     cfg.Stripe.MaxRetries,
		TimeoutSeconds: int(cfg.API.Timeout.Seconds()),
	}
	provider, err := billing.NewStripeProvider(stripeConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Stripe provider: %w", err)
	}
	logger.Info("Stripe billing provider initialized", "test_mode", stripeConfig.IsTestMode())
	return provider, nil
}

// NewGeocoder returns a Nominatim geocoder, or nil when none is configured.
func NewGeocoder(cfg *internal.Config, logger *slog.Logger) address.Geocoder {
	if cfg.Geocoder.BaseURL == "" {
		return nil
	}
	return address.NewNominatimGeocoder(api.New(api.Config{
		BaseURL:   cfg.Geocoder.BaseURL,
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.Geocoder.UserAgent,
		Logger:    logger,
	}))
}

// NewPublisher connects to NATS when configured. The returned close func
// drains the connection.
func NewPublisher(cfg *internal.Config, logger *slog.Logger) (events.Publisher, func(), error) {
	if cfg.NATS.URL == "" {
		return events.NopPublisher{}, func() {}, nil
	}

	nc, err := events.Connect(cfg.NATS.URL, "tiffin", logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("NATS connected", "url", nc.ConnectedUrl())

	closeFn := func() {
		if err := nc.Drain(); err != nil {
			logger.Warn("nats drain failed", "error", err)
		}
	}
	return events.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix, logger), closeFn, nil
}

// NewPricer applies the configured rate and tiers.
func NewPricer(cfg *internal.Config) checkout.Pricer {
	return checkout.Pricer{
		Policy:   cfg.DeliveryPolicy(),
		Tax:      cfg.TaxCalculator(),
		Currency: cfg.Pricing.Currency,
	}
}

// NewCleanupWorker returns a worker that deletes idle guest carts, or nil
// when the backend expires carts itself or the sweep is disabled.
func NewCleanupWorker(cfg *internal.Config, backend cart.Backend, logger *slog.Logger, metrics *telemetry.BusinessMetrics) *worker.Worker {
	sweeper, ok := backend.(cart.Sweeper)
	if !ok || cfg.Cart.SweepInterval <= 0 {
		return nil
	}

	job := jobs.NewGuestCartCleanup(sweeper, cfg.Cart.TTL, logger, metrics)
	return worker.NewWorker(worker.Config{
		WorkerID:     "cart-cleanup",
		PollInterval: cfg.Cart.SweepInterval,
		RunOnStart:   true,
	}, logger, metrics, job)
}
