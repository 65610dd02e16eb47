// Package handler exposes pricing quotes and guest carts over HTTP.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/tiffin/internal/cart"
	"github.com/dukerupert/tiffin/internal/checkout"
	"github.com/dukerupert/tiffin/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps holds everything the HTTP surface needs.
type Deps struct {
	// Carts stores guest carts keyed by the X-Cart-Session header. Required.
	Carts cart.Backend

	Pricer      checkout.Pricer
	LoginPolicy cart.LoginPolicy
	Checks      map[string]HealthCheck // Optional: probed by /healthz

	// Limits guards the API. The zero value applies no limits.
	Limits     Limits
	Production bool

	Gatherer    prometheus.Gatherer // Optional: serves /metrics when set
	HTTPMetrics *telemetry.HTTPMetrics
	Metrics     *telemetry.BusinessMetrics
	Logger      *slog.Logger
}

// New builds the echo server with all routes registered.
func New(deps Deps) *echo.Echo {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(telemetry.SentryMiddleware())
	e.Use(requestLogger(logger))
	if deps.HTTPMetrics != nil {
		e.Use(deps.HTTPMetrics.Middleware())
	}
	e.Use(securityHeaders(deps.Production))
	if deps.Limits.MaxBodySize != "" {
		e.Use(middleware.BodyLimit(deps.Limits.MaxBodySize))
	}
	if deps.Limits.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeout(deps.Limits.RequestTimeout))
	}
	if deps.Limits.RequestsPerSecond > 0 {
		e.Use(rateLimiter(deps.Limits))
	}

	health := &HealthHandler{checks: deps.Checks}
	e.GET("/healthz", health.Check)

	if deps.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	quotes := &QuoteHandler{
		pricer:  deps.Pricer,
		carts:   deps.Carts,
		metrics: deps.Metrics,
		logger:  logger,
	}
	carts := &CartHandler{
		backend: deps.Carts,
		policy:  deps.LoginPolicy,
		metrics: deps.Metrics,
		logger:  logger,
	}

	api := e.Group("/api")
	api.POST("/quotes/delivery", quotes.Delivery)
	api.POST("/quotes/order", quotes.Order)

	api.GET("/cart", carts.Get)
	api.POST("/cart/items", carts.AddItem)
	api.PUT("/cart/items/:id", carts.UpdateItem)
	api.DELETE("/cart/items/:id", carts.RemoveItem)
	api.POST("/cart/reset", carts.Reset)
	api.POST("/cart/replace", carts.Replace)

	return e
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			)
			return nil
		},
	})
}
