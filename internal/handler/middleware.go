package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// Limits bounds what a single client can ask of the server.
type Limits struct {
	// RequestsPerSecond is the sustained rate per client. Zero disables
	// rate limiting.
	RequestsPerSecond float64

	// Burst is the maximum number of requests allowed at once.
	Burst int

	// MaxBodySize is an echo size string such as "1M". Empty disables the
	// limit.
	MaxBodySize string

	// RequestTimeout cancels the request context. Zero disables it.
	RequestTimeout time.Duration
}

// DefaultLimits returns limits suited to the public cart API.
func DefaultLimits() Limits {
	return Limits{
		RequestsPerSecond: 10,
		Burst:             20,
		MaxBodySize:       "1M",
		RequestTimeout:    30 * time.Second,
	}
}

// rateLimiter limits each client by cart session, falling back to the
// client IP for requests without one.
func rateLimiter(l Limits) echo.MiddlewareFunc {
	burst := l.Burst
	if burst <= 0 {
		burst = int(l.RequestsPerSecond) + 1
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz" || c.Path() == "/metrics"
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(l.RequestsPerSecond),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if session := c.Request().Header.Get(SessionHeader); session != "" {
				return "session:" + session, nil
			}
			return "ip:" + c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			c.Response().Header().Set("Retry-After", "1")
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests, please slow down")
		},
	})
}

// securityHeaders sets response hardening headers. HSTS is only sent in
// production, where the server sits behind TLS.
func securityHeaders(production bool) echo.MiddlewareFunc {
	cfg := middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}
	if production {
		cfg.HSTSMaxAge = 31536000
	}
	return middleware.SecureWithConfig(cfg)
}
