// Package jobs holds the background jobs run by the worker.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/tiffin/internal/cart"
	"github.com/dukerupert/tiffin/internal/telemetry"
)

// JobNameGuestCartCleanup names the idle guest cart sweep.
const JobNameGuestCartCleanup = "guest_cart_cleanup"

// GuestCartCleanup deletes guest carts that have not been saved for MaxIdle.
type GuestCartCleanup struct {
	carts   cart.Sweeper
	maxIdle time.Duration
	logger  *slog.Logger
	metrics *telemetry.BusinessMetrics
	now     func() time.Time
}

// NewGuestCartCleanup creates the cleanup job.
func NewGuestCartCleanup(carts cart.Sweeper, maxIdle time.Duration, logger *slog.Logger, metrics *telemetry.BusinessMetrics) *GuestCartCleanup {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuestCartCleanup{
		carts:   carts,
		maxIdle: maxIdle,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Name implements worker.Job.
func (j *GuestCartCleanup) Name() string { return JobNameGuestCartCleanup }

// Run implements worker.Job.
func (j *GuestCartCleanup) Run(ctx context.Context) error {
	if j.maxIdle <= 0 {
		return fmt.Errorf("guest cart cleanup: max idle must be positive, got %s", j.maxIdle)
	}

	cutoff := j.now().Add(-j.maxIdle)
	n, err := j.carts.DeleteIdle(ctx, cutoff)
	j.metrics.GuestCartsDeleted(n)
	if err != nil {
		return fmt.Errorf("guest cart cleanup: %w", err)
	}

	if n > 0 {
		j.logger.Info("deleted idle guest carts", "count", n, "cutoff", cutoff)
	}
	return nil
}
