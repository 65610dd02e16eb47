// Package worker runs periodic background jobs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/tiffin/internal/telemetry"
	"github.com/google/uuid"
)

// Job is a unit of periodic maintenance work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Config holds worker configuration
type Config struct {
	// WorkerID uniquely identifies this worker instance
	WorkerID string

	// PollInterval is how often every job runs
	PollInterval time.Duration

	// Timeout bounds a single job run
	Timeout time.Duration

	// RunOnStart runs every job once before the first tick
	RunOnStart bool
}

// Worker runs its jobs on a fixed interval until the context is cancelled.
// A job never overlaps with itself; a tick that finds it still running is
// skipped.
type Worker struct {
	config  Config
	jobs    []Job
	logger  *slog.Logger
	metrics *telemetry.BusinessMetrics

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

// NewWorker creates a new background job worker
func NewWorker(config Config, logger *slog.Logger, metrics *telemetry.BusinessMetrics, jobs ...Job) *Worker {
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if config.PollInterval == 0 {
		config.PollInterval = 10 * time.Minute
	}
	if config.Timeout == 0 {
		config.Timeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		config:  config,
		jobs:    jobs,
		logger:  logger,
		metrics: metrics,
		running: make(map[string]bool),
	}
}

// Start runs jobs until ctx is cancelled, then waits for in-flight runs.
// It always returns ctx.Err().
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker starting",
		"worker_id", w.config.WorkerID,
		"poll_interval", w.config.PollInterval,
		"jobs", len(w.jobs),
	)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	if w.config.RunOnStart {
		w.dispatch(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shutting down", "worker_id", w.config.WorkerID)
			w.wg.Wait()
			return ctx.Err()

		case <-ticker.C:
			w.dispatch(ctx)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context) {
	for _, job := range w.jobs {
		if !w.claim(job.Name()) {
			w.logger.Debug("job still running, skipping tick", "job", job.Name())
			continue
		}

		w.wg.Add(1)
		go func(job Job) {
			defer w.wg.Done()
			defer w.release(job.Name())
			w.runJob(ctx, job)
		}(job)
	}
}

func (w *Worker) claim(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running[name] {
		return false
	}
	w.running[name] = true
	return true
}

func (w *Worker) release(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.running, name)
}

// runJob runs a single job under the configured timeout
func (w *Worker) runJob(ctx context.Context, job Job) {
	jobCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(jobCtx); err != nil {
		w.logger.Error("job failed",
			"worker_id", w.config.WorkerID,
			"job", job.Name(),
			"duration", time.Since(start),
			"error", err,
		)
		w.metrics.JobRun(job.Name(), "error")
		return
	}

	w.logger.Debug("job completed",
		"job", job.Name(),
		"duration", time.Since(start),
	)
	w.metrics.JobRun(job.Name(), "success")
}
