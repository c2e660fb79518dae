package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cartsync/backend/internal/domain/recovery"
	"github.com/cartsync/backend/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// NotificationDispatcherConfig
// ---------------------------------------------------------------------------

// NotificationDispatcherConfig holds configuration for the notification dispatcher
type NotificationDispatcherConfig struct {
	// QueueSize is the capacity of the job queue
	QueueSize int
	// SendRate is the maximum number of jobs started per second; 0 means unlimited
	SendRate float64
	// SendBurst is the number of jobs that may start back to back
	SendBurst int
	// JobTimeout bounds a single delivery
	JobTimeout time.Duration
}

// DefaultNotificationDispatcherConfig returns default configuration
func DefaultNotificationDispatcherConfig() NotificationDispatcherConfig {
	return NotificationDispatcherConfig{
		QueueSize:  256,
		SendRate:   1,
		SendBurst:  1,
		JobTimeout: 30 * time.Second,
	}
}

// Validate validates the configuration
func (c *NotificationDispatcherConfig) Validate() error {
	if c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	if c.SendRate < 0 {
		return ErrInvalidConfig
	}
	if c.SendRate > 0 && c.SendBurst <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// NotificationDispatcher
// ---------------------------------------------------------------------------

// NotificationHandler delivers one notification job
type NotificationHandler interface {
	Handle(ctx context.Context, job *recovery.NotificationJob) error
}

// DispatcherStats reports the dispatcher's counters
type DispatcherStats struct {
	Running   bool  `json:"running"`
	Queued    int   `json:"queued"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

// NotificationDispatcher runs notification jobs one at a time, oldest first.
// Every job runs regardless of how the previous one ended.
type NotificationDispatcher struct {
	config  NotificationDispatcherConfig
	handler NotificationHandler
	limiter *rate.Limiter
	logger  *zap.Logger

	jobs      chan *recovery.NotificationJob
	cancel    context.CancelFunc
	done      chan struct{}
	mu        sync.Mutex
	isRunning bool

	delivered atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewNotificationDispatcher creates a new notification dispatcher
func NewNotificationDispatcher(config NotificationDispatcherConfig, handler NotificationHandler, logger *zap.Logger) (*NotificationDispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if config.SendRate > 0 {
		limit = rate.Limit(config.SendRate)
	}

	return &NotificationDispatcher{
		config:  config,
		handler: handler,
		limiter: rate.NewLimiter(limit, config.SendBurst),
		logger:  logger.Named("dispatcher"),
		jobs:    make(chan *recovery.NotificationJob, config.QueueSize),
	}, nil
}

// Start starts the single dispatch worker
func (d *NotificationDispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isRunning {
		return nil
	}
	if d.done != nil {
		// a stopped dispatcher has closed its queue
		return ErrSchedulerNotRunning
	}
	d.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.worker(ctx)

	d.logger.Info("Notification dispatcher started",
		zap.Int("queue_size", d.config.QueueSize),
		zap.Float64("send_rate", d.config.SendRate),
	)
	return nil
}

// Stop closes the queue and waits for the worker to deliver what is left.
// When ctx expires first the remaining jobs are abandoned.
func (d *NotificationDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	close(d.jobs)
	d.mu.Unlock()

	select {
	case <-d.done:
		d.cancel()
		d.logger.Info("Notification dispatcher stopped gracefully")
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		d.logger.Warn("Notification dispatcher stop timed out", zap.Int("abandoned", len(d.jobs)))
		return ctx.Err()
	}
}

// Enqueue appends a job to the queue without blocking
func (d *NotificationDispatcher) Enqueue(job *recovery.NotificationJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case d.jobs <- job:
		d.logger.Debug("Notification job queued",
			zap.String("job_id", job.ID.String()),
			zap.String("kind", string(job.Kind)),
		)
		return nil
	default:
		d.rejected.Add(1)
		d.logger.Warn("Notification queue full, dropping job",
			zap.String("job_id", job.ID.String()),
			zap.String("kind", string(job.Kind)),
		)
		return ErrJobQueueFull
	}
}

// Stats returns the dispatcher's counters
func (d *NotificationDispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	running := d.isRunning
	d.mu.Unlock()

	return DispatcherStats{
		Running:   running,
		Queued:    len(d.jobs),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Rejected:  d.rejected.Load(),
	}
}

// worker drains the queue until it is closed
func (d *NotificationDispatcher) worker(ctx context.Context) {
	defer close(d.done)

	for job := range d.jobs {
		if err := d.limiter.Wait(ctx); err != nil {
			d.logger.Debug("Notification worker stopping", zap.Error(err))
			return
		}
		d.processJob(ctx, job)
	}
}

// processJob delivers a single job
func (d *NotificationDispatcher) processJob(ctx context.Context, job *recovery.NotificationJob) {
	jobCtx, cancel := context.WithTimeout(ctx, d.config.JobTimeout)
	defer cancel()

	start := time.Now()
	var err error
	labels := telemetry.OperationLabels(telemetry.OperationNotify, telemetry.ProfilingLabelKind, string(job.Kind))
	telemetry.WithProfilingLabels(jobCtx, labels, func(c context.Context) {
		err = d.handler.Handle(c, job)
	})
	if err != nil {
		d.failed.Add(1)
		d.logger.Error("Notification job failed",
			zap.String("job_id", job.ID.String()),
			zap.String("kind", string(job.Kind)),
			zap.Duration("queued_for", start.Sub(job.EnqueuedAt)),
			zap.Error(err),
		)
		return
	}

	d.delivered.Add(1)
	d.logger.Debug("Notification job done",
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.Duration("elapsed", time.Since(start)),
	)
}
