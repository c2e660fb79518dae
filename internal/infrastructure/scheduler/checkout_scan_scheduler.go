package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cartsync/backend/internal/domain/recovery"
	"github.com/cartsync/backend/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// CheckoutScanSchedulerConfig
// ---------------------------------------------------------------------------

// CheckoutScanSchedulerConfig holds configuration for the checkout scan scheduler
type CheckoutScanSchedulerConfig struct {
	// Enabled indicates if the periodic scan runs
	Enabled bool
	// ScanInterval is the time between two scans of the debounce store
	ScanInterval time.Duration
	// DebounceDelay is how long a checkout must stay unchanged before it is reconciled
	DebounceDelay time.Duration
	// MaxConcurrentJobs is the number of reconciliation workers
	MaxConcurrentJobs int
	// JobTimeout bounds a single reconciliation, collaborator calls included
	JobTimeout time.Duration
}

// DefaultCheckoutScanSchedulerConfig returns default configuration
func DefaultCheckoutScanSchedulerConfig() CheckoutScanSchedulerConfig {
	return CheckoutScanSchedulerConfig{
		Enabled:           true,
		ScanInterval:      time.Minute,
		DebounceDelay:     60 * time.Minute,
		MaxConcurrentJobs: 4,
		JobTimeout:        2 * time.Minute,
	}
}

// Validate validates the configuration
func (c *CheckoutScanSchedulerConfig) Validate() error {
	if c.ScanInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.DebounceDelay < 0 {
		return ErrInvalidConfig
	}
	if c.MaxConcurrentJobs <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// Scan statistics
// ---------------------------------------------------------------------------

// ScanStats reports what the scheduler has done so far. The Last* fields
// describe the most recent scan.
type ScanStats struct {
	Running         bool                       `json:"running"`
	LastRun         time.Time                  `json:"last_run"`
	LastDue         int                        `json:"last_due"`
	LastDispatched  int                        `json:"last_dispatched"`
	LastDropped     int                        `json:"last_dropped"`
	TotalRuns       int64                      `json:"total_runs"`
	TotalDispatched int64                      `json:"total_dispatched"`
	TotalDropped    int64                      `json:"total_dropped"`
	Outcomes        map[recovery.Outcome]int64 `json:"outcomes"`
}

// ScanResult is the result of a single scan
type ScanResult struct {
	Due        int
	Dispatched int
	Dropped    int
}

// ---------------------------------------------------------------------------
// CheckoutScanScheduler
// ---------------------------------------------------------------------------

// CheckoutReconciler reconciles a single debounced checkout
type CheckoutReconciler interface {
	Reconcile(ctx context.Context, c *recovery.Checkout) (recovery.Outcome, error)
}

// CheckoutScanScheduler periodically drains due checkouts from the debounce
// store and reconciles them on a fixed pool of workers.
type CheckoutScanScheduler struct {
	config     CheckoutScanSchedulerConfig
	store      recovery.PendingCheckoutStore
	reconciler CheckoutReconciler
	logger     *zap.Logger
	now        func() time.Time

	jobs      chan recovery.PendingCheckout
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	runCtx    context.Context

	// scan serializes scans so an entry is dispatched by one scan only
	scan sync.Mutex

	statsMu sync.RWMutex
	stats   ScanStats
}

// NewCheckoutScanScheduler creates a new checkout scan scheduler
func NewCheckoutScanScheduler(config CheckoutScanSchedulerConfig, store recovery.PendingCheckoutStore, reconciler CheckoutReconciler, logger *zap.Logger) (*CheckoutScanScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CheckoutScanScheduler{
		config:     config,
		store:      store,
		reconciler: reconciler,
		logger:     logger.Named("scheduler"),
		now:        time.Now,
		jobs:       make(chan recovery.PendingCheckout, config.MaxConcurrentJobs),
		stats:      ScanStats{Outcomes: make(map[recovery.Outcome]int64)},
	}, nil
}

// Start starts the worker pool and, when enabled, the periodic scan
func (s *CheckoutScanScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.runCtx = ctx

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	if s.config.Enabled {
		s.wg.Add(1)
		go s.tickLoop(ctx)
	}

	s.setRunning(true)
	s.logger.Info("Checkout scan scheduler started",
		zap.Bool("periodic", s.config.Enabled),
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("scan_interval", s.config.ScanInterval),
		zap.Duration("debounce_delay", s.config.DebounceDelay),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop stops scanning and waits for running reconciliations to finish.
// Checkouts drained but not yet picked up by a worker are put back into the
// debounce store with their original timestamp, unless a newer snapshot for
// the same cart arrived in the meantime.
func (s *CheckoutScanScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Checkout scan scheduler stop timed out")
		return ctx.Err()
	}

	s.requeuePending()
	s.setRunning(false)
	s.logger.Info("Checkout scan scheduler stopped gracefully")
	return nil
}

// RunOnce drains due checkouts and hands every one with contact information
// to the worker pool. It blocks while all workers are busy.
func (s *CheckoutScanScheduler) RunOnce(ctx context.Context) (ScanResult, error) {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ScanResult{}, ErrSchedulerNotRunning
	}
	runCtx := s.runCtx
	s.mu.Unlock()

	s.scan.Lock()
	defer s.scan.Unlock()

	now := s.now()
	due, err := s.store.DrainDue(ctx, s.config.DebounceDelay, now)
	if err != nil {
		s.logger.Error("Failed to drain due checkouts", zap.Error(err))
		return ScanResult{}, err
	}

	result := ScanResult{Due: len(due)}
	for i, entry := range due {
		if !entry.Checkout.HasContactInfo() {
			result.Dropped++
			s.logger.Info("Dropping checkout without contact information",
				zap.String("cart_token", entry.CartToken),
			)
			continue
		}

		select {
		case s.jobs <- entry:
			result.Dispatched++
		case <-ctx.Done():
			s.putBack(due[i:])
			s.recordScan(now, result)
			return result, ctx.Err()
		case <-runCtx.Done():
			s.putBack(due[i:])
			s.recordScan(now, result)
			return result, ErrSchedulerNotRunning
		}
	}

	s.recordScan(now, result)
	if result.Due > 0 {
		s.logger.Info("Checkout scan completed",
			zap.Int("due", result.Due),
			zap.Int("dispatched", result.Dispatched),
			zap.Int("dropped", result.Dropped),
		)
	}
	return result, nil
}

// Stats returns a snapshot of the scan statistics
func (s *CheckoutScanScheduler) Stats() ScanStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()

	stats := s.stats
	stats.Outcomes = make(map[recovery.Outcome]int64, len(s.stats.Outcomes))
	for k, v := range s.stats.Outcomes {
		stats.Outcomes[k] = v
	}
	return stats
}

// tickLoop runs a scan every ScanInterval
func (s *CheckoutScanScheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// errors are logged by RunOnce
			_, _ = s.RunOnce(ctx)
		}
	}
}

// worker reconciles checkouts from the queue
func (s *CheckoutScanScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Reconciliation worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Reconciliation worker stopping", zap.Int("worker_id", workerID))
			return
		case entry := <-s.jobs:
			if ctx.Err() != nil {
				s.putBack([]recovery.PendingCheckout{entry})
				return
			}
			s.processJob(ctx, entry, workerID)
		}
	}
}

// processJob reconciles one checkout. A reconciliation that has started is
// allowed to finish within JobTimeout even when the scheduler is stopping.
func (s *CheckoutScanScheduler) processJob(ctx context.Context, entry recovery.PendingCheckout, workerID int) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.JobTimeout)
	defer cancel()

	checkout := entry.Checkout
	var (
		outcome recovery.Outcome
		err     error
	)
	telemetry.WithProfilingLabels(jobCtx, telemetry.OperationLabels(telemetry.OperationReconcile), func(c context.Context) {
		outcome, err = s.reconciler.Reconcile(c, &checkout)
	})
	s.recordOutcome(outcome)
	if err != nil {
		s.logger.Error("Reconciliation job failed",
			zap.Int("worker_id", workerID),
			zap.String("cart_token", entry.CartToken),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
}

// requeuePending puts checkouts still queued for workers back in the store
func (s *CheckoutScanScheduler) requeuePending() {
	for {
		select {
		case entry := <-s.jobs:
			s.putBack([]recovery.PendingCheckout{entry})
		default:
			return
		}
	}
}

// putBack restores drained entries without overwriting fresher snapshots
func (s *CheckoutScanScheduler) putBack(entries []recovery.PendingCheckout) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, entry := range entries {
		if err := s.store.Restore(ctx, entry); err != nil {
			s.logger.Error("Failed to put checkout back into the debounce store",
				zap.String("cart_token", entry.CartToken),
				zap.Error(err),
			)
		}
	}
}

func (s *CheckoutScanScheduler) recordScan(at time.Time, r ScanResult) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.stats.LastRun = at
	s.stats.LastDue = r.Due
	s.stats.LastDispatched = r.Dispatched
	s.stats.LastDropped = r.Dropped
	s.stats.TotalRuns++
	s.stats.TotalDispatched += int64(r.Dispatched)
	s.stats.TotalDropped += int64(r.Dropped)
}

func (s *CheckoutScanScheduler) recordOutcome(outcome recovery.Outcome) {
	if outcome == "" {
		return
	}
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Outcomes[outcome]++
}

func (s *CheckoutScanScheduler) setRunning(running bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Running = running
}
