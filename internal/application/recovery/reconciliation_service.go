package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cartsync/backend/internal/domain/recovery"
	"github.com/cartsync/backend/internal/infrastructure/logger"
	"github.com/cartsync/backend/internal/infrastructure/telemetry"
)

// Reconciliation defaults
const (
	DefaultPaymentWindow    = 120 * time.Minute
	DefaultRecentOrderLimit = 50
	DefaultPaymentPageSize  = 100
	DefaultLockTTL          = 30 * time.Minute

	// detachedTimeout bounds ledger writes that must outlive the job context
	detachedTimeout = 10 * time.Second
)

// ReconciliationServiceConfig holds the dependencies and tuning of a
// ReconciliationService
type ReconciliationServiceConfig struct {
	Platform      recovery.OrderPlatform
	Payments      recovery.PaymentGateway
	Processed     recovery.ProcessedSet
	Locks         recovery.LockManager
	Materializer  *OrderMaterializer
	Notifications NotificationQueue
	Metrics       Metrics
	Logger        *zap.Logger

	PaymentWindow    time.Duration
	RecentOrderLimit int
	PaymentPageSize  int
	LockTTL          time.Duration

	// Now returns the current time; time.Now when nil
	Now func() time.Time
}

// ReconciliationService decides, once per debounced checkout, whether the
// checkout was paid. A paid checkout is materialized into an order exactly
// once per payment; an unpaid one gets a single reminder.
type ReconciliationService struct {
	platform      recovery.OrderPlatform
	payments      recovery.PaymentGateway
	processed     recovery.ProcessedSet
	locks         recovery.LockManager
	materializer  *OrderMaterializer
	notifications NotificationQueue
	metrics       Metrics
	logger        *zap.Logger

	window      time.Duration
	orderLimit  int
	paymentPage int
	lockTTL     time.Duration
	now         func() time.Time

	// inFlight holds payment IDs being materialized by this process
	inFlight sync.Map
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(cfg ReconciliationServiceConfig) *ReconciliationService {
	s := &ReconciliationService{
		platform:      cfg.Platform,
		payments:      cfg.Payments,
		processed:     cfg.Processed,
		locks:         cfg.Locks,
		materializer:  cfg.Materializer,
		notifications: cfg.Notifications,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		window:        cfg.PaymentWindow,
		orderLimit:    cfg.RecentOrderLimit,
		paymentPage:   cfg.PaymentPageSize,
		lockTTL:       cfg.LockTTL,
		now:           cfg.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("reconciliation")
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.window <= 0 {
		s.window = DefaultPaymentWindow
	}
	if s.orderLimit <= 0 {
		s.orderLimit = DefaultRecentOrderLimit
	}
	if s.paymentPage <= 0 {
		s.paymentPage = DefaultPaymentPageSize
	}
	if s.lockTTL <= 0 {
		s.lockTTL = DefaultLockTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Reconcile runs the reconciliation policy for one checkout and reports what
// it decided. A non-nil error accompanies OutcomeFailed, or
// OutcomeOrderMaterialized when the payment could not be recorded as
// processed.
func (s *ReconciliationService) Reconcile(ctx context.Context, c *recovery.Checkout) (outcome recovery.Outcome, err error) {
	if c == nil {
		return recovery.OutcomeFailed, recovery.ErrCheckoutIncomplete
	}
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "reconcile",
		telemetry.WithAttribute(telemetry.SpanAttrCartToken, c.CartToken),
		telemetry.WithAttribute(telemetry.SpanAttrCheckoutToken, c.Token),
	)
	defer span.End()
	ctx, log := logger.WithCartToken(ctx, s.logger, c.CartToken)
	defer func() {
		telemetry.SetAttributes(span, telemetry.SpanAttrOutcome, string(outcome))
		telemetry.RecordError(span, err)
		s.metrics.RecordReconciliation(ctx, outcome, time.Since(start))
		fields := []zap.Field{zap.String("outcome", string(outcome)), zap.Duration("elapsed", time.Since(start))}
		if err != nil {
			logger.L(ctx).Error("Reconciliation failed", append(fields, zap.Error(err))...)
			return
		}
		logger.L(ctx).Info("Checkout reconciled", fields...)
	}()

	orders, err := s.platform.ListRecentOrders(ctx, s.orderLimit)
	if err != nil {
		return recovery.OutcomeFailed, fmt.Errorf("list recent orders: %w", err)
	}
	if o := recovery.FindConvertedOrder(c, orders); o != nil {
		log.Debug("Checkout already converted", zap.Int64("order_id", o.ID))
		return recovery.OutcomeAlreadyConverted, nil
	}
	if o := recovery.FindDuplicateByPhone(c, orders); o != nil {
		log.Debug("Duplicate order by phone and amount", zap.Int64("order_id", o.ID))
		return recovery.OutcomeDuplicateByPhone, nil
	}
	if o := recovery.FindDuplicateByEmail(c, orders); o != nil {
		log.Debug("Duplicate order by email and amount", zap.Int64("order_id", o.ID))
		return recovery.OutcomeDuplicateByEmail, nil
	}

	now := s.now()
	payments, err := s.payments.ListPayments(ctx, startOfDay(now), now, s.paymentPage)
	if err != nil {
		return recovery.OutcomeFailed, fmt.Errorf("list payments: %w", err)
	}

	payment := recovery.SelectPayment(c, payments, now, s.window)
	if payment == nil {
		if err := s.notifications.Enqueue(recovery.NewReminderJob(c)); err != nil {
			return recovery.OutcomeFailed, fmt.Errorf("enqueue reminder: %w", err)
		}
		return recovery.OutcomeReminderQueued, nil
	}

	return s.settle(ctx, c, payment)
}

// settle materializes the order for a matched payment under the in-process
// guard and the durable lock.
func (s *ReconciliationService) settle(ctx context.Context, c *recovery.Checkout, p *recovery.Payment) (recovery.Outcome, error) {
	ctx, log := logger.WithPaymentID(ctx, logger.FromContext(ctx), p.ID)
	telemetry.SetAttributes(trace.SpanFromContext(ctx), telemetry.SpanAttrPaymentID, p.ID)

	if _, busy := s.inFlight.LoadOrStore(p.ID, struct{}{}); busy {
		log.Info("Payment is being processed, skipping")
		return recovery.OutcomePaymentInFlight, nil
	}
	defer s.inFlight.Delete(p.ID)

	owner := uuid.NewString()
	acquired, err := s.locks.TryAcquire(ctx, p.ID, owner, s.lockTTL)
	if err != nil {
		return recovery.OutcomeFailed, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		log.Info("Payment is locked elsewhere, skipping")
		return recovery.OutcomePaymentLocked, nil
	}
	defer s.release(ctx, p.ID, owner)

	done, err := s.processed.Contains(ctx, recovery.ProcessedPayments, p.ID)
	if err != nil {
		return recovery.OutcomeFailed, fmt.Errorf("check processed payment: %w", err)
	}
	if done {
		log.Info("Payment already processed, skipping")
		return recovery.OutcomePaymentProcessed, nil
	}

	log.Info("Captured payment matched checkout",
		zap.String("contact", p.Contact),
		zap.Time("paid_at", p.CreatedTime()),
	)
	order, err := s.materializer.Materialize(ctx, c, p)
	if err != nil {
		return recovery.OutcomeFailed, fmt.Errorf("materialize order: %w", err)
	}

	if err := s.markProcessed(ctx, p.ID); err != nil {
		log.Error("Order created but payment not recorded as processed; the payment may be settled again",
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)
		return recovery.OutcomeOrderMaterialized, fmt.Errorf("record processed payment: %w", err)
	}
	return recovery.OutcomeOrderMaterialized, nil
}

// markProcessed records paymentID, retrying once on a context detached from
// the job's cancellation
func (s *ReconciliationService) markProcessed(ctx context.Context, paymentID string) error {
	err := s.processed.Add(ctx, recovery.ProcessedPayments, paymentID)
	if err == nil {
		return nil
	}
	logger.L(ctx).Warn("Failed to record processed payment, retrying", zap.Error(err))

	retryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedTimeout)
	defer cancel()
	return s.processed.Add(retryCtx, recovery.ProcessedPayments, paymentID)
}

// release drops the lock even when the job context has already expired
func (s *ReconciliationService) release(ctx context.Context, paymentID, owner string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedTimeout)
	defer cancel()
	if err := s.locks.Release(ctx, paymentID, owner); err != nil {
		logger.L(ctx).Warn("Failed to release payment lock", zap.Error(err))
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
