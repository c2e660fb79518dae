package recovery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cartsync/backend/internal/domain/recovery"
)

// WebhookServiceConfig holds the dependencies of a WebhookService
type WebhookServiceConfig struct {
	Pending       recovery.PendingCheckoutStore
	Processed     recovery.ProcessedSet
	Notifications NotificationQueue
	Logger        *zap.Logger
	Now           func() time.Time
}

// WebhookService accepts storefront events. Checkout events are only
// debounced here; order and fulfillment events are queued for notification.
type WebhookService struct {
	pending       recovery.PendingCheckoutStore
	processed     recovery.ProcessedSet
	notifications NotificationQueue
	logger        *zap.Logger
	now           func() time.Time
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(cfg WebhookServiceConfig) *WebhookService {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &WebhookService{
		pending:       cfg.Pending,
		processed:     cfg.Processed,
		notifications: cfg.Notifications,
		logger:        log.Named("webhook"),
		now:           now,
	}
}

// RecordCheckout debounces a checkout event under its cart token. Events
// without a cart token are dropped and reported as not recorded.
func (s *WebhookService) RecordCheckout(ctx context.Context, c *recovery.Checkout) (bool, error) {
	if c == nil || c.CartToken == "" {
		s.logger.Debug("Dropping checkout event without cart token")
		return false, nil
	}
	if err := s.pending.Upsert(ctx, c, s.now()); err != nil {
		return false, fmt.Errorf("debounce checkout %s: %w", c.CartToken, err)
	}
	s.logger.Debug("Checkout debounced", zap.String("cart_token", c.CartToken))
	return true, nil
}

// AcceptOrder queues the confirmation and low stock check of a new order
// unless its confirmation was already delivered
func (s *WebhookService) AcceptOrder(ctx context.Context, o *recovery.Order) (bool, error) {
	if o == nil || o.ID == 0 {
		return false, recovery.ErrIncompleteEvent
	}
	id := strconv.FormatInt(o.ID, 10)
	done, err := s.processed.Contains(ctx, recovery.ProcessedOrders, id)
	if err != nil {
		return false, fmt.Errorf("check processed order %s: %w", id, err)
	}
	if done {
		s.logger.Info("Order already processed", zap.Int64("order_id", o.ID))
		return false, nil
	}

	if err := s.notifications.Enqueue(recovery.NewLowStockJob(o)); err != nil {
		return false, fmt.Errorf("enqueue low stock check: %w", err)
	}
	if err := s.notifications.Enqueue(recovery.NewOrderConfirmationJob(o)); err != nil {
		return false, fmt.Errorf("enqueue order confirmation: %w", err)
	}
	return true, nil
}

// AcceptFulfillment queues the shipment message of a fulfillment unless it
// was already delivered
func (s *WebhookService) AcceptFulfillment(ctx context.Context, f *recovery.Fulfillment) (bool, error) {
	if f == nil || f.ID == 0 {
		return false, recovery.ErrIncompleteEvent
	}
	id := strconv.FormatInt(f.ID, 10)
	done, err := s.processed.Contains(ctx, recovery.ProcessedFulfillments, id)
	if err != nil {
		return false, fmt.Errorf("check processed fulfillment %s: %w", id, err)
	}
	if done {
		s.logger.Info("Fulfillment already processed", zap.Int64("fulfillment_id", f.ID))
		return false, nil
	}

	if err := s.notifications.Enqueue(recovery.NewFulfillmentJob(f)); err != nil {
		return false, fmt.Errorf("enqueue fulfillment message: %w", err)
	}
	return true, nil
}
