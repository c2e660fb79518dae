package recovery

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind identifies what a notification job sends
type NotificationKind string

const (
	NotificationCheckoutReminder  NotificationKind = "CHECKOUT_REMINDER"
	NotificationOrderConfirmation NotificationKind = "ORDER_CONFIRMATION"
	NotificationLowStockAlert     NotificationKind = "LOW_STOCK_ALERT"
	NotificationFulfillment       NotificationKind = "FULFILLMENT"
)

// NotificationJob is a unit of work for the notification queue. Exactly one
// of Checkout, Order or Fulfillment is set, according to Kind.
type NotificationJob struct {
	ID          uuid.UUID
	Kind        NotificationKind
	Checkout    *Checkout
	Order       *Order
	Fulfillment *Fulfillment
	EnqueuedAt  time.Time
}

// NewReminderJob creates a reminder job for an unpaid checkout
func NewReminderJob(c *Checkout) *NotificationJob {
	return &NotificationJob{ID: uuid.New(), Kind: NotificationCheckoutReminder, Checkout: c, EnqueuedAt: time.Now()}
}

// NewOrderConfirmationJob creates an order confirmation job
func NewOrderConfirmationJob(o *Order) *NotificationJob {
	return &NotificationJob{ID: uuid.New(), Kind: NotificationOrderConfirmation, Order: o, EnqueuedAt: time.Now()}
}

// NewLowStockJob creates a low stock check for the items of an order
func NewLowStockJob(o *Order) *NotificationJob {
	return &NotificationJob{ID: uuid.New(), Kind: NotificationLowStockAlert, Order: o, EnqueuedAt: time.Now()}
}

// NewFulfillmentJob creates a shipment notification job
func NewFulfillmentJob(f *Fulfillment) *NotificationJob {
	return &NotificationJob{ID: uuid.New(), Kind: NotificationFulfillment, Fulfillment: f, EnqueuedAt: time.Now()}
}

// Outcome is the result of reconciling one checkout
type Outcome string

const (
	OutcomeAlreadyConverted  Outcome = "already_converted"
	OutcomeDuplicateByPhone  Outcome = "duplicate_phone"
	OutcomeDuplicateByEmail  Outcome = "duplicate_email"
	OutcomeReminderQueued    Outcome = "reminder_queued"
	OutcomePaymentInFlight   Outcome = "payment_in_flight"
	OutcomePaymentLocked     Outcome = "payment_locked"
	OutcomePaymentProcessed  Outcome = "payment_already_processed"
	OutcomeOrderMaterialized Outcome = "order_materialized"
	OutcomeFailed            Outcome = "failed"
)
