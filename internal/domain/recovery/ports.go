package recovery

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// OrderPlatform is the storefront's order management API
type OrderPlatform interface {
	// ListRecentOrders returns up to limit of the most recent orders in any status
	ListRecentOrders(ctx context.Context, limit int) ([]Order, error)

	// GetOrder returns a single order
	GetOrder(ctx context.Context, orderID int64) (*Order, error)

	// SearchCustomers finds customers by a single field
	SearchCustomers(ctx context.Context, query CustomerQuery) ([]Customer, error)

	// CreateOrder submits a new order and returns it as stored
	CreateOrder(ctx context.Context, req *OrderRequest) (*Order, error)

	// ListLocations returns the inventory locations, primary first
	ListLocations(ctx context.Context) ([]Location, error)

	// GetVariant returns a product variant
	GetVariant(ctx context.Context, variantID int64) (*Variant, error)

	// GetProduct returns a product
	GetProduct(ctx context.Context, productID int64) (*Product, error)

	// ListProductImages returns the images of a product
	ListProductImages(ctx context.Context, productID int64) ([]ProductImage, error)

	// AdjustInventory changes available stock by a relative amount
	AdjustInventory(ctx context.Context, adj InventoryAdjustment) error
}

// PaymentGateway lists payments from the payment provider
type PaymentGateway interface {
	// ListPayments returns up to count payments created between from and to
	ListPayments(ctx context.Context, from, to time.Time, count int) ([]Payment, error)
}

// Media is an attachment on an outbound message
type Media struct {
	URL      string
	Filename string
}

// Message is a templated outbound message
type Message struct {
	Campaign       string
	Destination    string
	UserName       string
	Source         string
	TemplateParams []string
	Media          *Media
	// ButtonURL fills the URL parameter of the template's first button
	ButtonURL string
}

// Notifier delivers templated messages to customers and staff
type Notifier interface {
	Send(ctx context.Context, msg *Message) error
}

// ---------------------------------------------------------------------------
// Ledger
// ---------------------------------------------------------------------------

// PendingCheckout is a debounced checkout waiting to be reconciled
type PendingCheckout struct {
	CartToken string
	Checkout  Checkout
	UpdatedAt time.Time
}

// PendingCheckoutStore debounces checkout events by cart token
type PendingCheckoutStore interface {
	// Upsert stores checkout under its cart token, replacing any earlier
	// snapshot and resetting its timestamp to at.
	Upsert(ctx context.Context, checkout *Checkout, at time.Time) error

	// DrainDue removes and returns every entry whose last update is at least
	// threshold before now. An entry is returned by at most one call.
	DrainDue(ctx context.Context, threshold time.Duration, now time.Time) ([]PendingCheckout, error)

	// Restore puts a drained entry back unless the store already holds a
	// snapshot for the same cart token that is at least as recent.
	Restore(ctx context.Context, entry PendingCheckout) error
}

// ProcessedKind names a processed-ID set
type ProcessedKind string

const (
	ProcessedPayments     ProcessedKind = "payment"
	ProcessedOrders       ProcessedKind = "order"
	ProcessedFulfillments ProcessedKind = "fulfillment"
)

// ProcessedSet records IDs whose side effects have completed. Entries are
// never removed.
type ProcessedSet interface {
	Contains(ctx context.Context, kind ProcessedKind, id string) (bool, error)
	Add(ctx context.Context, kind ProcessedKind, id string) error
}

// LockManager provides exclusive, expiring ownership of a resource ID.
// Every holder identifies itself with an owner token unique to the attempt.
type LockManager interface {
	// TryAcquire returns true when owner now holds resourceID. A lock
	// older than ttl is considered abandoned and may be taken over.
	TryAcquire(ctx context.Context, resourceID, owner string, ttl time.Duration) (bool, error)

	// Release drops the lock on resourceID if owner still holds it. Releasing
	// an unheld lock, or one taken over by another owner, is a no-op.
	Release(ctx context.Context, resourceID, owner string) error
}

// Ledger is the durable store behind reconciliation
type Ledger interface {
	PendingCheckoutStore
	ProcessedSet
	LockManager

	Ping(ctx context.Context) error
	Close() error
}
