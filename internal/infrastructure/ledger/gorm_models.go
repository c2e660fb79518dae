package ledger

import "time"

// PendingCheckoutModel is the persistence model for a debounced checkout.
// Timestamps are stored as unix milliseconds so that equality checks are exact
// across drivers.
type PendingCheckoutModel struct {
	CartToken   string `gorm:"column:cart_token;primaryKey;size:255"`
	Payload     string `gorm:"column:payload;type:text;not null"`
	UpdatedAtMs int64  `gorm:"column:updated_at_ms;not null;index:idx_pending_checkouts_updated_at_ms"`
}

// TableName returns the table name for GORM
func (PendingCheckoutModel) TableName() string {
	return "pending_checkouts"
}

// ProcessedIDModel is the persistence model for a processed payment, order or
// fulfillment ID
type ProcessedIDModel struct {
	Kind        string    `gorm:"column:kind;primaryKey;size:32"`
	ExternalID  string    `gorm:"column:external_id;primaryKey;size:255"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null"`
}

// TableName returns the table name for GORM
func (ProcessedIDModel) TableName() string {
	return "processed_ids"
}

// LockModel is the persistence model for a reconciliation lock
type LockModel struct {
	ResourceID   string `gorm:"column:resource_id;primaryKey;size:255"`
	Owner        string `gorm:"column:owner;size:64;not null;default:''"`
	AcquiredAtMs int64  `gorm:"column:acquired_at_ms;not null"`
	ExpiresAtMs  int64  `gorm:"column:expires_at_ms;not null;index:idx_reconciliation_locks_expires_at_ms"`
}

// TableName returns the table name for GORM
func (LockModel) TableName() string {
	return "reconciliation_locks"
}

// AllModels returns every model managed by the SQL ledger, for AutoMigrate
func AllModels() []any {
	return []any{
		&PendingCheckoutModel{},
		&ProcessedIDModel{},
		&LockModel{},
	}
}
