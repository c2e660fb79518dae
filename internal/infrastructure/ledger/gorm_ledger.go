package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cartsync/backend/internal/domain/recovery"
)

// GormLedger implements recovery.Ledger on a SQL database through GORM.
// PostgreSQL is the production target; SQLite is supported for single-node
// deployments and tests.
type GormLedger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormLedger creates a new SQL-backed ledger
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db, now: time.Now}
}

// AutoMigrate creates or updates the ledger tables.
// Production PostgreSQL schemas are managed by the migrate command instead.
func (l *GormLedger) AutoMigrate() error {
	return l.db.AutoMigrate(AllModels()...)
}

// Upsert implements recovery.PendingCheckoutStore
func (l *GormLedger) Upsert(ctx context.Context, checkout *recovery.Checkout, at time.Time) error {
	if checkout.CartToken == "" {
		return ErrEmptyCartToken
	}

	payload, err := json.Marshal(checkout)
	if err != nil {
		return fmt.Errorf("failed to encode checkout: %w", err)
	}

	model := PendingCheckoutModel{
		CartToken:   checkout.CartToken,
		Payload:     string(payload),
		UpdatedAtMs: at.UnixMilli(),
	}

	err = l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cart_token"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at_ms"}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to upsert pending checkout: %w", err)
	}
	return nil
}

// DrainDue implements recovery.PendingCheckoutStore.
// Each candidate row is deleted conditionally on its timestamp; a row that was
// updated or claimed concurrently is left alone and not returned.
func (l *GormLedger) DrainDue(ctx context.Context, threshold time.Duration, now time.Time) ([]recovery.PendingCheckout, error) {
	cutoff := now.Add(-threshold).UnixMilli()
	var due []recovery.PendingCheckout

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []PendingCheckoutModel
		if err := tx.Where("updated_at_ms <= ?", cutoff).Order("updated_at_ms").Find(&rows).Error; err != nil {
			return err
		}

		for _, row := range rows {
			res := tx.Where("cart_token = ? AND updated_at_ms = ?", row.CartToken, row.UpdatedAtMs).
				Delete(&PendingCheckoutModel{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				continue
			}

			var checkout recovery.Checkout
			if err := json.Unmarshal([]byte(row.Payload), &checkout); err != nil {
				continue // corrupt snapshot, already removed
			}
			due = append(due, recovery.PendingCheckout{
				CartToken: row.CartToken,
				Checkout:  checkout,
				UpdatedAt: time.UnixMilli(row.UpdatedAtMs),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain pending checkouts: %w", err)
	}
	return due, nil
}

// Restore implements recovery.PendingCheckoutStore.
// The conflict update only fires when the stored row is older than entry.
func (l *GormLedger) Restore(ctx context.Context, entry recovery.PendingCheckout) error {
	if entry.CartToken == "" {
		return ErrEmptyCartToken
	}

	checkout := entry.Checkout
	checkout.CartToken = entry.CartToken
	payload, err := json.Marshal(checkout)
	if err != nil {
		return fmt.Errorf("failed to encode checkout: %w", err)
	}

	model := PendingCheckoutModel{
		CartToken:   entry.CartToken,
		Payload:     string(payload),
		UpdatedAtMs: entry.UpdatedAt.UnixMilli(),
	}

	err = l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cart_token"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at_ms"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "pending_checkouts.updated_at_ms < excluded.updated_at_ms"},
			}},
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to restore pending checkout: %w", err)
	}
	return nil
}

// Contains implements recovery.ProcessedSet
func (l *GormLedger) Contains(ctx context.Context, kind recovery.ProcessedKind, id string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&ProcessedIDModel{}).
		Where("kind = ? AND external_id = ?", string(kind), id).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check processed %s: %w", kind, err)
	}
	return count > 0, nil
}

// Add implements recovery.ProcessedSet
func (l *GormLedger) Add(ctx context.Context, kind recovery.ProcessedKind, id string) error {
	if id == "" {
		return ErrEmptyID
	}

	model := ProcessedIDModel{
		Kind:        string(kind),
		ExternalID:  id,
		ProcessedAt: l.now().UTC(),
	}
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to record processed %s: %w", kind, err)
	}
	return nil
}

// TryAcquire implements recovery.LockManager.
// An expired row is purged first, then the insert either wins the primary key
// or conflicts with a live holder.
func (l *GormLedger) TryAcquire(ctx context.Context, resourceID, owner string, ttl time.Duration) (bool, error) {
	if resourceID == "" {
		return false, ErrEmptyID
	}
	if owner == "" {
		return false, ErrEmptyOwner
	}

	now := l.now()
	acquired := false

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("resource_id = ? AND expires_at_ms <= ?", resourceID, now.UnixMilli()).
			Delete(&LockModel{}).Error; err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&LockModel{
			ResourceID:   resourceID,
			Owner:        owner,
			AcquiredAtMs: now.UnixMilli(),
			ExpiresAtMs:  now.Add(ttl).UnixMilli(),
		})
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return acquired, nil
}

// Release implements recovery.LockManager
func (l *GormLedger) Release(ctx context.Context, resourceID, owner string) error {
	err := l.db.WithContext(ctx).
		Where("resource_id = ? AND owner = ?", resourceID, owner).
		Delete(&LockModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Ping implements recovery.Ledger
func (l *GormLedger) Ping(ctx context.Context) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (l *GormLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ensure GormLedger implements recovery.Ledger
var _ recovery.Ledger = (*GormLedger)(nil)
