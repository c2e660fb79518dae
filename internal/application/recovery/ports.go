// Package recovery holds the use cases of checkout recovery: reconciling
// debounced checkouts against captured payments, materializing paid orders
// and composing outbound notifications.
package recovery

import (
	"context"
	"time"

	"github.com/cartsync/backend/internal/domain/recovery"
)

// NotificationQueue accepts notification jobs for serialized delivery
type NotificationQueue interface {
	Enqueue(job *recovery.NotificationJob) error
}

// Metrics records recovery activity
type Metrics interface {
	RecordReconciliation(ctx context.Context, outcome recovery.Outcome, elapsed time.Duration)
	RecordNotification(ctx context.Context, kind recovery.NotificationKind, err error)
	RecordInventoryAdjustment(ctx context.Context, err error)
}

type nopMetrics struct{}

func (nopMetrics) RecordReconciliation(context.Context, recovery.Outcome, time.Duration) {}
func (nopMetrics) RecordNotification(context.Context, recovery.NotificationKind, error)  {}
func (nopMetrics) RecordInventoryAdjustment(context.Context, error)                     {}
