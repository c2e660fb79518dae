package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/cartsync/backend/internal/domain/recovery"
)

// RecoveryMetrics records checkout recovery activity: reconciliation
// outcomes and latency, notification deliveries and inventory adjustments.
type RecoveryMetrics struct {
	meter metric.Meter

	reconciliations       *Counter
	reconciliationLatency *Histogram
	ordersMaterialized    *Counter
	notifications         *Counter
	inventoryAdjustments  *Counter
}

// NewRecoveryMetrics creates the recovery instruments on meter.
func NewRecoveryMetrics(meter metric.Meter) (*RecoveryMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &RecoveryMetrics{meter: meter}
	var err error

	m.reconciliations, err = NewCounter(meter,
		"cartsync_reconciliations_total",
		"Debounced checkouts reconciled, by outcome",
		"{checkouts}",
	)
	if err != nil {
		return nil, err
	}

	m.reconciliationLatency, err = NewHistogram(meter, HistogramOpts{
		Name:        "cartsync_reconciliation_duration_seconds",
		Description: "Time spent reconciling one checkout",
		Unit:        "s",
		Boundaries:  ReconciliationDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	m.ordersMaterialized, err = NewCounter(meter,
		"cartsync_orders_materialized_total",
		"Orders created from captured payments",
		"{orders}",
	)
	if err != nil {
		return nil, err
	}

	m.notifications, err = NewCounter(meter,
		"cartsync_notifications_total",
		"Notification deliveries, by kind and status",
		"{messages}",
	)
	if err != nil {
		return nil, err
	}

	m.inventoryAdjustments, err = NewCounter(meter,
		"cartsync_inventory_adjustments_total",
		"Inventory level adjustments after order creation, by status",
		"{adjustments}",
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordReconciliation counts one reconciliation and its latency
func (m *RecoveryMetrics) RecordReconciliation(ctx context.Context, outcome recovery.Outcome, elapsed time.Duration) {
	attr := AttrOutcome.String(string(outcome))
	m.reconciliations.Inc(ctx, attr)
	m.reconciliationLatency.RecordDuration(ctx, elapsed, attr)
	if outcome == recovery.OutcomeOrderMaterialized {
		m.ordersMaterialized.Inc(ctx)
	}
}

// RecordNotification counts one delivery attempt
func (m *RecoveryMetrics) RecordNotification(ctx context.Context, kind recovery.NotificationKind, err error) {
	m.notifications.Inc(ctx, AttrKind.String(string(kind)), statusOf(err))
}

// RecordInventoryAdjustment counts one inventory adjustment attempt
func (m *RecoveryMetrics) RecordInventoryAdjustment(ctx context.Context, err error) {
	m.inventoryAdjustments.Inc(ctx, statusOf(err))
}

// ObserveQueueDepth reports the value of depth as a gauge on every collection
func (m *RecoveryMetrics) ObserveQueueDepth(name, description string, depth func() int64) error {
	_, err := m.meter.Int64ObservableGauge(name,
		metric.WithDescription(description),
		metric.WithUnit("{jobs}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(depth())
			return nil
		}),
	)
	return err
}

// ErrMeterNil is returned when a nil meter is passed in.
var ErrMeterNil = &MetricsError{Op: "NewRecoveryMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
