package dto

import "time"

// OrderEvent is the part of an order webhook that must be present before
// the payload is handed to the webhook service
type OrderEvent struct {
	ID   int64  `json:"id" binding:"required,gt=0"`
	Name string `json:"name"`
}

// FulfillmentEvent is the validated part of a fulfillment webhook
type FulfillmentEvent struct {
	ID      int64 `json:"id" binding:"required,gt=0"`
	OrderID int64 `json:"order_id" binding:"omitempty,gt=0"`
}

// WebhookAck is returned for accepted order and fulfillment webhooks.
// Accepted is false when the event was already handled.
type WebhookAck struct {
	Accepted bool `json:"accepted"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
	Ledger string `json:"ledger"`
}

// HealthStatus values
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
)

// SchedulerStatusResponse is the body of GET /system/scheduler
type SchedulerStatusResponse struct {
	Scan     ScanStatus     `json:"scan"`
	Dispatch DispatchStatus `json:"dispatch"`
}

// ScanStatus mirrors the checkout scan statistics
type ScanStatus struct {
	Running         bool             `json:"running"`
	LastRun         *time.Time       `json:"last_run,omitempty"`
	LastDue         int              `json:"last_due"`
	LastDispatched  int              `json:"last_dispatched"`
	LastDropped     int              `json:"last_dropped"`
	TotalRuns       int64            `json:"total_runs"`
	TotalDispatched int64            `json:"total_dispatched"`
	TotalDropped    int64            `json:"total_dropped"`
	Outcomes        map[string]int64 `json:"outcomes"`
}

// DispatchStatus mirrors the notification dispatcher statistics
type DispatchStatus struct {
	Running   bool  `json:"running"`
	Queued    int   `json:"queued"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
