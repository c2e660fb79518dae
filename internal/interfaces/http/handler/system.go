package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cartsync/backend/internal/infrastructure/logger"
	"github.com/cartsync/backend/internal/infrastructure/scheduler"
	"github.com/cartsync/backend/internal/interfaces/http/dto"
)

// healthTimeout bounds the ledger ping of a health check
const healthTimeout = 2 * time.Second

// HealthChecker reports whether the ledger is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// ScanStatsSource exposes checkout scan statistics
type ScanStatsSource interface {
	Stats() scheduler.ScanStats
}

// DispatchStatsSource exposes notification dispatcher statistics
type DispatchStatsSource interface {
	Stats() scheduler.DispatcherStats
}

// SystemHandler serves operational endpoints
type SystemHandler struct {
	BaseHandler
	ledger    HealthChecker
	scan      ScanStatsSource
	dispatch  DispatchStatsSource
	name      string
	version   string
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(ledger HealthChecker, scan ScanStatsSource, dispatch DispatchStatsSource, name, version string) *SystemHandler {
	return &SystemHandler{
		ledger:    ledger,
		scan:      scan,
		dispatch:  dispatch,
		name:      name,
		version:   version,
		startTime: time.Now(),
	}
}

// Health handles GET /health by pinging the ledger
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	now := time.Now().Format(time.RFC3339)
	if err := h.ledger.Ping(ctx); err != nil {
		logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{
			Status: dto.HealthStatusUnhealthy,
			Time:   now,
			Ledger: "error",
		})
		return
	}
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status: dto.HealthStatusHealthy,
		Time:   now,
		Ledger: "ok",
	})
}

// SchedulerStatus handles GET /system/scheduler
func (h *SystemHandler) SchedulerStatus(c *gin.Context) {
	var resp dto.SchedulerStatusResponse
	if h.scan != nil {
		resp.Scan = toScanStatus(h.scan.Stats())
	}
	if h.dispatch != nil {
		d := h.dispatch.Stats()
		resp.Dispatch = dto.DispatchStatus{
			Running:   d.Running,
			Queued:    d.Queued,
			Delivered: d.Delivered,
			Failed:    d.Failed,
			Rejected:  d.Rejected,
		}
	}
	h.Success(c, resp)
}

func toScanStatus(s scheduler.ScanStats) dto.ScanStatus {
	out := dto.ScanStatus{
		Running:         s.Running,
		LastDue:         s.LastDue,
		LastDispatched:  s.LastDispatched,
		LastDropped:     s.LastDropped,
		TotalRuns:       s.TotalRuns,
		TotalDispatched: s.TotalDispatched,
		TotalDropped:    s.TotalDropped,
		Outcomes:        make(map[string]int64, len(s.Outcomes)),
	}
	if !s.LastRun.IsZero() {
		lastRun := s.LastRun
		out.LastRun = &lastRun
	}
	for outcome, n := range s.Outcomes {
		out.Outcomes[string(outcome)] = n
	}
	return out
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// GetSystemInfo handles GET /system/info
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}
