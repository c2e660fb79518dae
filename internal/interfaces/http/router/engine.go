package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/cartsync/backend/internal/infrastructure/logger"
	"github.com/cartsync/backend/internal/interfaces/http/middleware"
)

// EngineConfig configures the gin engine and its middleware stack
type EngineConfig struct {
	Logger           *zap.Logger
	Release          bool
	TrustedProxies   []string
	MaxBodySize      int64
	ServiceName      string
	TracingEnabled   bool
	ProfilingEnabled bool
	// Meter records HTTP server metrics; nil disables them
	Meter metric.Meter
}

// NewEngine builds a gin engine with the middleware stack in order:
// request ID, panic recovery, tracing, request logging (after tracing so
// log lines carry trace IDs), metrics, profiling labels and body limit.
func NewEngine(cfg EngineConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.ServiceName,
		Enabled:     cfg.TracingEnabled,
	}))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.HTTPMetrics(cfg.Meter, log))
	engine.Use(middleware.ProfilingWithConfig(middleware.ProfilingConfig{
		Enabled:   cfg.ProfilingEnabled,
		SkipPaths: middleware.DefaultProfilingConfig().SkipPaths,
	}))
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	return engine
}
