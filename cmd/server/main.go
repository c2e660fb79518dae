package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	recoveryapp "github.com/cartsync/backend/internal/application/recovery"
	"github.com/cartsync/backend/internal/infrastructure/config"
	"github.com/cartsync/backend/internal/infrastructure/ecommerce"
	"github.com/cartsync/backend/internal/infrastructure/ledger"
	"github.com/cartsync/backend/internal/infrastructure/logger"
	"github.com/cartsync/backend/internal/infrastructure/messaging"
	"github.com/cartsync/backend/internal/infrastructure/payment"
	"github.com/cartsync/backend/internal/infrastructure/scheduler"
	"github.com/cartsync/backend/internal/infrastructure/telemetry"
	"github.com/cartsync/backend/internal/interfaces/http/handler"
	"github.com/cartsync/backend/internal/interfaces/http/middleware"
	"github.com/cartsync/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

const logTimeFormat = "2006-01-02T15:04:05.000Z07:00"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logTimeFormat,
	}

	// Initialize logger
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	// The OTLP logs bridge needs a logger of its own, so the application
	// logger is rebuilt with the bridge core once the provider is up.
	loggerProvider, err := telemetry.NewLoggerProvider(rootCtx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize OTLP logs", zap.Error(err))
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled {
		bridge := telemetry.NewZapOTELCore(loggerProvider, cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level))
		log, err = logger.New(logCfg, bridge)
		if err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting cartsync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
		zap.String("ledger", cfg.Ledger.Driver),
	)

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(rootCtx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(rootCtx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Span profiles unavailable", zap.Error(err))
		}
	}

	recoveryMetrics, err := telemetry.NewRecoveryMetrics(meterProvider.Meter("cartsync.recovery"))
	if err != nil {
		log.Fatal("Failed to register recovery metrics", zap.Error(err))
	}

	// Ledger: debounce store, processed IDs and reconciliation locks
	store, err := ledger.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to open ledger", zap.Error(err))
	}
	log.Info("Ledger opened", zap.String("driver", cfg.Ledger.Driver))

	// Collaborators
	shopifyCfg := ecommerce.NewShopifyConfig(cfg.Shopify.Domain, cfg.Shopify.AccessToken)
	if cfg.Shopify.APIVersion != "" {
		shopifyCfg.APIVersion = cfg.Shopify.APIVersion
	}
	shopifyCfg.BaseURL = cfg.Shopify.BaseURL
	shopifyCfg.TimeoutSeconds = seconds(cfg.Shopify.Timeout)
	platform, err := ecommerce.NewShopifyAdapter(shopifyCfg)
	if err != nil {
		log.Fatal("Failed to create Shopify client", zap.Error(err))
	}

	payments, err := payment.NewRazorpayAdapter(&payment.RazorpayConfig{
		KeyID:          cfg.Razorpay.KeyID,
		KeySecret:      cfg.Razorpay.KeySecret,
		BaseURL:        cfg.Razorpay.BaseURL,
		TimeoutSeconds: seconds(cfg.Razorpay.Timeout),
	})
	if err != nil {
		log.Fatal("Failed to create Razorpay client", zap.Error(err))
	}

	notifier, err := messaging.NewAiSensyNotifier(&messaging.AiSensyConfig{
		APIKey:         cfg.AiSensy.APIKey,
		BaseURL:        cfg.AiSensy.BaseURL,
		TimeoutSeconds: seconds(cfg.AiSensy.Timeout),
	})
	if err != nil {
		log.Fatal("Failed to create AiSensy client", zap.Error(err))
	}

	// Notification composition and its serialized dispatch queue
	notificationService := recoveryapp.NewNotificationService(recoveryapp.NotificationServiceConfig{
		Platform:  platform,
		Notifier:  notifier,
		Processed: store,
		Metrics:   recoveryMetrics,
		Logger:    log.Named("notification"),
		Campaigns: recoveryapp.Campaigns{
			Reminder:          cfg.AiSensy.ReminderCampaign,
			OrderConfirmation: cfg.AiSensy.OrderCampaign,
			LowStock:          cfg.AiSensy.LowStockCampaign,
			Fulfillment:       cfg.AiSensy.FulfillmentCampaign,
		},
		StoreURL:          cfg.Shopify.StoreURL,
		AdminDestination:  cfg.Notification.AdminDestination,
		LowStockThreshold: cfg.Notification.LowStockThreshold,
		FallbackImageURL:  cfg.Notification.FallbackImageURL,
		DefaultCountry:    cfg.Notification.DefaultCountry,
	})

	dispatcherConfig := scheduler.DefaultNotificationDispatcherConfig()
	dispatcherConfig.QueueSize = cfg.Notification.QueueSize
	dispatcherConfig.SendRate = cfg.Notification.SendRate
	dispatcherConfig.SendBurst = cfg.Notification.SendBurst
	dispatcher, err := scheduler.NewNotificationDispatcher(dispatcherConfig, notificationService, log.Named("dispatcher"))
	if err != nil {
		log.Fatal("Failed to create notification dispatcher", zap.Error(err))
	}
	if err := dispatcher.Start(rootCtx); err != nil {
		log.Fatal("Failed to start notification dispatcher", zap.Error(err))
	}
	if err := recoveryMetrics.ObserveQueueDepth(
		"cartsync_notification_queue_depth",
		"Notification jobs waiting for delivery",
		func() int64 { return int64(dispatcher.Stats().Queued) },
	); err != nil {
		log.Warn("Queue depth gauge unavailable", zap.Error(err))
	}
	log.Info("Notification dispatcher started",
		zap.Int("queue_size", dispatcherConfig.QueueSize),
		zap.Float64("send_rate", dispatcherConfig.SendRate),
	)

	// Reconciliation
	materializer := recoveryapp.NewOrderMaterializer(recoveryapp.OrderMaterializerConfig{
		Platform:       platform,
		Metrics:        recoveryMetrics,
		DefaultCountry: cfg.Notification.DefaultCountry,
		Logger:         log.Named("materializer"),
	})

	reconciler := recoveryapp.NewReconciliationService(recoveryapp.ReconciliationServiceConfig{
		Platform:         platform,
		Payments:         payments,
		Processed:        store,
		Locks:            store,
		Materializer:     materializer,
		Notifications:    dispatcher,
		Metrics:          recoveryMetrics,
		Logger:           log.Named("reconciler"),
		PaymentWindow:    cfg.Reconciler.PaymentWindow,
		RecentOrderLimit: cfg.Reconciler.RecentOrderLimit,
		PaymentPageSize:  cfg.Reconciler.PaymentPageSize,
		LockTTL:          cfg.Reconciler.LockTTL,
	})

	scanConfig := scheduler.CheckoutScanSchedulerConfig{
		Enabled:           cfg.Scheduler.Enabled,
		ScanInterval:      cfg.Scheduler.ScanInterval,
		DebounceDelay:     cfg.Scheduler.DebounceDelay,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        cfg.Scheduler.JobTimeout,
	}
	scanScheduler, err := scheduler.NewCheckoutScanScheduler(scanConfig, store, reconciler, log.Named("scan"))
	if err != nil {
		log.Fatal("Failed to create checkout scan scheduler", zap.Error(err))
	}
	if err := scanScheduler.Start(rootCtx); err != nil {
		log.Fatal("Failed to start checkout scan scheduler", zap.Error(err))
	}
	log.Info("Checkout scan scheduler started",
		zap.Bool("enabled", scanConfig.Enabled),
		zap.Duration("scan_interval", scanConfig.ScanInterval),
		zap.Duration("debounce_delay", scanConfig.DebounceDelay),
		zap.Int("max_concurrent_jobs", scanConfig.MaxConcurrentJobs),
	)

	webhookService := recoveryapp.NewWebhookService(recoveryapp.WebhookServiceConfig{
		Pending:       store,
		Processed:     store,
		Notifications: dispatcher,
		Logger:        log.Named("webhook"),
	})

	// HTTP
	engine := router.NewEngine(router.EngineConfig{
		Logger:           log,
		Release:          cfg.App.Env == "production",
		TrustedProxies:   cfg.HTTP.TrustedProxies,
		MaxBodySize:      cfg.HTTP.MaxBodySize,
		ServiceName:      cfg.Telemetry.ServiceName,
		TracingEnabled:   cfg.Telemetry.Enabled,
		ProfilingEnabled: cfg.Telemetry.ProfilingEnabled,
		Meter:            meterProvider.Meter("cartsync.http"),
	})

	webhookHandler := handler.NewWebhookHandler(webhookService)
	systemHandler := handler.NewSystemHandler(store, scanScheduler, dispatcher, cfg.App.Name, version)

	webhookRoutes := router.NewDomainGroup("webhook", "/webhook")
	if cfg.HTTP.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)
		go limiter.Run(rootCtx)
		webhookRoutes.Use(middleware.RateLimit(limiter))
		log.Info("Webhook rate limiting enabled",
			zap.Float64("rate", cfg.HTTP.RateLimit),
			zap.Int("burst", cfg.HTTP.RateBurst),
		)
	}
	webhookRoutes.
		POST("/abandoned-checkouts", webhookHandler.AbandonedCheckout).
		POST("/order-confirmation", webhookHandler.OrderConfirmation).
		POST("/fulfillment-creation", webhookHandler.FulfillmentCreation)

	healthRoutes := router.NewDomainGroup("health", "").
		GET("/health", systemHandler.Health)

	systemRoutes := router.NewDomainGroup("system", "/system").
		GET("/scheduler", systemHandler.SchedulerStatus).
		GET("/info", systemHandler.GetSystemInfo)

	router.NewRouter(engine).
		Register(webhookRoutes).
		Register(healthRoutes).
		Register(systemRoutes).
		Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Stop producers before the queue they feed, then flush telemetry last
	if err := scanScheduler.Stop(ctx); err != nil {
		log.Error("Error stopping checkout scan scheduler", zap.Error(err))
	}
	if err := dispatcher.Stop(ctx); err != nil {
		log.Error("Error stopping notification dispatcher", zap.Error(err))
	}
	stopRoot()

	if err := store.Close(); err != nil {
		log.Error("Error closing ledger", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := meterProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := loggerProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
