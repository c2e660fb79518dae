package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Ledger       LedgerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Shopify      ShopifyConfig
	Razorpay     RazorpayConfig
	AiSensy      AiSensyConfig
	Scheduler    SchedulerConfig
	Reconciler   ReconcilerConfig
	Notification NotificationConfig
	Telemetry    TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
	// Per-client webhook pacing; RateLimit <= 0 disables it
	RateLimit      float64
	RateBurst      int
}

// LedgerConfig selects the durable store for pending checkouts, processed IDs
// and reconciliation locks
type LedgerConfig struct {
	Driver      string `validate:"oneof=memory redis postgres sqlite"`
	SQLitePath  string // file used by the sqlite driver
	AutoMigrate bool   // create postgres tables with GORM instead of cmd/migrate
}

// DatabaseConfig holds PostgreSQL connection settings for the postgres ledger
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings for the redis ledger
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// ShopifyConfig holds Admin API credentials of the store
type ShopifyConfig struct {
	Domain      string `validate:"required"` // mystore.myshopify.com
	AccessToken string `validate:"required"`
	StoreURL    string // storefront URL, used for order status links
	APIVersion  string
	BaseURL     string // overrides https://{Domain}
	Timeout     time.Duration
}

// RazorpayConfig holds payment gateway API credentials
type RazorpayConfig struct {
	KeyID     string `validate:"required"`
	KeySecret string `validate:"required"`
	BaseURL   string
	Timeout   time.Duration
}

// AiSensyConfig holds the messaging API key and campaign names.
// An empty campaign disables that notification kind.
type AiSensyConfig struct {
	APIKey              string `validate:"required"`
	BaseURL             string
	Timeout             time.Duration
	ReminderCampaign    string `validate:"required"`
	OrderCampaign       string
	LowStockCampaign    string
	FulfillmentCampaign string
}

// SchedulerConfig holds the checkout scan scheduler configuration
type SchedulerConfig struct {
	Enabled           bool
	ScanInterval      time.Duration
	DebounceDelay     time.Duration
	MaxConcurrentJobs int
	JobTimeout        time.Duration
}

// ReconcilerConfig holds payment matching settings
type ReconcilerConfig struct {
	PaymentWindow    time.Duration
	RecentOrderLimit int
	PaymentPageSize  int
	LockTTL          time.Duration
}

// NotificationConfig holds the dispatch queue and message composition settings
type NotificationConfig struct {
	QueueSize         int
	SendRate          float64 // messages per second
	SendBurst         int
	LowStockThreshold int
	AdminDestination  string // receives low-stock alerts; empty disables them
	FallbackImageURL  string
	DefaultCountry    string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	LogsEnabled       bool // Export zap records through the OTLP logs bridge
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
	// Continuous profiling
	ProfilingEnabled bool
	PyroscopeAddress string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CARTSYNC_ prefix (e.g., CARTSYNC_SHOPIFY_ACCESS_TOKEN)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("CARTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			RateLimit:      v.GetFloat64("http.rate_limit"),
			RateBurst:      v.GetInt("http.rate_burst"),
		},
		Ledger: LedgerConfig{
			Driver:      v.GetString("ledger.driver"),
			SQLitePath:  v.GetString("ledger.sqlite_path"),
			AutoMigrate: v.GetBool("ledger.auto_migrate"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Shopify: ShopifyConfig{
			Domain:      v.GetString("shopify.domain"),
			AccessToken: v.GetString("shopify.access_token"),
			StoreURL:    v.GetString("shopify.store_url"),
			APIVersion:  v.GetString("shopify.api_version"),
			BaseURL:     v.GetString("shopify.base_url"),
			Timeout:     v.GetDuration("shopify.timeout"),
		},
		Razorpay: RazorpayConfig{
			KeyID:     v.GetString("razorpay.key_id"),
			KeySecret: v.GetString("razorpay.key_secret"),
			BaseURL:   v.GetString("razorpay.base_url"),
			Timeout:   v.GetDuration("razorpay.timeout"),
		},
		AiSensy: AiSensyConfig{
			APIKey:              v.GetString("aisensy.api_key"),
			BaseURL:             v.GetString("aisensy.base_url"),
			Timeout:             v.GetDuration("aisensy.timeout"),
			ReminderCampaign:    v.GetString("aisensy.reminder_campaign"),
			OrderCampaign:       v.GetString("aisensy.order_campaign"),
			LowStockCampaign:    v.GetString("aisensy.low_stock_campaign"),
			FulfillmentCampaign: v.GetString("aisensy.fulfillment_campaign"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           !v.IsSet("scheduler.enabled") || v.GetBool("scheduler.enabled"),
			ScanInterval:      v.GetDuration("scheduler.scan_interval"),
			DebounceDelay:     v.GetDuration("scheduler.debounce_delay"),
			MaxConcurrentJobs: v.GetInt("scheduler.max_concurrent_jobs"),
			JobTimeout:        v.GetDuration("scheduler.job_timeout"),
		},
		Reconciler: ReconcilerConfig{
			PaymentWindow:    v.GetDuration("reconciler.payment_window"),
			RecentOrderLimit: v.GetInt("reconciler.recent_order_limit"),
			PaymentPageSize:  v.GetInt("reconciler.payment_page_size"),
			LockTTL:          v.GetDuration("reconciler.lock_ttl"),
		},
		Notification: NotificationConfig{
			QueueSize:         v.GetInt("notification.queue_size"),
			SendRate:          v.GetFloat64("notification.send_rate"),
			SendBurst:         v.GetInt("notification.send_burst"),
			LowStockThreshold: v.GetInt("notification.low_stock_threshold"),
			AdminDestination:  v.GetString("notification.admin_destination"),
			FallbackImageURL:  v.GetString("notification.fallback_image_url"),
			DefaultCountry:    v.GetString("notification.default_country"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeAddress:  v.GetString("telemetry.pyroscope_address"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "cartsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "3000"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 5 << 20 // 5MB, large carts included
	}
	if cfg.HTTP.RateBurst == 0 {
		cfg.HTTP.RateBurst = 20
	}

	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = "sqlite"
	}
	if cfg.Ledger.SQLitePath == "" {
		cfg.Ledger.SQLitePath = "cartsync.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "cartsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "cartsync:"
	}

	if cfg.Shopify.APIVersion == "" {
		cfg.Shopify.APIVersion = "2025-04"
	}
	if cfg.Shopify.StoreURL == "" && cfg.Shopify.Domain != "" {
		cfg.Shopify.StoreURL = "https://" + cfg.Shopify.Domain
	}
	if cfg.Shopify.Timeout == 0 {
		cfg.Shopify.Timeout = 30 * time.Second
	}
	if cfg.Razorpay.BaseURL == "" {
		cfg.Razorpay.BaseURL = "https://api.razorpay.com"
	}
	if cfg.Razorpay.Timeout == 0 {
		cfg.Razorpay.Timeout = 30 * time.Second
	}
	if cfg.AiSensy.BaseURL == "" {
		cfg.AiSensy.BaseURL = "https://backend.aisensy.com"
	}
	if cfg.AiSensy.Timeout == 0 {
		cfg.AiSensy.Timeout = 30 * time.Second
	}

	if cfg.Scheduler.ScanInterval == 0 {
		cfg.Scheduler.ScanInterval = time.Minute
	}
	if cfg.Scheduler.DebounceDelay == 0 {
		cfg.Scheduler.DebounceDelay = 60 * time.Minute
	}
	if cfg.Scheduler.MaxConcurrentJobs == 0 {
		cfg.Scheduler.MaxConcurrentJobs = 4
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 2 * time.Minute
	}
	if cfg.Reconciler.PaymentWindow == 0 {
		cfg.Reconciler.PaymentWindow = 120 * time.Minute
	}
	if cfg.Reconciler.RecentOrderLimit == 0 {
		cfg.Reconciler.RecentOrderLimit = 50
	}
	if cfg.Reconciler.PaymentPageSize == 0 {
		cfg.Reconciler.PaymentPageSize = 100
	}
	if cfg.Reconciler.LockTTL == 0 {
		cfg.Reconciler.LockTTL = 30 * time.Minute
	}

	if cfg.Notification.QueueSize == 0 {
		cfg.Notification.QueueSize = 256
	}
	if cfg.Notification.SendRate == 0 {
		cfg.Notification.SendRate = 1
	}
	if cfg.Notification.SendBurst == 0 {
		cfg.Notification.SendBurst = 1
	}
	if cfg.Notification.LowStockThreshold == 0 {
		cfg.Notification.LowStockThreshold = 4
	}
	if cfg.Notification.FallbackImageURL == "" {
		cfg.Notification.FallbackImageURL = "https://cdn.shopify.com/s/files/1/0655/1352/1302/files/WhatsApp_Image_2025-05-21_at_21.13.58.jpg"
	}
	if cfg.Notification.DefaultCountry == "" {
		cfg.Notification.DefaultCountry = "IN"
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.PyroscopeAddress == "" {
		cfg.Telemetry.PyroscopeAddress = "http://localhost:4040"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	validate := validator.New()

	// Missing collaborator credentials are the only fatal startup condition
	sections := []struct {
		name  string
		value any
	}{
		{"ledger", c.Ledger},
		{"shopify", c.Shopify},
		{"razorpay", c.Razorpay},
		{"aisensy", c.AiSensy},
	}
	for _, section := range sections {
		if err := validate.Struct(section.value); err != nil {
			return fmt.Errorf("invalid %s configuration: %s", section.name, describeValidation(err))
		}
	}

	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Scheduler.MaxConcurrentJobs < 0 {
		return fmt.Errorf("scheduler.max_concurrent_jobs cannot be negative")
	}
	if c.Reconciler.LockTTL <= c.Scheduler.JobTimeout {
		return fmt.Errorf("reconciler.lock_ttl (%s) must exceed scheduler.job_timeout (%s)",
			c.Reconciler.LockTTL, c.Scheduler.JobTimeout)
	}
	if c.Notification.SendRate < 0 {
		return fmt.Errorf("notification.send_rate cannot be negative")
	}

	if c.App.Env == "production" {
		if c.Ledger.Driver == "memory" {
			return fmt.Errorf("ledger.driver=memory is not allowed in production")
		}
		if c.Ledger.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// describeValidation lists the failing fields of a validator error
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(fields, ", ")
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisAddr returns host:port of the Redis server
func (r *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
