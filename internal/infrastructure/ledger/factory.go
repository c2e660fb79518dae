package ledger

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cartsync/backend/internal/domain/recovery"
	"github.com/cartsync/backend/internal/infrastructure/config"
)

// Supported ledger drivers
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// New creates the ledger selected by cfg.Ledger.Driver.
// WARNING: the memory driver keeps no state across restarts and is not shared
// between instances.
func New(cfg *config.Config, logger *zap.Logger) (recovery.Ledger, error) {
	switch cfg.Ledger.Driver {
	case DriverMemory:
		logger.Warn("Using in-memory ledger; pending checkouts and processed IDs are lost on restart")
		return NewMemoryLedger(), nil

	case DriverRedis:
		l, err := NewRedisLedger(RedisConfig{
			Host:      cfg.Redis.Host,
			Port:      cfg.Redis.Port,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis ledger: %w", err)
		}
		return l, nil

	case DriverPostgres, DriverSQLite:
		db, err := OpenDatabase(cfg, logger)
		if err != nil {
			return nil, err
		}
		l := NewGormLedger(db)
		if cfg.Ledger.Driver == DriverSQLite || cfg.Ledger.AutoMigrate {
			if err := l.AutoMigrate(); err != nil {
				_ = l.Close()
				return nil, fmt.Errorf("failed to migrate ledger tables: %w", err)
			}
		}
		return l, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Ledger.Driver)
	}
}
