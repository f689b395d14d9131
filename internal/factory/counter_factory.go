package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/applytrack/internal/adapters/counter"
	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/ratelimit"
	"go.uber.org/zap"
)

// CounterFactory creates rate counter stores based on configuration
type CounterFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCounterFactory creates a new counter factory
func NewCounterFactory(cfg *config.Config, logger *zap.Logger) *CounterFactory {
	return &CounterFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateCounterStore creates the configured counter store
func (f *CounterFactory) CreateCounterStore(ctx context.Context) (core.CounterStore, error) {
	rl, err := f.cfg.GetRateLimit()
	if err != nil {
		return nil, err
	}

	switch rl.Store {
	case "", "memory":
		return counter.NewMemoryCounter(f.logger, rl.CleanupFrequency), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(rl.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return counter.NewSQLiteCounter(rl.SQLitePath, f.logger, rl.CleanupFrequency)
	case "mysql":
		return counter.NewMySQLCounter(rl.MySQLDSN, f.logger, rl.CleanupFrequency)
	case "redis":
		return counter.NewRedisCounter(ctx, rl.RedisAddr, rl.RedisPassword, rl.RedisDB, f.logger)
	default:
		return nil, fmt.Errorf("unsupported rate limit store: %s", rl.Store)
	}
}

// CreateLimiter creates the per-user limiter over store
func (f *CounterFactory) CreateLimiter(store core.CounterStore) (*ratelimit.Limiter, error) {
	rl, err := f.cfg.GetRateLimit()
	if err != nil {
		return nil, err
	}
	return ratelimit.New(store, rl, f.logger), nil
}
