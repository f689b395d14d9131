package factory

import (
	"github.com/mikey/applytrack/internal/adapters/store"
	"github.com/mikey/applytrack/internal/config"
	"go.uber.org/zap"
)

// StoreFactory opens the relational store
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore opens and migrates the configured database
func (f *StoreFactory) CreateStore() (*store.Store, error) {
	sc := f.cfg.GetStore()
	s, err := store.Open(sc, f.logger)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Store opened", zap.String("driver", sc.Driver))
	return s, nil
}
