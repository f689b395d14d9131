package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/core"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the gorm implementation of core.Store
type Store struct {
	*repo
}

// Open opens the configured database and migrates the schema
func Open(cfg config.StoreConfig, log *zap.Logger) (*Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.SQLitePath)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("store.postgres_dsn is required for the postgres driver")
		}
		return NewWithDialector(postgres.Open(cfg.PostgresDSN))
	case "mysql":
		if cfg.MySQLDSN == "" {
			return nil, fmt.Errorf("store.mysql_dsn is required for the mysql driver")
		}
		return NewWithDialector(mysql.Open(cfg.MySQLDSN))
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

// NewSQLite opens a SQLite database file, creating its directory
func NewSQLite(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return NewWithDialector(sqlite.Open(path + "?_busy_timeout=5000&_foreign_keys=on"))
}

// NewWithDialector opens a store on any gorm dialector
func NewWithDialector(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&core.Message{},
		&core.Application{},
		&core.StatusChange{},
		&core.FollowUp{},
		&core.SyncRun{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}

	// external ids used to be unique across users
	if m := db.Migrator(); m.HasIndex(&core.Message{}, "idx_messages_external_id") {
		if err := m.DropIndex(&core.Message{}, "idx_messages_external_id"); err != nil {
			return nil, fmt.Errorf("drop global external id index: %w", err)
		}
	}

	return &Store{repo: &repo{db: db}}, nil
}

// Transaction runs fn against a repository bound to one database transaction
func (s *Store) Transaction(ctx context.Context, fn func(tx core.Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repo{db: tx})
	})
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &core.NotFoundError{Kind: kind, ID: id}
	}
	return err
}
