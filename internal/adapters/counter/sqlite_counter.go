package counter

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteCounter is a SQLite implementation of core.CounterStore, for
// single-host deployments that must keep quotas across restarts.
type SQLiteCounter struct {
	db          *sql.DB
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// NewSQLiteCounter opens (and if needed creates) the counter database
func NewSQLiteCounter(dbPath string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLiteCounter, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// one writer keeps INSERT .. ON CONFLICT free of SQLITE_BUSY
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rate_counters (
			counter_key TEXT PRIMARY KEY,
			hits INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_rate_counters_expires_at ON rate_counters(expires_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	c := &SQLiteCounter{
		db:          db,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}

	if cleanupFreq > 0 {
		go c.startCleanupTask()
	}

	return c, nil
}

// Increment bumps the counter for key in a single upsert
func (c *SQLiteCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := c.now()
	var hits int64
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO rate_counters (counter_key, hits, expires_at) VALUES (?, 1, ?)
		ON CONFLICT(counter_key) DO UPDATE SET
			hits = CASE WHEN rate_counters.expires_at <= ? THEN 1 ELSE rate_counters.hits + 1 END,
			expires_at = CASE WHEN rate_counters.expires_at <= ? THEN excluded.expires_at ELSE rate_counters.expires_at END
		RETURNING hits
	`, key, now.Add(window).UnixNano(), now.UnixNano(), now.UnixNano()).Scan(&hits)
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}
	return hits, nil
}

// Cleanup removes expired counters
func (c *SQLiteCounter) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM rate_counters
		WHERE expires_at <= ?
	`, c.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to clean up expired counters: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired rate counters", zap.Int64("expired_count", rowsAffected))
	}

	return nil
}

// startCleanupTask starts a background task to clean up expired counters
func (c *SQLiteCounter) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				c.logger.Error("Failed to clean up rate counters", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task and closes the database connection
func (c *SQLiteCounter) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close SQLite database", zap.Error(err))
		}
	})
}
