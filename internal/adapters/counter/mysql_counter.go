package counter

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// MySQLCounter is a MySQL implementation of core.CounterStore, shared by
// every daemon pointed at the same database.
type MySQLCounter struct {
	db          *sql.DB
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMySQLCounter connects to MySQL and creates the counter table
func NewMySQLCounter(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*MySQLCounter, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rate_counters (
			counter_key VARCHAR(255) PRIMARY KEY,
			hits BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			INDEX idx_rate_counters_expires_at (expires_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	c := &MySQLCounter{
		db:          db,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go c.startCleanupTask()
	}

	return c, nil
}

// Increment upserts the counter and reads it back inside one transaction
func (c *MySQLCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// hits is assigned first, so both expressions see the old expires_at
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rate_counters (counter_key, hits, expires_at) VALUES (?, 1, ?)
		ON DUPLICATE KEY UPDATE
			hits = IF(expires_at <= ?, 1, hits + 1),
			expires_at = IF(expires_at <= ?, VALUES(expires_at), expires_at)
	`, key, now.Add(window).UnixNano(), now.UnixNano(), now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}

	var hits int64
	if err := tx.QueryRowContext(ctx, `
		SELECT hits FROM rate_counters WHERE counter_key = ?
	`, key).Scan(&hits); err != nil {
		return 0, fmt.Errorf("failed to read rate counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rate counter: %w", err)
	}
	return hits, nil
}

// Cleanup removes expired counters
func (c *MySQLCounter) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM rate_counters
		WHERE expires_at <= ?
	`, time.Now().UnixNano())
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
func (c *MySQLCounter) startCleanupTask() {
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
func (c *MySQLCounter) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close MySQL database", zap.Error(err))
		}
	})
}
