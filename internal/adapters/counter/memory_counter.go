package counter

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/applytrack/internal/core"
	"go.uber.org/zap"
)

// MemoryCounter is an in-memory implementation of core.CounterStore
type MemoryCounter struct {
	entries     map[string]*core.CounterEntry
	mu          sync.Mutex
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// NewMemoryCounter creates a new in-memory counter store. A positive
// cleanupFreq starts a background task that drops expired counters.
func NewMemoryCounter(logger *zap.Logger, cleanupFreq time.Duration) *MemoryCounter {
	c := &MemoryCounter{
		entries:     make(map[string]*core.CounterEntry),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}

	if cleanupFreq > 0 {
		go c.startCleanupTask()
	}

	return c
}

// Increment bumps the counter for key, starting a new window when the old one has expired
func (c *MemoryCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry, ok := c.entries[key]
	if !ok || !now.Before(entry.ExpiresAt) {
		entry = &core.CounterEntry{Key: key, ExpiresAt: now.Add(window)}
		c.entries[key] = entry
	}
	entry.Count++

	return entry.Count, nil
}

// Cleanup removes expired counters
func (c *MemoryCounter) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expiredCount := 0

	for key, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, key)
			expiredCount++
		}
	}

	c.logger.Debug("Cleaned up expired rate counters", zap.Int("expired_count", expiredCount))
	return nil
}

// startCleanupTask starts a background task to clean up expired counters
func (c *MemoryCounter) startCleanupTask() {
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

// Stop stops the background cleanup task
func (c *MemoryCounter) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
