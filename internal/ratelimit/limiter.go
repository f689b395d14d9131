// Package ratelimit enforces per-user call quotas over a shared counter store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/metrics"
	"go.uber.org/zap"
)

// Operations with their own quota
const (
	OpSync     = "sync"
	OpClassify = "classify"
	OpReview   = "review"
)

// Limiter is a fixed-window limiter keyed by user and operation
type Limiter struct {
	store  core.CounterStore
	window time.Duration
	limits map[string]int
	logger *zap.Logger
}

// New creates a limiter; an operation with no positive limit is unlimited
func New(store core.CounterStore, cfg config.RateLimitConfig, logger *zap.Logger) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{
		store:  store,
		window: cfg.Window,
		limits: map[string]int{
			OpSync:     cfg.SyncLimit,
			OpClassify: cfg.ClassifyLimit,
			OpReview:   cfg.ReviewLimit,
		},
		logger: logger,
	}
}

// Allow counts one call and returns a *core.RateLimitError once the quota for
// the current window is spent.
func (l *Limiter) Allow(ctx context.Context, userID, operation string) error {
	limit := l.limits[operation]
	if limit <= 0 {
		return nil
	}

	n, err := l.store.Increment(ctx, userID+":"+operation, l.window)
	if err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}

	if n > int64(limit) {
		metrics.RateLimited.WithLabelValues(operation).Inc()
		l.logger.Warn("Rate limit exceeded",
			zap.String("user_id", userID),
			zap.String("operation", operation),
			zap.Int64("count", n),
			zap.Int("limit", limit))
		return &core.RateLimitError{
			UserID:    userID,
			Operation: operation,
			Limit:     limit,
			Window:    l.window,
		}
	}
	return nil
}
