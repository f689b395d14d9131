// Package completion wraps a completion provider with per-attempt timeouts,
// linear backoff retries and metrics.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/metrics"
	"go.uber.org/zap"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 2
	DefaultBackoff     = time.Second
)

// Client is a retrying core.CompletionProvider
type Client struct {
	provider    core.CompletionProvider
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewClient wraps provider; a zero timeout or attempt count falls back to the default
func NewClient(provider core.CompletionProvider, cfg config.CompletionConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = DefaultBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		provider:    provider,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// Name returns the wrapped provider name
func (c *Client) Name() string {
	return c.provider.Name()
}

// Complete calls the provider until it returns non-empty text or the attempts
// run out. Credential failures are not retried. The returned error is always
// a *core.ProviderError.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	name := c.provider.Name()
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		text, err := c.attempt(ctx, prompt)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("Completion succeeded after retry",
					zap.String("provider", name),
					zap.Int("attempt", attempt))
			}
			return text, nil
		}
		lastErr = err

		if errors.Is(err, core.ErrUnauthorized) {
			c.logger.Error("Completion provider rejected credentials",
				zap.String("provider", name),
				zap.Error(err))
			return "", &core.ProviderError{Provider: name, Attempts: attempt, Err: err, Fatal: true}
		}

		c.logger.Warn("Completion attempt failed",
			zap.String("provider", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Error(err))

		if ctx.Err() != nil {
			return "", &core.ProviderError{Provider: name, Attempts: attempt, Err: err}
		}
		if attempt < c.maxAttempts {
			if err := c.sleep(ctx, c.backoff*time.Duration(attempt)); err != nil {
				return "", &core.ProviderError{Provider: name, Attempts: attempt, Err: lastErr}
			}
		}
	}

	return "", &core.ProviderError{
		Provider: name,
		Attempts: c.maxAttempts,
		Err:      lastErr,
		Fatal:    unreachable(lastErr),
	}
}

func (c *Client) attempt(ctx context.Context, prompt string) (string, error) {
	name := c.provider.Name()
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.provider.Complete(attemptCtx, prompt)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, core.ErrUnauthorized):
		metrics.RecordCompletion(name, "unauthorized", elapsed)
		return "", err
	case err != nil:
		metrics.RecordCompletion(name, "error", elapsed)
		return "", err
	case strings.TrimSpace(text) == "":
		metrics.RecordCompletion(name, "empty", elapsed)
		return "", core.ErrEmptyCompletion
	}
	metrics.RecordCompletion(name, "success", elapsed)
	return text, nil
}

// unreachable reports failures that will hit every message: the host cannot
// be resolved or connected to.
func unreachable(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
