package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikey/applytrack/internal/adapters/counter"
	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLimiter(t *testing.T) *Limiter {
	store := counter.NewMemoryCounter(zap.NewNop(), 0)
	t.Cleanup(store.Stop)
	return New(store, config.RateLimitConfig{
		Window:        time.Minute,
		SyncLimit:     2,
		ClassifyLimit: 3,
	}, zap.NewNop())
}

func TestAllowUntilQuotaSpent(t *testing.T) {
	l := newLimiter(t)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "u1", OpSync))
	require.NoError(t, l.Allow(ctx, "u1", OpSync))

	err := l.Allow(ctx, "u1", OpSync)
	var rl *core.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, "u1", rl.UserID)
	assert.Equal(t, OpSync, rl.Operation)
	assert.Equal(t, 2, rl.Limit)
	assert.True(t, core.IsFatalProviderError(err))
}

func TestQuotasAreScopedByUserAndOperation(t *testing.T) {
	l := newLimiter(t)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "u1", OpSync))
	require.NoError(t, l.Allow(ctx, "u1", OpSync))
	require.Error(t, l.Allow(ctx, "u1", OpSync))

	assert.NoError(t, l.Allow(ctx, "u2", OpSync))
	assert.NoError(t, l.Allow(ctx, "u1", OpClassify))
}

func TestUnlimitedOperation(t *testing.T) {
	l := newLimiter(t)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Allow(context.Background(), "u1", OpReview))
	}
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("store down")
}

func (failingStore) Cleanup(context.Context) error { return nil }

func TestStoreFailure(t *testing.T) {
	l := New(failingStore{}, config.RateLimitConfig{SyncLimit: 1}, zap.NewNop())
	err := l.Allow(context.Background(), "u1", OpSync)
	require.Error(t, err)
	var rl *core.RateLimitError
	assert.False(t, errors.As(err, &rl))
}
