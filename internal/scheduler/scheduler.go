// Package scheduler triggers sync and classification for configured users on
// a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mikey/applytrack/internal/core"
	"go.uber.org/zap"
)

// DefaultTimeout bounds one user's sync plus classification
const DefaultTimeout = 10 * time.Minute

// Runner is the part of the orchestrator the scheduler drives
type Runner interface {
	Sync(ctx context.Context, userID string) (*core.SyncRun, error)
	ClassifyPending(ctx context.Context, userID string, limit int) (*core.SyncRun, error)
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

// Scheduler runs every user serially on each tick. A tick that arrives while
// a pass is still running is dropped.
type Scheduler struct {
	runner    Runner
	users     []string
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
	running   atomic.Bool
	newTicker func(time.Duration) ticker

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler; a non-positive interval or no users disables it
func New(runner Runner, users []string, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:    runner,
		users:     users,
		interval:  interval,
		timeout:   DefaultTimeout,
		logger:    logger,
		newTicker: defaultTicker,
	}
}

// Start starts the background loop
func (s *Scheduler) Start() error {
	if s.interval <= 0 || len(s.users) == 0 {
		s.logger.Info("Scheduler disabled",
			zap.Duration("interval", s.interval),
			zap.Int("users", len(s.users)))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("scheduler already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	tick := s.newTicker(s.interval)
	go func() {
		defer close(s.done)
		defer tick.Stop()
		ch := tick.C()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				s.RunOnce(ctx)
			drain:
				for {
					select {
					case <-ch:
						continue
					default:
						break drain
					}
				}
			}
		}
	}()

	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.interval),
		zap.Strings("users", s.users))
	return nil
}

// Stop cancels the loop and waits for an in-flight pass to return
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// RunOnce syncs then classifies each user in turn and returns how many users
// completed both steps. It returns 0 without doing anything if a pass is
// already running.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if s.running.Swap(true) {
		s.logger.Debug("Scheduler pass already running, skipping tick")
		return 0
	}
	defer s.running.Store(false)

	completed := 0
	for _, user := range s.users {
		if ctx.Err() != nil {
			break
		}
		if s.runUser(ctx, user) {
			completed++
		}
	}
	return completed
}

func (s *Scheduler) runUser(ctx context.Context, userID string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.runner.Sync(ctx, userID); err != nil {
		s.logger.Error("Scheduled sync failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	if _, err := s.runner.ClassifyPending(ctx, userID, 0); err != nil {
		s.logger.Error("Scheduled classification failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return true
}

func defaultTicker(d time.Duration) ticker {
	return tickerWrapper{time.NewTicker(d)}
}

type tickerWrapper struct {
	*time.Ticker
}

func (t tickerWrapper) C() <-chan time.Time { return t.Ticker.C }
func (t tickerWrapper) Stop()               { t.Ticker.Stop() }
