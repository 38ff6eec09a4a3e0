package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// DefaultSweepInterval is how often the scheduler looks for due work.
const DefaultSweepInterval = time.Minute

// Sweeper performs the periodic work of one scheduler tick.
type Sweeper interface {
	FlushDue(ctx context.Context) (int, error)
	DeliverDue(ctx context.Context) (int, error)
}

// Scheduler runs a Sweeper on a fixed interval. Tick runs one sweep
// synchronously, which lets callers drive it without a timer.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	base     context.Context
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSweepInterval sets how often due batches and records are processed.
func WithSweepInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSchedulerLogger sets the logger for the Scheduler.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSweepContext sets the context sweeps run under. Stopping the loop does
// not cancel it, so a sweep in progress finishes its batches.
func WithSweepContext(ctx context.Context) SchedulerOption {
	return func(s *Scheduler) {
		if ctx != nil {
			s.base = ctx
		}
	}
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(sweeper Sweeper, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		sweeper:  sweeper,
		interval: DefaultSweepInterval,
		base:     context.Background(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the sweep period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start launches the sweep loop. It sweeps once immediately, then on every
// interval until Stop is called or ctx ends. ctx bounds the loop only; each
// sweep runs under the sweep context.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSchedulerRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)

	s.logger.LogAttrs(ctx, slog.LevelInfo, "notification scheduler started",
		logger.Duration(s.interval),
	)
	return nil
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	_ = s.Tick(s.base)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			_ = s.Tick(s.base)
		}
	}
}

// Stop ends the loop and waits for an in-progress sweep to finish. The sweep
// is not cancelled. It is a no-op when the scheduler is not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("notification scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Tick flushes due batches and delivers due scheduled records.
func (s *Scheduler) Tick(ctx context.Context) error {
	batches, ferr := s.sweeper.FlushDue(ctx)
	records, derr := s.sweeper.DeliverDue(ctx)
	err := errors.Join(ferr, derr)

	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "notification sweep failed",
			logger.Error(err),
		)
	}
	if batches > 0 || records > 0 {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "notification sweep completed",
			slog.Int("batches", batches),
			slog.Int("records", records),
		)
	}
	return err
}
