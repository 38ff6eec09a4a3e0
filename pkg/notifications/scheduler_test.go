package notifications_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type countingSweeper struct {
	flushes atomic.Int32
	err     error
}

func (s *countingSweeper) FlushDue(context.Context) (int, error) {
	s.flushes.Add(1)
	return 0, s.err
}

func (s *countingSweeper) DeliverDue(context.Context) (int, error) {
	return 0, nil
}

func TestScheduler_TickRespectsBatchDeadline(t *testing.T) {
	t.Parallel()
	f := newBatchFixture(t)
	ctx := context.Background()
	s := notifications.NewScheduler(f.manager)

	require.NoError(t, f.manager.Route(ctx, batchable("n1", "social", 5)))

	f.clock.Advance(4 * time.Minute)
	require.NoError(t, s.Tick(ctx))

	_, err := f.storage.PendingBatch(ctx, "u1", "social")
	require.NoError(t, err, "batch still pending before its deadline")

	f.clock.Advance(time.Minute)
	f.deliverer.On("Deliver", mock.Anything, mock.MatchedBy(isSummary)).Return(markDelivered, nil).Once()
	require.NoError(t, s.Tick(ctx))

	_, err = f.storage.PendingBatch(ctx, "u1", "social")
	assert.ErrorIs(t, err, notifications.ErrNotFound)
}

func TestScheduler_TickJoinsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("storage unavailable")
	s := notifications.NewScheduler(&countingSweeper{err: boom})
	assert.ErrorIs(t, s.Tick(context.Background()), boom)
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	sweeper := &countingSweeper{}
	s := notifications.NewScheduler(sweeper, notifications.WithSweepInterval(10*time.Millisecond))
	assert.Equal(t, 10*time.Millisecond, s.Interval())
	assert.False(t, s.Running())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Start(context.Background()), notifications.ErrSchedulerRunning)

	assert.Eventually(t, func() bool { return sweeper.flushes.Load() >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())
	after := sweeper.flushes.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, sweeper.flushes.Load(), "no sweeps after Stop")

	s.Stop()
	require.NoError(t, s.Start(context.Background()), "restart after stop")
	s.Stop()
}

func TestScheduler_StopsWithContext(t *testing.T) {
	t.Parallel()

	sweeper := &countingSweeper{}
	s := notifications.NewScheduler(sweeper, notifications.WithSweepInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	assert.Eventually(t, func() bool { return sweeper.flushes.Load() == 1 }, time.Second, 5*time.Millisecond,
		"first sweep runs at start")

	cancel()
	s.Stop()
}

func TestScheduler_DefaultInterval(t *testing.T) {
	t.Parallel()

	s := notifications.NewScheduler(&countingSweeper{}, notifications.WithSweepInterval(0))
	assert.Equal(t, notifications.DefaultSweepInterval, s.Interval())
}

// blockingSweeper holds its first sweep until release is closed.
type blockingSweeper struct {
	started chan struct{}
	release chan struct{}
	ctxErr  atomic.Value
}

func (s *blockingSweeper) FlushDue(ctx context.Context) (int, error) {
	close(s.started)
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	s.ctxErr.Store(fmt.Sprint(ctx.Err()))
	return 0, nil
}

func (s *blockingSweeper) DeliverDue(context.Context) (int, error) {
	return 0, nil
}

func TestScheduler_StopWaitsForSweepWithoutCancelling(t *testing.T) {
	t.Parallel()

	sweeper := &blockingSweeper{started: make(chan struct{}), release: make(chan struct{})}
	s := notifications.NewScheduler(sweeper, notifications.WithSweepInterval(time.Hour))
	require.NoError(t, s.Start(context.Background()))
	<-sweeper.started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a sweep was running")
	case <-time.After(30 * time.Millisecond):
	}

	close(sweeper.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the sweep finished")
	}
	assert.Equal(t, "<nil>", sweeper.ctxErr.Load(), "the sweep context is not cancelled by Stop")
}

func TestScheduler_SweepContextCancelsSweep(t *testing.T) {
	t.Parallel()

	base, cancel := context.WithCancel(context.Background())
	sweeper := &blockingSweeper{started: make(chan struct{}), release: make(chan struct{})}
	s := notifications.NewScheduler(sweeper,
		notifications.WithSweepInterval(time.Hour),
		notifications.WithSweepContext(base),
	)
	require.NoError(t, s.Start(context.Background()))
	<-sweeper.started

	cancel()
	s.Stop()
	assert.Equal(t, context.Canceled.Error(), sweeper.ctxErr.Load())
}
