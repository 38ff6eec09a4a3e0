package broadcast_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
)

func receive[T any](t *testing.T, sub broadcast.Subscriber[T]) (broadcast.Message[T], bool) {
	t.Helper()
	select {
	case msg, ok := <-sub.Receive():
		return msg, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return broadcast.Message[T]{}, false
	}
}

func TestMemoryBroadcaster_FanOut(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[string](4)
	defer b.Close()

	ctx := context.Background()
	first := b.Subscribe(ctx)
	second := b.Subscribe(ctx)

	require.NoError(t, b.Broadcast(ctx, broadcast.Message[string]{Data: "hello"}))

	msg, ok := receive(t, first)
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Data)
	msg, ok = receive(t, second)
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Data)
}

func TestMemoryBroadcaster_SlowSubscriberDropped(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[int](1)
	defer b.Close()

	ctx := context.Background()
	sub := b.Subscribe(ctx)

	require.NoError(t, b.Broadcast(ctx, broadcast.Message[int]{Data: 1}))
	require.NoError(t, b.Broadcast(ctx, broadcast.Message[int]{Data: 2}))

	assert.Equal(t, 0, b.Len())
	msg, ok := receive(t, sub)
	require.True(t, ok)
	assert.Equal(t, 1, msg.Data)
	_, ok = receive(t, sub)
	assert.False(t, ok, "channel closed after drop")
}

func TestMemoryBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[int](1)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := b.Subscribe(ctx)
	assert.Equal(t, 1, b.Len())

	cancel()
	_, ok := receive(t, sub)
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryBroadcaster_Close(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[int](1)

	// A subscriber whose context never ends must not block Close.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := b.Subscribe(ctx)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, ok := receive(t, sub)
	assert.False(t, ok)

	late := b.Subscribe(context.Background())
	_, ok = receive(t, late)
	assert.False(t, ok)
	assert.NoError(t, b.Broadcast(context.Background(), broadcast.Message[int]{Data: 1}))
}
