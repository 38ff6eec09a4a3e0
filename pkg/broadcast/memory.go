package broadcast

import (
	"context"
	"sync"
)

// MemoryBroadcaster is an in-process Broadcaster.
type MemoryBroadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[*subscriber[T]]struct{}
	bufferSize  int
	closed      bool
	done        chan struct{}
	wg          sync.WaitGroup
}

// NewMemoryBroadcaster creates a broadcaster whose subscribers buffer up to
// bufferSize messages (at least 1).
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	return &MemoryBroadcaster[T]{
		subscribers: make(map[*subscriber[T]]struct{}),
		bufferSize:  max(bufferSize, 1),
		done:        make(chan struct{}),
	}
}

func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newSubscriber[T](b.bufferSize)
	if b.closed {
		_ = sub.Close()
		return sub
	}
	b.subscribers[sub] = struct{}{}

	if ctx.Done() != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			select {
			case <-ctx.Done():
				b.unsubscribe(sub)
			case <-b.done:
			}
		}()
	}

	return sub
}

// Broadcast delivers msg to every subscriber with buffer space and drops the rest.
func (b *MemoryBroadcaster[T]) Broadcast(_ context.Context, msg Message[T]) error {
	b.mu.RLock()
	var slow []*subscriber[T]
	if !b.closed {
		for sub := range b.subscribers {
			if !sub.send(msg) {
				slow = append(slow, sub)
			}
		}
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		b.unsubscribe(sub)
	}
	return nil
}

// Len returns the number of active subscribers.
func (b *MemoryBroadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	for sub := range b.subscribers {
		_ = sub.Close()
	}
	clear(b.subscribers)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (b *MemoryBroadcaster[T]) unsubscribe(sub *subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	_ = sub.Close()
}
