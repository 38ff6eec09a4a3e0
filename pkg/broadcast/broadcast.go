// Package broadcast fans messages out to in-process subscribers.
//
// Broadcasting never blocks: a subscriber whose buffer is full misses the
// message and is dropped.
package broadcast

import (
	"context"
	"sync"
)

// Message wraps data of type T.
type Message[T any] struct {
	Data T
}

// Subscriber receives messages from a Broadcaster. Safe for concurrent use.
type Subscriber[T any] interface {
	// Receive returns the delivery channel. It is closed when the
	// subscription ends.
	Receive() <-chan Message[T]

	// Close ends the subscription. It is idempotent.
	Close() error
}

// Broadcaster sends messages to every active subscriber.
type Broadcaster[T any] interface {
	// Subscribe registers a subscriber that lives until ctx is done or Close is called.
	Subscribe(ctx context.Context) Subscriber[T]

	Broadcast(ctx context.Context, msg Message[T]) error

	// Close shuts the broadcaster down and closes all subscribers.
	Close() error
}

type subscriber[T any] struct {
	mu     sync.RWMutex
	ch     chan Message[T]
	closed bool
}

func newSubscriber[T any](bufferSize int) *subscriber[T] {
	return &subscriber[T]{ch: make(chan Message[T], bufferSize)}
}

func (s *subscriber[T]) Receive() <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	return nil
}

// send reports false when the subscriber is closed or its buffer is full.
func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
