// Package async runs functions on goroutines and hands back typed futures.
//
//	f := async.Async(ctx, channel, func(ctx context.Context, ch string) (Result, error) {
//		return send(ctx, ch)
//	})
//	res, err := f.Await()
//
// A future created from an already-cancelled context completes immediately
// with the context error and never calls fn.
package async

import (
	"context"
	"errors"
)

var ErrNoFutures = errors.New("async: no futures to wait for")

// Future represents the result of an asynchronous computation.
type Future[U any] struct {
	result U
	err    error
	done   chan struct{}
}

// Async runs fn(ctx, param) on a new goroutine.
func Async[T any, U any](ctx context.Context, param T, fn func(context.Context, T) (U, error)) *Future[U] {
	f := &Future[U]{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.result, f.err = fn(ctx, param)
	}()

	return f
}

// Await blocks until the computation finishes.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.result, f.err
}

// AwaitContext blocks until the computation finishes or ctx is done,
// whichever happens first. The computation keeps running in the latter case.
func (f *Future[U]) AwaitContext(ctx context.Context) (U, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero U
		return zero, ctx.Err()
	}
}

// IsComplete reports whether the computation has finished, without blocking.
func (f *Future[U]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// WaitAll waits for every future and returns results in input order.
// Unlike a fail-fast join it always waits for all of them; the returned error
// joins every non-nil error.
func WaitAll[U any](futures ...*Future[U]) ([]U, error) {
	results := make([]U, len(futures))
	var errs []error

	for i, f := range futures {
		res, err := f.Await()
		results[i] = res
		if err != nil {
			errs = append(errs, err)
		}
	}

	return results, errors.Join(errs...)
}

// WaitAny returns the index and outcome of the first future to finish.
func WaitAny[U any](futures ...*Future[U]) (int, U, error) {
	if len(futures) == 0 {
		var zero U
		return -1, zero, ErrNoFutures
	}

	type outcome struct {
		index  int
		result U
		err    error
	}
	// Buffered so goroutines of the losing futures never block.
	done := make(chan outcome, len(futures))

	for i, f := range futures {
		go func() {
			res, err := f.Await()
			done <- outcome{index: i, result: res, err: err}
		}()
	}

	first := <-done
	return first.index, first.result, first.err
}
