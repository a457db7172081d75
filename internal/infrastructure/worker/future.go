package worker

import (
	"context"
	"sync"
)

// Future is the eventual result of a task submitted to a Pool.
// It resolves exactly once.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that is already complete with v
func Resolved[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.resolve(v)
	return f
}

func (f *Future[T]) resolve(v T) {
	f.once.Do(func() {
		f.value = v
		close(f.done)
	})
}

// Done is closed once the value is available
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the value is available or ctx is done
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Value blocks until the value is available
func (f *Future[T]) Value() T {
	<-f.done
	return f.value
}
