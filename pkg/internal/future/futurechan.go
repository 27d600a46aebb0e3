// Package future provides a one-shot value that many goroutines can wait on.
package future

import (
	"context"
	"sync"
)

// Chan completes exactly once with a value of type T.
// Any number of goroutines may wait for the value, before or after completion.
type Chan[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
}

// NewChan returns an incomplete Chan.
func NewChan[T any]() *Chan[T] {
	return &Chan[T]{done: make(chan struct{})}
}

// Completed returns a Chan already completed with value.
func Completed[T any](value T) *Chan[T] {
	return NewChan[T]().Complete(value)
}

// Complete sets the value and releases all waiters.
// Only the first call has an effect.
func (f *Chan[T]) Complete(value T) *Chan[T] {
	f.once.Do(func() {
		f.value = value
		close(f.done)
	})
	return f
}

// Done is closed when the Chan completes.
func (f *Chan[T]) Done() <-chan struct{} { return f.done }

// IsCompleted reports whether Complete was called.
func (f *Chan[T]) IsCompleted() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the value is available.
func (f *Chan[T]) Get() T {
	<-f.done
	return f.value
}

// Await blocks until the value is available or ctx is done.
func (f *Chan[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// ThenAccept calls fn in a new goroutine once the value is available.
func (f *Chan[T]) ThenAccept(fn func(T)) *Chan[T] {
	go func() { fn(f.Get()) }()
	return f
}

// ThenApply returns a Chan completed with fn applied to the value of f.
func ThenApply[I, O any](f *Chan[I], fn func(I) O) *Chan[O] {
	next := NewChan[O]()
	f.ThenAccept(func(v I) { next.Complete(fn(v)) })
	return next
}
