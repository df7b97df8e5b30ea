package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrCancelled wraps the error of a task stopped by Cancel.
var ErrCancelled = errors.New("task cancelled")

type result[T any] struct {
	value T
	err   error
}

// Task is a unit of work running in its own goroutine. Its context is
// cancelled by Cancel or when the parent context ends.
type Task[T any] struct {
	cancel context.CancelFunc
	done   chan struct{}

	once      sync.Once
	cancelled atomic.Bool
	res       result[T]
}

// Go starts fn on a new goroutine with a context derived from ctx.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Task[T] {
	taskCtx, cancel := context.WithCancel(ctx)
	t := &Task[T]{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer cancel()
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.res = result[T]{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()

		value, err := fn(taskCtx)
		if err != nil && t.cancelled.Load() {
			err = fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		t.res = result[T]{value: value, err: err}
	}()

	return t
}

// Done is closed once the task has finished.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Cancel asks the task to stop. It is safe to call more than once.
func (t *Task[T]) Cancel() {
	t.once.Do(func() {
		t.cancelled.Store(true)
		t.cancel()
	})
}

// Wait blocks until the task finishes or ctx ends. Returning because ctx
// ended does not cancel the task.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.res.value, t.res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
