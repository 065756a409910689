package eventstream

import (
	"context"
	"sync"
)

type (
	// CompleteFunc resolves a Task. Only the first call has any effect.
	CompleteFunc[T any] func(value T, err error)

	// Binding starts the work behind a Task. It may call complete synchronously or at any later
	// point, from any goroutine, and returns an optional kill hook run on cancellation.
	Binding[T any] func(complete CompleteFunc[T]) (kill func())

	// Task is a deferred computation that completes exactly once, either with a value or with an error.
	Task[T any] struct {
		done     chan struct{}
		once     sync.Once
		value    T
		err      error
		kill     func()
		killOnce sync.Once
	}
)

// Bind creates a Task and runs the binding immediately.
func Bind[T any](binding Binding[T]) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	t.kill = binding(t.complete)
	return t
}

// Succeed returns an already resolved Task.
func Succeed[T any](value T) *Task[T] {
	return Bind[T](func(complete CompleteFunc[T]) func() {
		complete(value, nil)
		return nil
	})
}

// Fail returns an already failed Task.
func Fail[T any](err error) *Task[T] {
	return Bind[T](func(complete CompleteFunc[T]) func() {
		var zero T
		complete(zero, err)
		return nil
	})
}

func (t *Task[T]) complete(value T, err error) {
	t.once.Do(func() {
		t.value = value
		t.err = err
		close(t.done)
	})
}

// Done returns a channel that is closed once the task has completed.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Await blocks until the task completes or ctx is done. A done ctx does not cancel the task.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Poll reports the outcome without blocking. ok is false while the task is pending.
func (t *Task[T]) Poll() (value T, ok bool, err error) {
	select {
	case <-t.done:
		return t.value, true, t.err
	default:
		return
	}
}

// Cancel runs the kill hook at most once and fails the task with ErrCanceled if still pending.
// The hook runs even when the task has already resolved, so a live connection behind a resolved
// task can still be released this way.
func (t *Task[T]) Cancel() {
	var zero T
	t.complete(zero, ErrCanceled)

	t.killOnce.Do(func() {
		if t.kill != nil {
			t.kill()
		}
	})
}
