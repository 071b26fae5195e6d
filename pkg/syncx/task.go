// Package syncx provides concurrency primitives shared across the SDK.
package syncx

import (
	"errors"
	"sync"
	"time"
)

// DefaultWaitTimeout bounds how long a caller waits on another caller's
// in-flight execution before running the operation itself.
const DefaultWaitTimeout = 10 * time.Second

// ErrAborted is returned to waiters when the running caller crashed before
// producing a result. The crash itself propagates on the runner's goroutine.
var ErrAborted = errors.New("syncx: task aborted before producing a result")

// Task collapses concurrent invocations of an expensive operation into a
// single execution. The first caller runs the operation; callers arriving
// while it is in flight block and receive the same result. A waiter that
// outlives the wait timeout stops waiting and executes the operation itself,
// so duplicate executions are possible under contention. The guarantee is
// best effort, not exactly once: the primitive exists to stop a burst of
// callers from issuing a burst of identical network calls, while never
// leaving a caller hung on a runner that stalled.
//
// Task exposes no cancellation. The wrapped operation should carry its own
// deadline so a shared execution does not inherit any single caller's
// lifetime.
type Task[T any] struct {
	fn   func() (T, error)
	wait time.Duration

	mu  sync.Mutex
	cur *flight[T]
}

// flight is one execution of the operation. val and err are written before
// done is closed and must only be read after done is observed closed.
type flight[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// NewTask wraps fn with the default wait timeout.
func NewTask[T any](fn func() (T, error)) *Task[T] {
	return NewTaskWithTimeout(fn, DefaultWaitTimeout)
}

// NewTaskWithTimeout wraps fn with an explicit wait timeout. Non-positive
// values fall back to the default.
func NewTaskWithTimeout[T any](fn func() (T, error), wait time.Duration) *Task[T] {
	if wait <= 0 {
		wait = DefaultWaitTimeout
	}
	return &Task[T]{fn: fn, wait: wait}
}

// Run executes the operation, or waits for an execution already in flight
// and returns its result. If the wait timeout elapses first, the caller
// re-executes the operation itself and returns its own result.
func (t *Task[T]) Run() (T, error) {
	t.mu.Lock()
	if f := t.cur; f != nil {
		t.mu.Unlock()

		timer := time.NewTimer(t.wait)
		defer timer.Stop()

		select {
		case <-f.done:
			return f.val, f.err
		case <-timer.C:
			t.mu.Lock()
			select {
			case <-f.done:
				// Finished in the window between the timer firing and the
				// lock being reacquired. Use its result rather than running
				// a duplicate.
				t.mu.Unlock()
				return f.val, f.err
			default:
			}
		}
	}

	// Become the runner. If a stalled flight is still registered, replace it;
	// its runner will see the swap and leave the slot alone when it finishes.
	f := &flight[T]{done: make(chan struct{})}
	t.cur = f
	t.mu.Unlock()

	completed := false
	defer func() {
		t.mu.Lock()
		if t.cur == f {
			t.cur = nil
		}
		if !completed {
			f.err = ErrAborted
		}
		close(f.done)
		t.mu.Unlock()
	}()

	f.val, f.err = t.fn()
	completed = true
	return f.val, f.err
}
