// Package optimistic implements the apply/commit/revert machinery around a
// single asynchronous operation: show a provisional value immediately, run
// the network call, then commit the authoritative result or restore the
// pre-mutation snapshot. Overlapping executions on one engine are queued
// strictly first-in-first-out, so a later rollback can never resurrect
// state from before an earlier commit.
package optimistic

import (
	"context"
	"sync"
)

// Operation is the asynchronous work an update wraps. Returning a non-nil
// value commits it as authoritative; returning nil keeps the provisional
// value as the confirmed one.
type Operation[T any] func(ctx context.Context) (*T, error)

// Options customize one Execute call. All fields are optional.
type Options[T any] struct {
	// Rollback computes the value to restore on failure. When nil, the
	// pre-mutation snapshot is restored as-is.
	Rollback func(original T, err error) T

	// OnSuccess runs after a commit with the confirmed value.
	OnSuccess func(value T)

	// OnError runs after a failure, before OnRollback.
	OnError func(err error)

	// OnRollback runs after the value has been restored.
	OnRollback func(restored T)
}

// Engine owns one logical slot's observable value. Observers (typically a
// cache partition write) are notified synchronously on every swap, so the
// provisional value is visible before Execute first suspends.
type Engine[T any] struct {
	mu      sync.Mutex
	waiters []chan struct{}

	value    T
	pending  bool
	lastErr  error
	onChange func(T)
}

// NewEngine creates an engine holding initial. onChange, when non-nil, is
// invoked with every observable value swap: provisional, committed and
// rolled-back alike.
func NewEngine[T any](initial T, onChange func(T)) *Engine[T] {
	return &Engine[T]{value: initial, onChange: onChange}
}

// Value returns the current observable value.
func (e *Engine[T]) Value() T {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Pending reports whether an update is in flight.
func (e *Engine[T]) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// Err returns the error recorded by the most recent failed update, until
// ResetErr clears it.
func (e *Engine[T]) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// ResetErr dismisses a recorded error without retrying anything.
func (e *Engine[T]) ResetErr() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = nil
}

// Reset replaces the confirmed value outside any update, e.g. after an
// external refetch. No-op while an update is in flight.
func (e *Engine[T]) Reset(value T) {
	e.mu.Lock()
	if e.pending {
		e.mu.Unlock()
		return
	}
	e.value = value
	notify := e.onChange
	e.mu.Unlock()
	if notify != nil {
		notify(value)
	}
}

// Execute applies provisional immediately, runs op, and either commits the
// result or restores the pre-mutation snapshot. The returned value is the
// terminal observable value; op's error is propagated, never swallowed.
// Calls on a busy engine wait their turn in arrival order.
func (e *Engine[T]) Execute(ctx context.Context, provisional T, op Operation[T], opts Options[T]) (T, error) {
	e.acquire()
	defer e.release()

	e.mu.Lock()
	snapshot, cloneErr := Clone(e.value)
	if cloneErr != nil {
		// Rollback falls back to the shared value; acceptable for the
		// plain-data types this layer caches.
		snapshot = e.value
	}
	e.value = provisional
	e.pending = true
	notify := e.onChange
	e.mu.Unlock()

	if notify != nil {
		notify(provisional)
	}

	result, err := op(ctx)

	if err != nil {
		restored := snapshot
		if opts.Rollback != nil {
			restored = opts.Rollback(snapshot, err)
		}

		e.mu.Lock()
		e.value = restored
		e.pending = false
		e.lastErr = err
		e.mu.Unlock()

		if notify != nil {
			notify(restored)
		}
		if opts.OnError != nil {
			opts.OnError(err)
		}
		if opts.OnRollback != nil {
			opts.OnRollback(restored)
		}
		return restored, err
	}

	confirmed := provisional
	if result != nil {
		confirmed = *result
	}

	e.mu.Lock()
	e.value = confirmed
	e.pending = false
	e.lastErr = nil
	e.mu.Unlock()

	if notify != nil {
		notify(confirmed)
	}
	if opts.OnSuccess != nil {
		opts.OnSuccess(confirmed)
	}
	return confirmed, nil
}

// acquire takes a FIFO ticket; the caller runs once every earlier ticket
// has been released.
func (e *Engine[T]) acquire() {
	e.mu.Lock()
	ticket := make(chan struct{})
	e.waiters = append(e.waiters, ticket)
	if len(e.waiters) == 1 {
		close(ticket)
	}
	e.mu.Unlock()
	<-ticket
}

func (e *Engine[T]) release() {
	e.mu.Lock()
	e.waiters = e.waiters[1:]
	if len(e.waiters) > 0 {
		close(e.waiters[0])
	}
	e.mu.Unlock()
}
