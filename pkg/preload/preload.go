// Package preload runs a warm-up load once at startup and lets the first
// consumer wait for its result.
package preload

import (
	"context"
	"sync"
)

// LoadFunc produces the warmed value.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Warmer holds one warmed value.
//
// Start launches the load in the background and is a no-op while a load is
// running or after one succeeded. Wait blocks until the load finishes and
// starts it if nobody did. A failed load is not cached: the next Start or
// Wait tries again.
type Warmer[T any] struct {
	load LoadFunc[T]

	mu    sync.Mutex
	call  *call[T]
	value T
	ok    bool
}

type call[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// New creates a Warmer for load.
func New[T any](load LoadFunc[T]) *Warmer[T] {
	return &Warmer[T]{load: load}
}

// Start begins warming in the background. ctx bounds the load itself.
func (w *Warmer[T]) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.startLocked(ctx)
}

func (w *Warmer[T]) startLocked(ctx context.Context) *call[T] {
	if w.ok || w.call != nil {
		return w.call
	}

	c := &call[T]{done: make(chan struct{})}
	w.call = c
	go func() {
		c.value, c.err = w.load(ctx)

		w.mu.Lock()
		if w.call == c {
			if c.err == nil {
				w.value, w.ok = c.value, true
			}
			w.call = nil
		}
		w.mu.Unlock()
		close(c.done)
	}()
	return c
}

// Wait returns the warmed value, waiting for an in-flight load or starting
// one. Cancelling ctx stops the wait, not the load.
func (w *Warmer[T]) Wait(ctx context.Context) (T, error) {
	w.mu.Lock()
	if w.ok {
		v := w.value
		w.mu.Unlock()
		return v, nil
	}
	c := w.startLocked(context.WithoutCancel(ctx))
	w.mu.Unlock()

	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Ready reports whether a value is warmed.
func (w *Warmer[T]) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ok
}

// Reset drops the warmed value so the next Start or Wait loads again.
// A load in flight finishes for its waiters but is not cached.
func (w *Warmer[T]) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	var zero T
	w.value, w.ok = zero, false
	w.call = nil
}
