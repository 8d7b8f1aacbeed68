// Package throttle collapses bursts of updates into at most one call per window.
package throttle

import (
	"sync"
	"time"

	"github.com/satindergrewal/promptdj/internal/clock"
)

// Throttler runs fn at most once per window, always with the latest value.
// A call in an idle window runs immediately; calls inside a busy window
// replace each other and the survivor runs when the window closes.
type Throttler[T any] struct {
	window time.Duration
	fn     func(T)
	clock  clock.Clock

	mu         sync.Mutex
	last       time.Time
	ran        bool
	pending    T
	hasPending bool
	timer      clock.Timer
	// gen identifies the armed timer; a callback from a replaced timer is ignored.
	gen uint64
}

// Option configures a Throttler.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New creates a throttler around fn.
func New[T any](window time.Duration, fn func(T), opts ...Option) *Throttler[T] {
	o := options{clock: clock.Real{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Throttler[T]{window: window, fn: fn, clock: o.clock}
}

// Window returns the throttle window.
func (t *Throttler[T]) Window() time.Duration {
	return t.window
}

// Schedule submits v. It returns true if fn ran synchronously.
func (t *Throttler[T]) Schedule(v T) bool {
	t.mu.Lock()
	now := t.clock.Now()
	if t.timer == nil && (!t.ran || now.Sub(t.last) >= t.window) {
		t.last = now
		t.ran = true
		t.mu.Unlock()
		t.fn(v)
		return true
	}

	t.pending = v
	t.hasPending = true
	if t.timer == nil {
		wait := t.window - now.Sub(t.last)
		t.gen++
		gen := t.gen
		t.timer = t.clock.AfterFunc(wait, func() { t.fireTimer(gen) })
	}
	t.mu.Unlock()
	return false
}

// Flush runs the pending value now, if there is one.
func (t *Throttler[T]) Flush() {
	t.mu.Lock()
	t.disarmLocked()
	t.runPendingLocked()
}

// Stop discards any pending value.
func (t *Throttler[T]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()
	var zero T
	t.pending = zero
	t.hasPending = false
}

// Pending reports whether a value is waiting for the window to close.
func (t *Throttler[T]) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasPending
}

func (t *Throttler[T]) disarmLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

func (t *Throttler[T]) fireTimer(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.runPendingLocked()
}

// runPendingLocked is called with mu held and releases it.
func (t *Throttler[T]) runPendingLocked() {
	if !t.hasPending {
		t.mu.Unlock()
		return
	}
	v := t.pending
	var zero T
	t.pending = zero
	t.hasPending = false
	t.last = t.clock.Now()
	t.ran = true
	t.mu.Unlock()
	t.fn(v)
}
