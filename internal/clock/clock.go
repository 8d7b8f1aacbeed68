// Package clock abstracts wall-clock timers so time-driven code can be
// tested without sleeping.
package clock

import "time"

// Timer is the subset of *time.Timer callers need.
type Timer interface {
	Stop() bool
}

// Clock provides the current time and one-shot callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
