// Package scheduler places decoded buffers back to back on the output
// timeline behind a lead buffer that absorbs network jitter.
package scheduler

import "sync"

// DefaultLead is the jitter buffer inserted before audible playback, in seconds.
const DefaultLead = 2.0

// Timed is anything with a playback length in seconds.
type Timed interface {
	Duration() float64
}

// StartFunc places a buffer on the timeline at an absolute clock time.
type StartFunc func(at float64) error

// Decision reports what Schedule did with a buffer.
type Decision struct {
	// Started is set when this buffer opened a new lead-buffer sequence.
	Started bool
	// Underrun is set when the buffer arrived too late and was dropped.
	Underrun bool
	// At is the start time the buffer was scheduled for.
	At float64
	// PlayingIn is the delay in seconds until audible playback, when Started.
	PlayingIn float64
}

// Scheduled reports whether the buffer made it onto the timeline.
func (d Decision) Scheduled() bool {
	return !d.Underrun
}

// Scheduler is the jitter buffer. A zero nextStartTime means nothing has
// been scheduled since the last reset.
type Scheduler struct {
	lead float64

	mu            sync.Mutex
	nextStartTime float64
}

// New creates a scheduler with the given lead time in seconds.
func New(lead float64) *Scheduler {
	if lead <= 0 {
		lead = DefaultLead
	}
	return &Scheduler{lead: lead}
}

// Lead returns the lead-buffer length in seconds.
func (s *Scheduler) Lead() float64 {
	return s.lead
}

// NextStartTime returns where the next buffer will go, or 0 when unscheduled.
func (s *Scheduler) NextStartTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStartTime
}

// Reset returns to the unscheduled state. The next buffer restarts the lead.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.nextStartTime = 0
	s.mu.Unlock()
}

// Schedule places buf at the next start time given the current clock time.
//
// The first buffer after a reset starts lead seconds from now. A buffer
// whose slot is already in the past is an underrun: the scheduler resets and
// the buffer is dropped rather than played late.
func (s *Scheduler) Schedule(now float64, buf Timed, start StartFunc) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var d Decision
	if s.nextStartTime == 0 {
		s.nextStartTime = now + s.lead
		d.Started = true
		d.PlayingIn = s.lead
	}
	if s.nextStartTime < now {
		s.nextStartTime = 0
		return Decision{Underrun: true}, nil
	}

	d.At = s.nextStartTime
	if err := start(d.At); err != nil {
		return d, err
	}
	s.nextStartTime += buf.Duration()
	return d, nil
}
