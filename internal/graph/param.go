package graph

import (
	"math"
	"sort"
	"sync"
)

type eventKind int

const (
	setValue eventKind = iota
	linearRamp
	setTarget
)

type automation struct {
	kind  eventKind
	time  float64
	value float64
	tau   float64
}

// anchor is the settled state all pending automation starts from.
type anchor struct {
	value  float64
	time   float64
	target *automation // active exponential approach, if any
}

func (a anchor) at(t float64) float64 {
	if a.target == nil || t <= a.time {
		return a.value
	}
	return a.target.value + (a.value-a.target.value)*math.Exp(-(t-a.time)/a.target.tau)
}

// Param is an automatable value modelled on the Web Audio AudioParam.
type Param struct {
	mu      sync.Mutex
	anchor  anchor
	pending []automation
}

// NewParam creates a parameter resting at value.
func NewParam(value float64) *Param {
	return &Param{anchor: anchor{value: value}}
}

// SetValueAtTime jumps to value at t.
func (p *Param) SetValueAtTime(value, t float64) {
	p.insert(automation{kind: setValue, time: t, value: value})
}

// LinearRampToValueAtTime ramps from the previous event to value, arriving at t.
func (p *Param) LinearRampToValueAtTime(value, t float64) {
	p.insert(automation{kind: linearRamp, time: t, value: value})
}

// SetTargetAtTime approaches target exponentially from start with time constant tau.
func (p *Param) SetTargetAtTime(target, start, tau float64) {
	if tau <= 0 {
		p.SetValueAtTime(target, start)
		return
	}
	p.insert(automation{kind: setTarget, time: start, value: target, tau: tau})
}

// CancelScheduledValues drops every pending event at or after t.
func (p *Param) CancelScheduledValues(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.pending[:0]
	for _, e := range p.pending {
		if e.time < t {
			kept = append(kept, e)
		}
	}
	p.pending = kept
}

// ValueAt evaluates the automation curve at t.
func (p *Param) ValueAt(t float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, rest := settle(p.anchor, p.pending, t)
	if len(rest) > 0 && rest[0].kind == linearRamp && rest[0].time > a.time {
		r := rest[0]
		start := a.at(a.time)
		frac := (t - a.time) / (r.time - a.time)
		return start + (r.value-start)*frac
	}
	return a.at(t)
}

// advance folds all events at or before t into the anchor.
func (p *Param) advance(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.anchor, p.pending = settle(p.anchor, p.pending, t)
	p.pending = append([]automation(nil), p.pending...)
}

func (p *Param) insert(e automation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.time < p.anchor.time {
		e.time = p.anchor.time
	}
	i := sort.Search(len(p.pending), func(i int) bool { return p.pending[i].time > e.time })
	p.pending = append(p.pending, automation{})
	copy(p.pending[i+1:], p.pending[i:])
	p.pending[i] = e
}

// settle applies every event with time <= t and returns the resulting anchor
// and the events still ahead of t.
func settle(a anchor, events []automation, t float64) (anchor, []automation) {
	i := 0
	for ; i < len(events) && events[i].time <= t; i++ {
		e := events[i]
		switch e.kind {
		case setValue, linearRamp:
			a = anchor{value: e.value, time: e.time}
		case setTarget:
			target := e
			a = anchor{value: a.at(e.time), time: e.time, target: &target}
		}
	}
	return a, events[i:]
}
