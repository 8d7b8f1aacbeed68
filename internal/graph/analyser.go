package graph

import (
	"sync"

	dsptime "github.com/cwbudde/algo-dsp/stats/time"
)

// Analyser reports the RMS level of the rendered output while started.
type Analyser struct {
	interval int
	onLevel  func(float64)

	mu     sync.Mutex
	active bool
	count  int
	window []float64
}

// NewAnalyser reports a level every interval frames through onLevel.
func NewAnalyser(interval int, onLevel func(float64)) *Analyser {
	if interval < 1 {
		interval = 1
	}
	return &Analyser{interval: interval, onLevel: onLevel}
}

// Start begins level reporting.
func (a *Analyser) Start() {
	a.mu.Lock()
	a.active = true
	a.mu.Unlock()
}

// Stop halts level reporting and discards the partial window.
func (a *Analyser) Stop() {
	a.mu.Lock()
	a.active = false
	a.count = 0
	a.window = a.window[:0]
	a.mu.Unlock()
}

// Observe accumulates one rendered frame.
func (a *Analyser) Observe(samples []float64) {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	a.window = append(a.window, samples...)
	a.count++
	if a.count < a.interval {
		a.mu.Unlock()
		return
	}
	level := dsptime.RMS(a.window)
	a.count = 0
	a.window = a.window[:0]
	a.mu.Unlock()

	if a.onLevel != nil {
		a.onLevel(level)
	}
}
