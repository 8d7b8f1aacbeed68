package graph

import (
	"errors"
	"math"
	"sync"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"go.uber.org/zap"
)

// EqFrequencies are the peaking-band centre frequencies in Hz.
var EqFrequencies = []float64{31, 62, 125, 250, 500, 1000, 2000, 4000, 8000, 16000}

const (
	eqQ           = 1.5
	filterQ       = 1 / math.Sqrt2
	smoothingTau  = 0.01 // seconds
	controlBlock  = 64   // samples between coefficient updates
	defaultMaster = 0.8

	MinFrequency = 20.0
	MaxFrequency = 22050.0
	MinEqGain    = -40.0
	MaxEqGain    = 40.0
)

// ErrInvalidBand is returned by SetEq for a band index outside the EQ.
var ErrInvalidBand = errors.New("invalid eq band")

type filterKind int

const (
	peaking filterKind = iota
	lowpass
	highpass
)

// filterNode is one biquad stage with a section per output channel.
type filterNode struct {
	kind     filterKind
	freq     *Param
	gain     *Param // peaking only
	q        float64
	sections [2]*biquad.Section

	lastFreq, lastGain float64
}

func newFilterNode(kind filterKind, freq, gain, q float64) *filterNode {
	n := &filterNode{
		kind:     kind,
		freq:     NewParam(freq),
		gain:     NewParam(gain),
		q:        q,
		lastFreq: math.NaN(),
	}
	for ch := range n.sections {
		n.sections[ch] = biquad.NewSection(biquad.Coefficients{B0: 1})
	}
	return n
}

// update redesigns the coefficients when the smoothed params have moved.
// Section state is kept so the change does not reset the filter memory.
func (n *filterNode) update(t float64, sampleRate float64) {
	freq := n.freq.ValueAt(t)
	gain := n.gain.ValueAt(t)
	if freq == n.lastFreq && gain == n.lastGain {
		return
	}
	n.lastFreq, n.lastGain = freq, gain

	var c biquad.Coefficients
	switch n.kind {
	case peaking:
		c = design.Peak(freq, gain, n.q, sampleRate)
	case lowpass:
		c = design.Lowpass(freq, n.q, sampleRate)
	case highpass:
		c = design.Highpass(freq, n.q, sampleRate)
	}
	if c == (biquad.Coefficients{}) {
		c = biquad.Coefficients{B0: 1}
	}
	for _, s := range n.sections {
		s.Coefficients = c
	}
}

func (n *filterNode) process(l, r []float64) {
	n.sections[0].ProcessBlock(l)
	n.sections[1].ProcessBlock(r)
}

func (n *filterNode) advance(t float64) {
	n.freq.advance(t)
	n.gain.advance(t)
}

// Graph owns the persistent chain:
// inputs -> eq[0..9] -> lowpass -> highpass -> panner -> master -> output.
// Nodes are built once; only their parameters change.
type Graph struct {
	ctx    *Context
	logger *zap.Logger

	eq       []*filterNode
	lowpass  *filterNode
	highpass *filterNode
	pan      *Param
	master   *Param

	mu            sync.Mutex
	inputs        []*Input
	outputEnabled bool

	scratchL, scratchR []float64
}

// New builds the graph on the given clock.
func New(ctx *Context, logger *zap.Logger) *Graph {
	g := &Graph{
		ctx:      ctx,
		logger:   logger,
		lowpass:  newFilterNode(lowpass, 20000, 0, filterQ),
		highpass: newFilterNode(highpass, MinFrequency, 0, filterQ),
		pan:      NewParam(0),
		master:   NewParam(defaultMaster),
		scratchL: make([]float64, controlBlock),
		scratchR: make([]float64, controlBlock),
	}
	for _, f := range EqFrequencies {
		g.eq = append(g.eq, newFilterNode(peaking, f, 0, eqQ))
	}
	return g
}

// Context returns the graph clock.
func (g *Graph) Context() *Context {
	return g.ctx
}

// Bands returns the number of EQ bands.
func (g *Graph) Bands() int {
	return len(g.eq)
}

// SetMasterVolume smooths the master gain toward level, clamped to [0, 1].
func (g *Graph) SetMasterVolume(level float64) {
	g.master.SetTargetAtTime(core.Clamp(level, 0, 1), g.ctx.CurrentTime(), smoothingTau)
}

// SetEq smooths one band's gain toward gainDB, clamped to [-40, 40] dB.
func (g *Graph) SetEq(band int, gainDB float64) error {
	if band < 0 || band >= len(g.eq) {
		return ErrInvalidBand
	}
	g.eq[band].gain.SetTargetAtTime(core.Clamp(gainDB, MinEqGain, MaxEqGain), g.ctx.CurrentTime(), smoothingTau)
	return nil
}

// SetBalance smooths the stereo pan toward pan, clamped to [-1, 1].
func (g *Graph) SetBalance(pan float64) {
	g.pan.SetTargetAtTime(core.Clamp(pan, -1, 1), g.ctx.CurrentTime(), smoothingTau)
}

// SetLowPass smooths the lowpass cutoff, clamped to the audible range.
func (g *Graph) SetLowPass(freq float64) {
	g.lowpass.freq.SetTargetAtTime(core.Clamp(freq, MinFrequency, MaxFrequency), g.ctx.CurrentTime(), smoothingTau)
}

// SetHighPass smooths the highpass cutoff, clamped to the audible range.
func (g *Graph) SetHighPass(freq float64) {
	g.highpass.freq.SetTargetAtTime(core.Clamp(freq, MinFrequency, MaxFrequency), g.ctx.CurrentTime(), smoothingTau)
}

// SetOutputEnabled connects or disconnects master from the destination.
func (g *Graph) SetOutputEnabled(enabled bool) {
	g.mu.Lock()
	g.outputEnabled = enabled
	g.mu.Unlock()
}

// OutputEnabled reports whether master is connected to the destination.
func (g *Graph) OutputEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outputEnabled
}

// MasterVolume returns the current master gain.
func (g *Graph) MasterVolume() float64 { return g.master.ValueAt(g.ctx.CurrentTime()) }

// Balance returns the current pan position.
func (g *Graph) Balance() float64 { return g.pan.ValueAt(g.ctx.CurrentTime()) }

// Eq returns the current gain of a band in dB.
func (g *Graph) Eq(band int) (float64, error) {
	if band < 0 || band >= len(g.eq) {
		return 0, ErrInvalidBand
	}
	return g.eq[band].gain.ValueAt(g.ctx.CurrentTime()), nil
}

// LowPass returns the current lowpass cutoff in Hz.
func (g *Graph) LowPass() float64 { return g.lowpass.freq.ValueAt(g.ctx.CurrentTime()) }

// HighPass returns the current highpass cutoff in Hz.
func (g *Graph) HighPass() float64 { return g.highpass.freq.ValueAt(g.ctx.CurrentTime()) }

// Render produces frames of interleaved stereo output and advances the clock.
func (g *Graph) Render(frames int) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]float64, frames*2)
	start := g.ctx.CurrentFrame()
	sr := float64(g.ctx.SampleRate())

	for off := 0; off < frames; off += controlBlock {
		n := min(controlBlock, frames-off)
		blockStart := start + int64(off)
		t0 := g.ctx.timeAt(blockStart)
		t1 := g.ctx.timeAt(blockStart + int64(n))

		l, r := g.scratchL[:n], g.scratchR[:n]
		clear(l)
		clear(r)
		for _, in := range g.inputs {
			in.mix(l, r, blockStart)
		}

		for _, f := range g.eq {
			f.update(t0, sr)
			f.process(l, r)
		}
		g.lowpass.update(t0, sr)
		g.lowpass.process(l, r)
		g.highpass.update(t0, sr)
		g.highpass.process(l, r)

		g.applyPan(l, r, g.pan.ValueAt(t0))

		if !g.outputEnabled {
			continue
		}
		m0, m1 := g.master.ValueAt(t0), g.master.ValueAt(t1)
		for i := 0; i < n; i++ {
			gain := m0 + (m1-m0)*float64(i)/float64(n)
			out[(off+i)*2] = l[i] * gain
			out[(off+i)*2+1] = r[i] * gain
		}
	}

	g.ctx.advance(frames)
	now := g.ctx.CurrentTime()
	g.advanceParams(now)
	g.pruneInputs(now)
	return out
}

// applyPan is the equal-power stereo panner used by Web Audio's StereoPannerNode.
func (g *Graph) applyPan(l, r []float64, pan float64) {
	if pan == 0 {
		return
	}
	if pan < 0 {
		x := (pan + 1) * math.Pi / 2
		gl, gr := math.Cos(x), math.Sin(x)
		for i := range l {
			l[i] += r[i] * gl
			r[i] *= gr
		}
		return
	}
	x := pan * math.Pi / 2
	gl, gr := math.Cos(x), math.Sin(x)
	for i := range l {
		r[i] += l[i] * gr
		l[i] *= gl
	}
}

func (g *Graph) advanceParams(now float64) {
	for _, f := range g.eq {
		f.advance(now)
	}
	g.lowpass.advance(now)
	g.highpass.advance(now)
	g.pan.advance(now)
	g.master.advance(now)
	for _, in := range g.inputs {
		in.gain.advance(now)
	}
}

func (g *Graph) pruneInputs(now float64) {
	kept := g.inputs[:0]
	for _, in := range g.inputs {
		if in.released && now >= in.disconnectAt {
			in.disconnect()
			g.logger.Debug("pre-master input disconnected", zap.Float64("at", now))
			continue
		}
		kept = append(kept, in)
	}
	clear(g.inputs[len(kept):])
	g.inputs = kept
}

// Inputs returns the number of connected pre-master inputs.
func (g *Graph) Inputs() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inputs)
}
