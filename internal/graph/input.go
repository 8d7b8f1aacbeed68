package graph

import (
	"errors"

	"github.com/satindergrewal/promptdj/internal/audio"
)

const (
	// FadeTime is how long a pre-master input takes to fade in or out.
	FadeTime = 0.1
	// DisconnectDelay is how long after release an input leaves the graph.
	DisconnectDelay = 0.2
)

// ErrInputReleased is returned when scheduling onto a released input.
var ErrInputReleased = errors.New("input released")

type source struct {
	buf        *audio.Buffer
	startFrame int64
}

func (s *source) endFrame() int64 {
	return s.startFrame + int64(s.buf.Length())
}

// Input is the per-session pre-master gain stage feeding the first EQ band.
// It fades in on creation and fades out on release so node removal never clicks.
type Input struct {
	graph   *Graph
	gain    *Param
	sources []*source

	released     bool
	disconnected bool
	disconnectAt float64
}

// NewInput connects a fresh pre-master input that ramps from silence to unity.
func (g *Graph) NewInput() *Input {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.ctx.CurrentTime()
	in := &Input{graph: g, gain: NewParam(0)}
	in.gain.SetValueAtTime(0, now)
	in.gain.LinearRampToValueAtTime(1, now+FadeTime)
	g.inputs = append(g.inputs, in)
	return in
}

// Start schedules buf to begin playing at the absolute clock time at.
func (in *Input) Start(buf *audio.Buffer, at float64) error {
	g := in.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	if in.released {
		return ErrInputReleased
	}
	in.sources = append(in.sources, &source{buf: buf, startFrame: g.ctx.frameAt(at)})
	return nil
}

// Release fades the input to silence and schedules its disconnection.
// Calling it more than once has no further effect.
func (in *Input) Release() {
	g := in.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	if in.released {
		return
	}
	now := g.ctx.CurrentTime()
	current := in.gain.ValueAt(now)
	in.gain.CancelScheduledValues(now)
	in.gain.SetValueAtTime(current, now)
	in.gain.LinearRampToValueAtTime(0, now+FadeTime)
	in.released = true
	in.disconnectAt = now + DisconnectDelay
}

// Released reports whether Release has been called.
func (in *Input) Released() bool {
	in.graph.mu.Lock()
	defer in.graph.mu.Unlock()
	return in.released
}

// Disconnected reports whether the input has left the graph.
func (in *Input) Disconnected() bool {
	in.graph.mu.Lock()
	defer in.graph.mu.Unlock()
	return in.disconnected
}

// Pending returns the number of sources not yet fully played.
func (in *Input) Pending() int {
	in.graph.mu.Lock()
	defer in.graph.mu.Unlock()
	return len(in.sources)
}

func (in *Input) disconnect() {
	in.disconnected = true
	in.sources = nil
}

// mix adds this input's sources into l and r for the block starting at
// blockStart. Must be called with graph.mu held.
func (in *Input) mix(l, r []float64, blockStart int64) {
	n := len(l)
	blockEnd := blockStart + int64(n)
	ctx := in.graph.ctx
	g0 := in.gain.ValueAt(ctx.timeAt(blockStart))
	g1 := in.gain.ValueAt(ctx.timeAt(blockEnd))

	kept := in.sources[:0]
	for _, s := range in.sources {
		from := max(s.startFrame, blockStart)
		to := min(s.endFrame(), blockEnd)
		if from < to {
			left := s.buf.Data[0]
			right := left
			if s.buf.NumberOfChannels() > 1 {
				right = s.buf.Data[1]
			}
			for f := from; f < to; f++ {
				i := int(f - blockStart)
				j := int(f - s.startFrame)
				gain := g0 + (g1-g0)*float64(i)/float64(n)
				l[i] += left[j] * gain
				r[i] += right[j] * gain
			}
		}
		if s.endFrame() > blockEnd {
			kept = append(kept, s)
		}
	}
	clear(in.sources[len(kept):])
	in.sources = kept
}
