// Package graph renders the fixed effect chain that every decoded buffer
// passes through before it reaches listeners.
package graph

import "sync/atomic"

// Context is the audio clock. Time only moves when the graph renders.
type Context struct {
	sampleRate int
	frames     atomic.Int64
}

// NewContext creates a clock at the given sample rate.
func NewContext(sampleRate int) *Context {
	return &Context{sampleRate: sampleRate}
}

// SampleRate returns the rendering rate in Hz.
func (c *Context) SampleRate() int {
	return c.sampleRate
}

// CurrentTime returns the seconds of audio rendered so far.
func (c *Context) CurrentTime() float64 {
	return c.timeAt(c.frames.Load())
}

// CurrentFrame returns the number of sample frames rendered so far.
func (c *Context) CurrentFrame() int64 {
	return c.frames.Load()
}

func (c *Context) timeAt(frame int64) float64 {
	return float64(frame) / float64(c.sampleRate)
}

func (c *Context) frameAt(t float64) int64 {
	return int64(t*float64(c.sampleRate) + 0.5)
}

func (c *Context) advance(frames int) {
	c.frames.Add(int64(frames))
}
