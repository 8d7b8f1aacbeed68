package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Buffer is a block of decoded audio, one slice of normalised samples per channel.
type Buffer struct {
	SampleRate int
	Data       [][]float64
}

// NewBuffer allocates a silent buffer.
func NewBuffer(channels, frames, sampleRate int) *Buffer {
	data := make([][]float64, channels)
	for ch := range data {
		data[ch] = make([]float64, frames)
	}
	return &Buffer{SampleRate: sampleRate, Data: data}
}

// NumberOfChannels returns the channel count.
func (b *Buffer) NumberOfChannels() int {
	return len(b.Data)
}

// Length returns the number of sample frames.
func (b *Buffer) Length() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playback length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Length()) / float64(b.SampleRate)
}
