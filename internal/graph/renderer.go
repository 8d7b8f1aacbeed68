package graph

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/promptdj/internal/audio"
	"github.com/satindergrewal/promptdj/internal/metrics"
)

// Renderer pulls the graph at real-time rate and publishes 20ms PCM frames.
type Renderer struct {
	graph    *Graph
	analyser *Analyser
	frameCh  chan []int16
	logger   *zap.Logger
}

// NewRenderer creates a renderer. analyser may be nil.
func NewRenderer(g *Graph, analyser *Analyser, logger *zap.Logger) *Renderer {
	return &Renderer{
		graph:    g,
		analyser: analyser,
		frameCh:  make(chan []int16, 100),
		logger:   logger,
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (r *Renderer) Frames() <-chan []int16 {
	return r.frameCh
}

// RenderFrame renders one frame and feeds the analyser.
func (r *Renderer) RenderFrame() []int16 {
	out := r.graph.Render(audio.FrameSize)
	if r.analyser != nil {
		r.analyser.Observe(out)
	}
	return audio.FloatToInt16(out)
}

// Run renders frames on a 20ms ticker. Blocks until ctx is cancelled.
// The clock never waits on consumers: a full frame channel drops the frame.
func (r *Renderer) Run(ctx context.Context) {
	defer close(r.frameCh)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	r.logger.Info("renderer started",
		zap.Int("sample_rate", r.graph.ctx.SampleRate()),
		zap.Duration("frame", audio.FrameDuration))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("renderer stopped")
			return
		case <-ticker.C:
		}

		frame := r.RenderFrame()
		select {
		case r.frameCh <- frame:
		default:
			metrics.OutputFramesDropped.Inc()
		}
	}
}
