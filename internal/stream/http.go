package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"

	"go.uber.org/zap"

	"github.com/satindergrewal/promptdj/internal/audio"
	"github.com/satindergrewal/promptdj/internal/metrics"
)

// FrameBuffer is the per-listener PCM backlog, ~3 seconds at 20ms/frame.
const FrameBuffer = 150

// HTTPHandler serves a chunked MP3 audio stream via HTTP.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real-time.
type HTTPHandler struct {
	broadcaster *Broadcaster[[]int16]
	bitrate     int // kbit/s
	logger      *zap.Logger
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(b *Broadcaster[[]int16], bitrateKbps int, logger *zap.Logger) *HTTPHandler {
	if bitrateKbps <= 0 {
		bitrateKbps = 192
	}
	return &HTTPHandler{broadcaster: b, bitrate: bitrateKbps, logger: logger}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// FFmpeg: PCM stdin -> MP3 stdout
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "s16le",
		"-ar", fmt.Sprint(audio.SampleRate),
		"-ac", fmt.Sprint(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", h.bitrate),
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.logger.Error("http stream: stdin pipe", zap.Error(err))
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.logger.Error("http stream: stdout pipe", zap.Error(err))
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}

	if err := cmd.Start(); err != nil {
		h.logger.Error("http stream: ffmpeg start", zap.Error(err))
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("ICY-Name", "PromptDJ")

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	gauge := metrics.Listeners.WithLabelValues("http")
	gauge.Inc()
	defer gauge.Dec()

	h.logger.Info("http listener connected", zap.Int("listeners", h.broadcaster.ListenerCount()))
	defer h.logger.Info("http listener disconnected")

	// Feed PCM frames to FFmpeg
	go func() {
		defer stdin.Close()
		err := listener.Drain(ctx, func(frame []int16) error {
			_, err := stdin.Write(audio.SamplesToBytes(frame))
			return err
		})
		if err != nil && ctx.Err() == nil {
			metrics.EncodeErrors.WithLabelValues("http").Inc()
			h.logger.Debug("http stream: ffmpeg stdin closed", zap.Error(err))
		}
	}()

	// Read MP3 from FFmpeg and write to HTTP response
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				h.logger.Warn("http stream: ffmpeg read", zap.Error(err))
			}
			break
		}
	}

	cancel()
	_ = cmd.Wait()
}
