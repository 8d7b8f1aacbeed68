package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/promptdj/internal/audio"
	"github.com/satindergrewal/promptdj/internal/metrics"
)

const (
	opusBitrate = 128000
	// opusMaxPacket is the largest Opus packet libopus recommends allocating.
	opusMaxPacket = 4000
)

// WebRTCHandler answers SDP offers with an Opus track fed from the mix.
// CORS is left to the router.
type WebRTCHandler struct {
	broadcaster *Broadcaster[[]int16]
	logger      *zap.Logger

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]*peer
}

// peer is one negotiated connection and the goroutine feeding its track.
type peer struct {
	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticSample
	cancel context.CancelFunc
}

// NewWebRTCHandler creates a WebRTC stream handler.
func NewWebRTCHandler(b *Broadcaster[[]int16], logger *zap.Logger) *WebRTCHandler {
	return &WebRTCHandler{
		broadcaster: b,
		logger:      logger,
		peers:       make(map[*webrtc.PeerConnection]*peer),
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	p, status, err := h.negotiate(offer)
	if err != nil {
		h.logger.Warn("webrtc: negotiation failed", zap.Error(err))
		http.Error(w, err.Error(), status)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	h.mu.Lock()
	h.peers[p.pc] = p
	n := len(h.peers)
	h.mu.Unlock()
	metrics.Listeners.WithLabelValues("webrtc").Inc()
	h.logger.Info("webrtc peer connected", zap.Int("peers", n))

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			h.drop(p)
		}
	})
	go h.feed(ctx, p)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(p.pc.LocalDescription()); err != nil {
		h.logger.Warn("webrtc: write answer", zap.Error(err))
	}
}

// negotiate builds a peer with one Opus track and waits for ICE gathering so
// the answer carries every candidate. The status is meaningful only with an
// error.
func (h *WebRTCHandler) negotiate(offer webrtc.SessionDescription) (*peer, int, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"promptdj",
	)
	if err != nil {
		pc.Close()
		return nil, http.StatusInternalServerError, err
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return nil, http.StatusInternalServerError, err
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return nil, http.StatusBadRequest, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, http.StatusInternalServerError, err
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, http.StatusInternalServerError, err
	}
	<-gathered
	return &peer{pc: pc, track: track}, 0, nil
}

// drop unregisters p once and closes its connection.
func (h *WebRTCHandler) drop(p *peer) {
	h.mu.Lock()
	_, ok := h.peers[p.pc]
	delete(h.peers, p.pc)
	n := len(h.peers)
	h.mu.Unlock()
	if !ok {
		return
	}
	p.cancel()
	metrics.Listeners.WithLabelValues("webrtc").Dec()
	h.logger.Info("webrtc peer disconnected", zap.Int("peers", n))
	p.pc.Close()
}

// feed encodes mix frames to Opus and writes them to p's track until the
// peer goes away.
func (h *WebRTCHandler) feed(ctx context.Context, p *peer) {
	enc, err := newOpusFrames()
	if err != nil {
		h.logger.Error("webrtc: opus encoder", zap.Error(err))
		h.drop(p)
		return
	}

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	err = listener.Drain(ctx, func(frame []int16) error {
		packet, err := enc.encode(frame)
		if err != nil {
			metrics.EncodeErrors.WithLabelValues("webrtc").Inc()
			return nil
		}
		return p.track.WriteSample(media.Sample{Data: packet, Duration: audio.FrameDuration})
	})
	if err != nil {
		h.logger.Debug("webrtc: track write", zap.Error(err))
		h.drop(p)
	}
}

// opusFrames encodes one 20ms PCM frame at a time into a reused buffer.
type opusFrames struct {
	enc *opus.Encoder
	buf []byte
}

func newOpusFrames() (*opusFrames, error) {
	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		return nil, err
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		return nil, err
	}
	return &opusFrames{enc: enc, buf: make([]byte, opusMaxPacket)}, nil
}

// encode returns a packet valid until the next call.
func (o *opusFrames) encode(frame []int16) ([]byte, error) {
	n, err := o.enc.Encode(frame, o.buf)
	if err != nil {
		return nil, err
	}
	return o.buf[:n], nil
}
