// Package lyria is a streaming client for the Lyria RealTime music model,
// spoken over the Generative Language BidiGenerateMusic websocket.
package lyria

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satindergrewal/promptdj/internal/music"
)

const (
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateMusic"
	DefaultModel    = "lyria-realtime-exp"

	// Time allowed to write a message to the server.
	writeWait = 10 * time.Second

	// Audio chunks are a few seconds of base64 PCM.
	maxMessageSize = 8 << 20
)

var ErrNoAPIKey = errors.New("lyria: no API key configured")

// Client dials live music sessions.
type Client struct {
	apiKey   string
	endpoint string
	dialer   *websocket.Dialer
	logger   *zap.Logger
}

// NewClient creates a client. An empty endpoint selects DefaultEndpoint.
func NewClient(apiKey, endpoint string, logger *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
			ReadBufferSize:   64 * 1024,
			WriteBufferSize:  16 * 1024,
		},
		logger: logger,
	}
}

func (c *Client) url() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("lyria: bad endpoint: %w", err)
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("key", c.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Connect opens a session, sends setup and the initial generation config,
// and starts delivering server messages to cb.
func (c *Client) Connect(ctx context.Context, model string, cfg music.GenerationConfig, cb music.Callbacks) (music.Session, error) {
	if c.apiKey == "" && c.endpoint == DefaultEndpoint {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	u, err := c.url()
	if err != nil {
		return nil, err
	}
	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("lyria: dial: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	s := &Session{conn: conn, cb: cb, logger: c.logger.With(zap.String("model", model))}
	if err := s.send(setupMessage{Setup: setup{Model: model}}); err != nil {
		conn.Close()
		return nil, err
	}
	if err := s.send(configMessage{Config: cfg}); err != nil {
		conn.Close()
		return nil, err
	}

	go s.readPump()
	s.logger.Info("Lyria session opened")
	return s, nil
}

type setup struct {
	Model string `json:"model"`
}

type setupMessage struct {
	Setup setup `json:"setup"`
}

type clientContent struct {
	WeightedPrompts []music.PromptWeight `json:"weightedPrompts"`
}

type contentMessage struct {
	ClientContent clientContent `json:"clientContent"`
}

type configMessage struct {
	Config music.GenerationConfig `json:"musicGenerationConfig"`
}

type controlMessage struct {
	PlaybackControl string `json:"playbackControl"`
}

// Session is one live connection. Writes are serialized; callbacks run on
// the read goroutine.
type Session struct {
	conn   *websocket.Conn
	cb     music.Callbacks
	logger *zap.Logger

	writeMu sync.Mutex
	closed  atomic.Bool
}

func (s *Session) send(v any) error {
	if s.closed.Load() {
		return music.ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("lyria: write: %w", err)
	}
	return nil
}

func (s *Session) SetWeightedPrompts(ctx context.Context, prompts []music.PromptWeight) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.send(contentMessage{ClientContent: clientContent{WeightedPrompts: prompts}})
}

func (s *Session) SetGenerationConfig(ctx context.Context, cfg music.GenerationConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.send(configMessage{Config: cfg})
}

func (s *Session) Play() error         { return s.send(controlMessage{PlaybackControl: "PLAY"}) }
func (s *Session) Pause() error        { return s.send(controlMessage{PlaybackControl: "PAUSE"}) }
func (s *Session) Stop() error         { return s.send(controlMessage{PlaybackControl: "STOP"}) }
func (s *Session) ResetContext() error { return s.send(controlMessage{PlaybackControl: "RESET_CONTEXT"}) }

// Close shuts the connection down. No callbacks run after Close returns
// except one already in progress.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	s.logger.Info("Lyria session closed")
	return s.conn.Close()
}

func (s *Session) readPump() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Swap(true) {
				return
			}
			s.conn.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("Lyria session closed by server", zap.Error(err))
				if s.cb.OnClose != nil {
					s.cb.OnClose()
				}
				return
			}
			s.logger.Warn("Lyria session error", zap.Error(err))
			if s.cb.OnError != nil {
				s.cb.OnError(err)
			}
			return
		}

		var msg music.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("Unreadable server message", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		if msg.Warning != "" {
			s.logger.Warn("Server warning", zap.String("warning", msg.Warning))
		}
		if s.cb.OnMessage != nil && !s.closed.Load() {
			s.cb.OnMessage(msg)
		}
	}
}
