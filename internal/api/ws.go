package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satindergrewal/promptdj/internal/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// The feed is one-way; clients only send control frames.
	maxMessageSize = 512

	// EventBuffer is how many events a slow UI socket may fall behind.
	EventBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// eventFeed upgrades to a websocket and streams every core event as JSON.
// The current playback state and prompt map are sent first.
func (s *Server) eventFeed(c *gin.Context) {
	if s.Bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not available"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Warn("Event feed upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	l := s.Bus.Subscribe()
	defer s.Bus.Unsubscribe(l)
	s.Logger.Debug("Event feed connected", zap.Int("subscribers", s.Bus.ListenerCount()))

	go s.drainFeed(conn, func() { s.Bus.Unsubscribe(l) })

	initial := []events.Event{
		events.PlaybackStateChanged(string(s.Player.Snapshot().PlaybackState)),
		events.PromptsChanged(s.Prompts.Snapshot()),
	}
	for _, e := range initial {
		if err := writeEvent(conn, e); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-l.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case e := <-l.C:
			if err := writeEvent(conn, e); err != nil {
				s.Logger.Debug("Event feed write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainFeed reads until the peer goes away, handling pongs and close frames.
func (s *Server) drainFeed(conn *websocket.Conn, done func()) {
	defer done()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.Logger.Debug("Event feed closed", zap.Error(err))
			}
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, e events.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(e)
}
