// Package api is the HTTP control surface: playback, prompts, mixer,
// presets, the mix assistant, the UI event feed and the listener streams.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satindergrewal/promptdj/internal/assistant"
	"github.com/satindergrewal/promptdj/internal/events"
	"github.com/satindergrewal/promptdj/internal/music"
	"github.com/satindergrewal/promptdj/internal/prompts"
	"github.com/satindergrewal/promptdj/internal/session"
)

// Player is the playback side of the session controller.
type Player interface {
	PlayPause(ctx context.Context) error
	Restart(ctx context.Context) error
	Stop()
	Snapshot() session.Snapshot
	SetGenerationConfig(patch music.ConfigPatch) (music.GenerationConfig, error)
}

// Mixer is the output stage of the audio graph.
type Mixer interface {
	SetMasterVolume(level float64)
	SetEq(band int, gainDB float64) error
	SetBalance(pan float64)
	SetLowPass(freq float64)
	SetHighPass(freq float64)
}

// MixAssistant applies a natural-language request to the prompt set.
type MixAssistant interface {
	Apply(ctx context.Context, request string) ([]assistant.MixItem, error)
	Provider() string
}

// Deps are the components the server routes to. Assistant, Stream and
// Offer may be nil, in which case their routes answer 503.
type Deps struct {
	Player    Player
	Mixer     Mixer
	Prompts   *prompts.Set
	Presets   *prompts.PresetStore
	Assistant MixAssistant
	Bus       *events.Bus
	Stream    http.Handler
	Offer     http.Handler
	Logger    *zap.Logger
}

// Server holds the gin engine and its dependencies.
type Server struct {
	Deps
	router *gin.Engine
}

// New builds the router.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	s := &Server{Deps: d}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.Logger))
	router.Use(allowCORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", s.eventFeed)

	router.GET("/stream", s.optional(s.Stream))
	router.POST("/offer", s.optional(s.Offer))

	api := router.Group("/api")
	{
		api.GET("/state", s.getState)
		api.POST("/play-pause", s.playPause)
		api.POST("/restart", s.restart)
		api.POST("/stop", s.stop)

		api.GET("/catalog", s.getCatalog)
		api.GET("/prompts", s.getPrompts)
		api.PUT("/prompts", s.putPrompts)
		api.PATCH("/prompts/:id", s.patchPrompt)
		api.POST("/prompts/custom", s.addCustomPrompt)

		api.POST("/master-volume", s.setMasterVolume)
		api.POST("/eq", s.setEq)
		api.POST("/balance", s.setBalance)
		api.POST("/filter", s.setFilter)
		api.POST("/generation-settings", s.setGenerationSettings)

		api.POST("/assistant", s.askAssistant)

		api.GET("/presets", s.listPresets)
		api.POST("/presets", s.savePreset)
		api.GET("/presets/:name", s.getPreset)
		api.DELETE("/presets/:name", s.deletePreset)
		api.POST("/presets/:name/load", s.loadPreset)
	}
	return router
}

func (s *Server) optional(h http.Handler) gin.HandlerFunc {
	if h == nil {
		return func(c *gin.Context) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not available"})
		}
	}
	return gin.WrapH(h)
}

// requestLogger logs each request except the long-lived streams.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		switch c.FullPath() {
		case "/stream", "/ws", "/metrics":
			return
		}
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// allowCORS lets a UI served from another origin drive the API.
func allowCORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type"},
		MaxAge:          12 * time.Hour,
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
