package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/satindergrewal/promptdj/internal/assistant"
	"github.com/satindergrewal/promptdj/internal/music"
	"github.com/satindergrewal/promptdj/internal/prompts"
	"github.com/satindergrewal/promptdj/internal/session"
)

const (
	connectTimeout   = 30 * time.Second
	assistantTimeout = 60 * time.Second
)

// KnobToFrequency maps a filter knob in [0, 2] onto 20 Hz..20 kHz, log scale.
func KnobToFrequency(v float64) float64 {
	v = max(0, min(2, v))
	return 20 * math.Pow(1000, v/2)
}

// playbackResult answers a playback action with the resulting state.
func (s *Server) playbackResult(c *gin.Context, err error) {
	snap := s.Player.Snapshot()
	switch {
	case err == nil:
		c.JSON(http.StatusOK, snap)
	case errors.Is(err, session.ErrNoActivePrompt):
		c.JSON(http.StatusConflict, gin.H{"error": session.MsgNoActivePrompt, "state": snap})
	case errors.Is(err, session.ErrConnection):
		c.JSON(http.StatusBadGateway, gin.H{"error": session.MsgConnectionError, "state": snap})
	default:
		s.Logger.Error("Playback action failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "state": snap})
	}
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.Player.Snapshot())
}

func (s *Server) playPause(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), connectTimeout)
	defer cancel()
	s.playbackResult(c, s.Player.PlayPause(ctx))
}

func (s *Server) restart(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), connectTimeout)
	defer cancel()
	s.playbackResult(c, s.Player.Restart(ctx))
}

func (s *Server) stop(c *gin.Context) {
	s.Player.Stop()
	s.playbackResult(c, nil)
}

// Prompts

func (s *Server) getCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, prompts.Categories)
}

func (s *Server) getPrompts(c *gin.Context) {
	c.JSON(http.StatusOK, s.Prompts.Snapshot())
}

func (s *Server) putPrompts(c *gin.Context) {
	var req map[string]music.WeightedPrompt
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid prompt map")
		return
	}
	c.JSON(http.StatusOK, s.Prompts.Replace(req))
}

type weightRequest struct {
	Weight *float64 `json:"weight" binding:"required"`
}

func (s *Server) patchPrompt(c *gin.Context) {
	var req weightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "weight is required")
		return
	}
	p, err := s.Prompts.SetWeight(c.Param("id"), *req.Weight)
	if errors.Is(err, prompts.ErrUnknownPrompt) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown prompt"})
		return
	}
	c.JSON(http.StatusOK, p)
}

type customPromptRequest struct {
	Text   string   `json:"text" binding:"required"`
	Weight *float64 `json:"weight"`
	Color  string   `json:"color"`
}

func (s *Server) addCustomPrompt(c *gin.Context) {
	var req customPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "text is required")
		return
	}
	weight := 1.0
	if req.Weight != nil {
		weight = *req.Weight
	}
	p, err := s.Prompts.AddCustom(req.Text, weight, req.Color)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Mixer

type levelRequest struct {
	Value *float64 `json:"value" binding:"required"`
}

func (s *Server) setMasterVolume(c *gin.Context) {
	var req levelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "value is required")
		return
	}
	s.Mixer.SetMasterVolume(*req.Value)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) setBalance(c *gin.Context) {
	var req levelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "value is required")
		return
	}
	s.Mixer.SetBalance(*req.Value)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type eqRequest struct {
	Band *int     `json:"band" binding:"required"`
	Gain *float64 `json:"gain" binding:"required"`
}

func (s *Server) setEq(c *gin.Context) {
	var req eqRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "band and gain are required")
		return
	}
	if err := s.Mixer.SetEq(*req.Band, *req.Gain); err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type filterRequest struct {
	Type  string   `json:"type" binding:"required"`
	Value *float64 `json:"value" binding:"required"`
}

func (s *Server) setFilter(c *gin.Context) {
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "type and value are required")
		return
	}
	freq := KnobToFrequency(*req.Value)
	switch strings.ToLower(req.Type) {
	case "lowpass":
		s.Mixer.SetLowPass(freq)
	case "highpass":
		s.Mixer.SetHighPass(freq)
	default:
		badRequest(c, "type must be lowpass or highpass")
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": strings.ToLower(req.Type), "frequency": freq})
}

func (s *Server) setGenerationSettings(c *gin.Context) {
	var patch music.ConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid generation settings")
		return
	}
	cfg, err := s.Player.SetGenerationConfig(patch)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Assistant

type assistantRequest struct {
	Request string `json:"request" binding:"required"`
}

func (s *Server) askAssistant(c *gin.Context) {
	if s.Assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "assistant not configured"})
		return
	}
	var req assistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request is required")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), assistantTimeout)
	defer cancel()

	mix, err := s.Assistant.Apply(ctx, req.Request)
	switch {
	case errors.Is(err, assistant.ErrEmptyRequest):
		badRequest(c, "request is required")
		return
	case err != nil:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": assistant.UserMessage(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider": s.Assistant.Provider(),
		"mix":      mix,
		"prompts":  s.Prompts.Snapshot(),
	})
}

// Presets

func (s *Server) listPresets(c *gin.Context) {
	c.JSON(http.StatusOK, s.Presets.List())
}

func (s *Server) getPreset(c *gin.Context) {
	p, err := s.Presets.Get(c.Param("name"))
	if err != nil {
		s.presetError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type savePresetRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) savePreset(c *gin.Context) {
	var req savePresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}
	p, err := s.Presets.Save(req.Name, s.Prompts.Snapshot())
	if err != nil {
		s.presetError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) deletePreset(c *gin.Context) {
	if err := s.Presets.Delete(c.Param("name")); err != nil {
		s.presetError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) loadPreset(c *gin.Context) {
	p, err := s.Presets.Get(c.Param("name"))
	if err != nil {
		s.presetError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Prompts.Replace(p.Prompts))
}

func (s *Server) presetError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, prompts.ErrPresetNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "preset not found"})
	case errors.Is(err, prompts.ErrPresetName):
		badRequest(c, "name is required")
	default:
		s.Logger.Error("Preset store failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "preset store failed"})
	}
}
