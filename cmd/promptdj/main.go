package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/promptdj/internal/api"
	"github.com/satindergrewal/promptdj/internal/assistant"
	"github.com/satindergrewal/promptdj/internal/audio"
	"github.com/satindergrewal/promptdj/internal/config"
	"github.com/satindergrewal/promptdj/internal/events"
	"github.com/satindergrewal/promptdj/internal/graph"
	"github.com/satindergrewal/promptdj/internal/lyria"
	"github.com/satindergrewal/promptdj/internal/music"
	"github.com/satindergrewal/promptdj/internal/prompts"
	"github.com/satindergrewal/promptdj/internal/session"
	"github.com/satindergrewal/promptdj/internal/stream"
)

// levelFrames is how many 20ms frames go into one level report.
const levelFrames = 3

func newLogger(cfg config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Development() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func main() {
	cfg := config.Load()

	logger := newLogger(cfg)
	defer logger.Sync()

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("promptdj starting up...",
		zap.String("model", cfg.LyriaModel),
		zap.Duration("lead_buffer", cfg.LeadBuffer))
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set; playback will fail to connect")
	}

	bus := events.NewBus(api.EventBuffer)

	// Audio graph and renderer
	g := graph.New(graph.NewContext(audio.SampleRate), logger.Named("graph"))
	g.SetMasterVolume(cfg.MasterVolume)
	analyser := graph.NewAnalyser(levelFrames, func(level float64) {
		bus.Emit(events.AudioLevelChanged(level))
	})
	renderer := graph.NewRenderer(g, analyser, logger.Named("renderer"))

	// Broadcaster: fan-out PCM frames to all listeners
	broadcaster := stream.NewBroadcaster[[]int16](stream.FrameBuffer)

	// Music backend session
	backend := lyria.NewClient(cfg.GeminiAPIKey, cfg.LyriaEndpoint, logger.Named("lyria"))
	controller := session.New(backend, g, bus, logger.Named("session"),
		session.WithModel(cfg.LyriaModel),
		session.WithLeadBuffer(cfg.LeadBuffer),
		session.WithPromptThrottle(cfg.PromptThrottle),
		session.WithAnalyser(analyser),
	)
	defer controller.Close()

	// Prompt set: every change goes to the backend and the UI
	set := prompts.NewSet(prompts.BuildInitial(rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))))
	set.OnChange(func(p map[string]music.WeightedPrompt) {
		controller.SetWeightedPrompts(p)
		bus.Emit(events.PromptsChanged(p))
	})
	controller.SetWeightedPrompts(set.Snapshot())
	controller.FlushPrompts()

	presets, err := prompts.OpenPresetStore(cfg.PresetFile, logger.Named("presets"))
	if err != nil {
		logger.Fatal("Failed to open preset store", zap.String("path", cfg.PresetFile), zap.Error(err))
	}

	// Mix assistant: Gemini when a key is set, Ollama otherwise
	var mixAssistant api.MixAssistant
	if provider := newProvider(ctx, cfg, logger); provider != nil {
		mixAssistant = assistant.New(provider, set, bus, logger.Named("assistant"))
		logger.Info("Mix assistant enabled", zap.String("provider", provider.Name()))
	} else {
		logger.Info("Mix assistant disabled (set GEMINI_API_KEY or OLLAMA_URL to enable)")
	}

	server := api.New(api.Deps{
		Player:    controller,
		Mixer:     g,
		Prompts:   set,
		Presets:   presets,
		Assistant: mixAssistant,
		Bus:       bus,
		Stream:    stream.NewHTTPHandler(broadcaster, cfg.MP3Bitrate, logger.Named("http-stream")),
		Offer:     stream.NewWebRTCHandler(broadcaster, logger.Named("webrtc")),
		Logger:    logger.Named("api"),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: server.Handler()}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		renderer.Run(gctx)
		return nil
	})
	grp.Go(func() error {
		broadcaster.Run(gctx, renderer.Frames())
		return nil
	})
	grp.Go(func() error {
		logger.Info("promptdj live", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	grp.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		controller.Close()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			// long-lived streams keep Shutdown waiting
			httpServer.Close()
		}
		return nil
	})

	if err := grp.Wait(); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}

func newProvider(ctx context.Context, cfg config.Config, logger *zap.Logger) assistant.Provider {
	if cfg.GeminiAPIKey != "" {
		p, err := assistant.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.AssistantModel, "")
		if err == nil {
			return p
		}
		logger.Warn("Gemini assistant unavailable", zap.Error(err))
	}
	if cfg.OllamaURL == "" {
		return nil
	}
	client := assistant.NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel, logger.Named("ollama"))
	readyCtx, readyCancel := context.WithTimeout(ctx, 5*time.Second)
	defer readyCancel()
	if !client.Available(readyCtx) {
		logger.Info("Ollama not available", zap.String("url", cfg.OllamaURL))
		return nil
	}
	return assistant.NewOllamaProvider(client)
}
