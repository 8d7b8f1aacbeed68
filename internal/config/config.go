package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Music backend
	GeminiAPIKey  string
	LyriaModel    string
	LyriaEndpoint string // empty selects the public endpoint

	// Server
	Port        int
	Environment string // "development" switches to a development logger

	// Playback
	LeadBuffer     time.Duration // jitter buffer before audible playback
	PromptThrottle time.Duration // min interval between prompt submissions
	MP3Bitrate     int           // kbps for the /stream listener
	MasterVolume   float64       // initial master gain, 0..1

	// Mix assistant
	AssistantModel string
	OllamaURL      string // used when no Gemini key is set
	OllamaModel    string

	// Presets
	PresetFile string // empty keeps presets in memory
}

// Load reads .env (if present) and then environment variables, with sane
// defaults. Variables already set in the environment win over .env.
func Load() Config {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() Config {
	return Config{
		GeminiAPIKey:  envStr("GEMINI_API_KEY", envStr("API_KEY", "")),
		LyriaModel:    envStr("LYRIA_MODEL", "lyria-realtime-exp"),
		LyriaEndpoint: envStr("LYRIA_ENDPOINT", ""),

		Port:        envInt("PROMPTDJ_PORT", 8080),
		Environment: envStr("PROMPTDJ_ENV", "production"),

		LeadBuffer:     envDuration("PROMPTDJ_LEAD_BUFFER", 2*time.Second),
		PromptThrottle: envDuration("PROMPTDJ_PROMPT_THROTTLE", 200*time.Millisecond),
		MP3Bitrate:     envInt("PROMPTDJ_MP3_BITRATE", 192),
		MasterVolume:   envFloat("PROMPTDJ_MASTER_VOLUME", 0.8),

		AssistantModel: envStr("PROMPTDJ_ASSISTANT_MODEL", "gemini-2.5-flash"),
		OllamaURL:      envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:    envStr("OLLAMA_MODEL", "qwen3:8b"),

		PresetFile: envStr("PROMPTDJ_PRESET_FILE", "presets.json"),
	}
}

// Development reports whether the development logger should be used.
func (c Config) Development() bool {
	return c.Environment == "development"
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration accepts Go durations ("250ms") or bare seconds ("2", "1.5").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return fallback
}
