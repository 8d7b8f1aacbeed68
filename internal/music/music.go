// Package music holds the types shared between the session controller and
// the music generation backend: prompts, generation settings and the
// messages a streaming connection delivers.
package music

import (
	"context"
	"errors"
)

var ErrNotConnected = errors.New("music: session is not connected")

// WeightedPrompt is a user-facing prompt. Only prompts with a non-zero
// weight are sent to the backend.
type WeightedPrompt struct {
	ID       string  `json:"promptId"`
	Text     string  `json:"text"`
	Weight   float64 `json:"weight"`
	Color    string  `json:"color,omitempty"`
	CC       int     `json:"cc"`
	Category string  `json:"category,omitempty"`
}

// PromptWeight is the wire form of a prompt.
type PromptWeight struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type FilteredPrompt struct {
	Text           string `json:"text"`
	FilteredReason string `json:"filteredReason"`
}

type AudioChunk struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType,omitempty"`
}

type ServerContent struct {
	AudioChunks []AudioChunk `json:"audioChunks"`
}

// ServerMessage is one message received on a live connection. At most one
// field is normally populated.
type ServerMessage struct {
	SetupComplete  *struct{}       `json:"setupComplete,omitempty"`
	ServerContent  *ServerContent  `json:"serverContent,omitempty"`
	FilteredPrompt *FilteredPrompt `json:"filteredPrompt,omitempty"`
	Warning        string          `json:"warning,omitempty"`
}

// Callbacks are invoked from the connection's read goroutine.
type Callbacks struct {
	OnMessage func(ServerMessage)
	OnError   func(error)
	OnClose   func()
}

// Backend opens streaming connections to a music generator.
type Backend interface {
	Connect(ctx context.Context, model string, cfg GenerationConfig, cb Callbacks) (Session, error)
}

// Session is one live connection.
type Session interface {
	SetWeightedPrompts(ctx context.Context, prompts []PromptWeight) error
	SetGenerationConfig(ctx context.Context, cfg GenerationConfig) error
	Play() error
	Pause() error
	Stop() error
	ResetContext() error
	Close() error
}

// Active returns the prompts that should be sent to the backend: non-zero
// weight and not filtered.
func Active(prompts []WeightedPrompt, filtered map[string]struct{}) []PromptWeight {
	out := make([]PromptWeight, 0, len(prompts))
	for _, p := range prompts {
		if p.Weight == 0 {
			continue
		}
		if _, ok := filtered[p.Text]; ok {
			continue
		}
		out = append(out, PromptWeight{Text: p.Text, Weight: p.Weight})
	}
	return out
}
