// Package events defines the typed messages the core sends to the host UI.
package events

import (
	"github.com/satindergrewal/promptdj/internal/stream"
)

// Type names an event on the wire.
type Type string

const (
	TypePlaybackStateChanged Type = "playback-state-changed"
	TypeFilteredPrompt       Type = "filtered-prompt"
	TypeError                Type = "error"
	TypeAudioLevelChanged    Type = "audio-level-changed"
	TypePromptsChanged       Type = "prompts-changed"
)

// Event is the envelope published to subscribers and sent as JSON.
type Event struct {
	Type   Type `json:"type"`
	Detail any  `json:"detail"`
}

// FilteredPromptDetail carries a prompt the backend rejected.
type FilteredPromptDetail struct {
	Text           string `json:"text"`
	FilteredReason string `json:"filteredReason"`
}

// PlaybackStateChanged reports a new playback state.
func PlaybackStateChanged(state string) Event {
	return Event{Type: TypePlaybackStateChanged, Detail: state}
}

// FilteredPrompt reports a prompt rejected by the backend.
func FilteredPrompt(text, reason string) Event {
	return Event{Type: TypeFilteredPrompt, Detail: FilteredPromptDetail{Text: text, FilteredReason: reason}}
}

// Error reports a user-facing error message.
func Error(message string) Event {
	return Event{Type: TypeError, Detail: message}
}

// AudioLevelChanged reports the output level.
func AudioLevelChanged(level float64) Event {
	return Event{Type: TypeAudioLevelChanged, Detail: level}
}

// PromptsChanged reports a new prompt map, keyed by prompt id.
func PromptsChanged(prompts any) Event {
	return Event{Type: TypePromptsChanged, Detail: prompts}
}

// Emitter receives events from the core.
type Emitter interface {
	Emit(Event)
}

// Bus fans events out to every subscriber without blocking the emitter.
type Bus struct {
	*stream.Broadcaster[Event]
}

// NewBus creates a bus whose subscribers buffer up to buffer events.
func NewBus(buffer int) *Bus {
	return &Bus{Broadcaster: stream.NewBroadcaster[Event](buffer)}
}

// Emit publishes e to all subscribers.
func (b *Bus) Emit(e Event) {
	b.Publish(e)
}
