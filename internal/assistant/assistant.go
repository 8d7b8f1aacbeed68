// Package assistant turns a natural-language request ("something mellow for
// a rainy afternoon") into prompt weights using an LLM.
package assistant

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/satindergrewal/promptdj/internal/events"
	"github.com/satindergrewal/promptdj/internal/prompts"
)

const (
	MsgNoMix    = "The assistant could not find a matching mix."
	MsgUnusable = "The assistant could not process the request."
)

var (
	// ErrNoMix means the model answered but chose no genres.
	ErrNoMix = errors.New("assistant: empty mix")
	// ErrUnusable means the model's answer could not be read as a mix.
	ErrUnusable = errors.New("assistant: unusable response")
	ErrEmptyRequest = errors.New("assistant: empty request")
)

// MixItem is one genre and its volume in [0, 2].
type MixItem struct {
	Genre  string  `json:"genre"`
	Volume float64 `json:"volume"`
}

// Provider asks an LLM for a mix drawn from vocabulary.
type Provider interface {
	Name() string
	SuggestMix(ctx context.Context, request string, vocabulary []string) ([]MixItem, error)
}

// UserMessage maps an assistant error to the text shown to the user.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoMix):
		return MsgNoMix
	case errors.Is(err, ErrUnusable):
		return MsgUnusable
	}
	return "Assistant error: " + err.Error()
}

func systemInstruction(vocabulary []string) string {
	return `You are an expert DJ assistant. Your task is to interpret the user's request and create a music mix by selecting up to 5 genres from the provided list and setting their volumes (weights) between 0.0 and 2.0. A higher volume means the genre is more prominent. You must use the setMusicMix function to apply your selections.

Available genres: ` + strings.Join(vocabulary, ", ") + "."
}

// Assistant applies suggested mixes to the live prompt set.
type Assistant struct {
	provider Provider
	set      *prompts.Set
	emitter  events.Emitter
	logger   *zap.Logger
}

func New(provider Provider, set *prompts.Set, emitter events.Emitter, logger *zap.Logger) *Assistant {
	return &Assistant{provider: provider, set: set, emitter: emitter, logger: logger}
}

// Provider returns the backing provider's name.
func (a *Assistant) Provider() string {
	return a.provider.Name()
}

// Apply asks the provider for a mix and applies it. Every prompt not in the
// mix drops to zero. Failures are also emitted as error events.
func (a *Assistant) Apply(ctx context.Context, request string) ([]MixItem, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, ErrEmptyRequest
	}

	mix, err := a.provider.SuggestMix(ctx, request, a.set.Texts())
	if err == nil && len(mix) == 0 {
		err = ErrNoMix
	}
	if err != nil {
		a.logger.Warn("Assistant request failed",
			zap.String("provider", a.provider.Name()), zap.Error(err))
		a.emitter.Emit(events.Error(UserMessage(err)))
		return nil, err
	}

	if len(mix) > prompts.MaxMixSize {
		mix = mix[:prompts.MaxMixSize]
	}
	weights := make(map[string]float64, len(mix))
	for _, m := range mix {
		weights[m.Genre] = m.Volume
	}
	matched := a.set.ApplyMix(weights)
	a.logger.Info("Assistant mix applied",
		zap.String("provider", a.provider.Name()),
		zap.String("request", request),
		zap.Int("genres", len(mix)),
		zap.Int("matched", matched))
	return mix, nil
}
