package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

const (
	DefaultGeminiModel = "gemini-2.5-flash"
	mixFunctionName    = "setMusicMix"
)

// GeminiProvider asks Gemini for a mix through a setMusicMix function call.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini API client. baseURL overrides the API
// host and is empty in production.
func NewGeminiProvider(ctx context.Context, apiKey, model, baseURL string) (*GeminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func mixDeclaration(vocabulary []string) *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        mixFunctionName,
		Description: "Sets the volumes for a list of music genres to create a mix.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"mix": {
					Type:        genai.TypeArray,
					Description: "An array of genre and volume objects. Select up to 5 genres.",
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"genre": {
								Type:        genai.TypeString,
								Description: "The name of the music genre.",
								Enum:        vocabulary,
							},
							"volume": {
								Type:        genai.TypeNumber,
								Description: "The volume for the genre, from 0.0 to 2.0.",
							},
						},
						Required: []string{"genre", "volume"},
					},
				},
			},
			Required: []string{"mix"},
		},
	}
}

func (p *GeminiProvider) SuggestMix(ctx context.Context, request string, vocabulary []string) ([]MixItem, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction(vocabulary)}},
		},
		Tools: []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{mixDeclaration(vocabulary)}}},
	}

	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(request), config)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	return mixFromCalls(result.FunctionCalls())
}

// mixFromCalls reads the first function call. Anything other than a
// setMusicMix call is unusable.
func mixFromCalls(calls []*genai.FunctionCall) ([]MixItem, error) {
	if len(calls) == 0 || calls[0] == nil || calls[0].Name != mixFunctionName {
		return nil, ErrUnusable
	}
	raw, ok := calls[0].Args["mix"]
	if !ok {
		return nil, ErrNoMix
	}
	// Args arrive as generic JSON values; round-trip them into MixItem.
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnusable, err)
	}
	var mix []MixItem
	if err := json.Unmarshal(b, &mix); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnusable, err)
	}
	if len(mix) == 0 {
		return nil, ErrNoMix
	}
	return mix, nil
}
