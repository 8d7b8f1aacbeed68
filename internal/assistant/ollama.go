package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OllamaClient talks to a local Ollama API.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOllamaClient creates an Ollama client.
func NewOllamaClient(baseURL, model string, logger *zap.Logger) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // first call loads the model
		},
		logger: logger,
	}
}

// generateRequest is the Ollama /api/generate request body.
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Format  string         `json:"format,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// generateResponse is the Ollama /api/generate response.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Available checks if Ollama is reachable.
func (c *OllamaClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Generate sends a prompt with a system message and returns the model's
// JSON-mode response.
func (c *OllamaClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	body := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		System: system,
		Format: "json",
		Stream: false,
		Options: map[string]any{
			"temperature": 0.7,
			"num_predict": 256,
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	return strings.TrimSpace(result.Response), nil
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// OllamaProvider asks a local model for a mix in JSON mode. Local models
// have no function calling, so the declaration becomes an output format.
type OllamaProvider struct {
	client *OllamaClient
}

func NewOllamaProvider(client *OllamaClient) *OllamaProvider {
	return &OllamaProvider{client: client}
}

func (p *OllamaProvider) Name() string { return "ollama" }

const ollamaFormat = `

Respond with ONLY a JSON object of this form and nothing else:
{"mix": [{"genre": "<one of the available genres>", "volume": <0.0 to 2.0>}]}

/no_think`

func (p *OllamaProvider) SuggestMix(ctx context.Context, request string, vocabulary []string) ([]MixItem, error) {
	raw, err := p.client.Generate(ctx, systemInstruction(vocabulary)+ollamaFormat, request)
	if err != nil {
		return nil, err
	}
	raw = cleanResponse(raw)

	var out struct {
		Mix []MixItem `json:"mix"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		p.client.logger.Warn("Ollama returned unusable mix", zap.String("response", raw))
		return nil, fmt.Errorf("%w: %v", ErrUnusable, err)
	}
	if len(out.Mix) == 0 {
		return nil, ErrNoMix
	}
	return out.Mix, nil
}

// cleanResponse strips common LLM artifacts around a JSON answer.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)

	// Strip thinking tags (Qwen 3 thinking mode leakage)
	if idx := strings.Index(s, "</think>"); idx >= 0 {
		s = strings.TrimSpace(s[idx+len("</think>"):])
	}

	// Strip markdown code fences
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	// Keep only the outermost object
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		s = s[i : j+1]
	}
	return strings.TrimSpace(s)
}
