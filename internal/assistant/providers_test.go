package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOllamaProviderParsesJSONMix(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(generateResponse{
			Response: "<think>hmm</think>\n```json\n{\"mix\":[{\"genre\":\"Ambient\",\"volume\":1.4}]}\n```",
			Done:     true,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(NewOllamaClient(srv.URL+"/", "qwen3", zap.NewNop()))
	mix, err := p.SuggestMix(context.Background(), "calm", []string{"Ambient", "Techno"})
	require.NoError(t, err)
	assert.Equal(t, []MixItem{{Genre: "Ambient", Volume: 1.4}}, mix)

	assert.Equal(t, "qwen3", got.Model)
	assert.Equal(t, "json", got.Format)
	assert.Equal(t, "calm", got.Prompt)
	assert.Contains(t, got.System, "Available genres: Ambient, Techno.")
}

func TestOllamaProviderUnusable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "I like jazz", Done: true})
	}))
	defer srv.Close()

	p := NewOllamaProvider(NewOllamaClient(srv.URL, "m", zap.NewNop()))
	_, err := p.SuggestMix(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrUnusable)
}

func TestOllamaStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "m", zap.NewNop())
	_, err := c.Generate(context.Background(), "", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.False(t, c.Available(context.Background()))
}

func TestOllamaAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.Write([]byte(`{"models":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	assert.True(t, NewOllamaClient(srv.URL, "m", zap.NewNop()).Available(context.Background()))
	assert.False(t, NewOllamaClient("http://127.0.0.1:1", "m", zap.NewNop()).Available(context.Background()))
}

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"mix":[]}`, `{"mix":[]}`},
		{"<think>plan</think> {\"a\":1}", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Sure! {\"a\":1} Enjoy.", `{"a":1}`},
		{"no json here", "no json here"},
	}
	for _, tt := range tests {
		if got := cleanResponse(tt.in); got != tt.want {
			t.Errorf("cleanResponse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGeminiProviderReadsFunctionCall(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{
				"content": {
					"role": "model",
					"parts": [{"functionCall": {
						"name": "setMusicMix",
						"args": {"mix": [{"genre": "Reggae", "volume": 1.1}]}
					}}]
				},
				"finishReason": "STOP"
			}]
		}`))
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(context.Background(), "test-key", "", srv.URL)
	require.NoError(t, err)
	mix, err := p.SuggestMix(context.Background(), "island vibes", []string{"Reggae", "Metal"})
	require.NoError(t, err)
	assert.Equal(t, []MixItem{{Genre: "Reggae", Volume: 1.1}}, mix)
	assert.Contains(t, body, "setMusicMix")
	assert.Contains(t, body, "island vibes")
}

func TestGeminiProviderTextAnswerIsUnusable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"I cannot help"}]}}]}`))
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(context.Background(), "test-key", "gemini-test", srv.URL)
	require.NoError(t, err)
	_, err = p.SuggestMix(context.Background(), "x", []string{"Reggae"})
	assert.ErrorIs(t, err, ErrUnusable)
}
