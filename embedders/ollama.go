package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Ollama embeds text via a local Ollama server. No API key is required.
type Ollama struct {
	httpClient *http.Client
	baseURL    string
	model      string
	dim        int
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// NewOllama creates an Ollama embedder. baseURL defaults to
// http://localhost:11434, model to nomic-embed-text, dim to 768.
func NewOllama(baseURL, model string, dim int) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if model == "" {
		model = "nomic-embed-text"
	}
	if dim <= 0 {
		dim = 768
	}
	return &Ollama{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		model:      model,
		dim:        dim,
	}, nil
}

// Dimensions returns the configured embedding dimension.
func (e *Ollama) Dimensions() int { return e.dim }

// Embed returns the embedding of text.
func (e *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp ollamaEmbedResponse
	if httpResp.StatusCode != http.StatusOK {
		if json.Unmarshal(respBody, &resp) == nil && resp.Error != "" {
			return nil, fmt.Errorf("ollama API error (%d): %s", httpResp.StatusCode, resp.Error)
		}
		return nil, fmt.Errorf("ollama API error (%d): %s", httpResp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Embedding) != e.dim {
		return nil, fmt.Errorf("ollama embeddings: got dimension %d, want %d", len(resp.Embedding), e.dim)
	}
	return resp.Embedding, nil
}
