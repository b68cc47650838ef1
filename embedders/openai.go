package embedders

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI embeds text via the OpenAI embeddings API.
type OpenAI struct {
	client openai.Client
	model  string
	dim    int
}

// NewOpenAI creates an OpenAI embedder. The optional baseURL parameter allows
// overriding the API endpoint (pass "" for the default); model defaults to
// text-embedding-3-small and dim to 1536.
func NewOpenAI(apiKey, baseURL, model string, dim int) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embedder: api key is required")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dim <= 0 {
		dim = 1536
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
		dim:    dim,
	}, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAI) Dimensions() int { return e.dim }

// Embed returns the embedding of text.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(e.model),
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Dimensions:     openai.Int(int64(e.dim)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}

	raw := result.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, x := range raw {
		vec[i] = float32(x)
	}
	if len(vec) != e.dim {
		return nil, fmt.Errorf("openai embeddings: got dimension %d, want %d", len(vec), e.dim)
	}
	return vec, nil
}
