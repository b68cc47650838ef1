package embedders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Bedrock embeds text with Amazon Titan text embeddings via the Bedrock
// runtime InvokeModel API. Titan v2 supports 256, 512, and 1024 dimensions
// and can normalize server-side, which we request so the vectors arrive
// unit-norm already.
type Bedrock struct {
	client *bedrockruntime.Client
	model  string
	dim    int
}

type titanEmbedRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions"`
	Normalize  bool   `json:"normalize"`
}

type titanEmbedResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// NewBedrock creates a Titan embedder. region defaults to us-east-1, model
// to amazon.titan-embed-text-v2:0, dim to 1024.
func NewBedrock(ctx context.Context, region, model string, dim int) (*Bedrock, error) {
	if region == "" {
		region = "us-east-1"
	}
	if model == "" {
		model = "amazon.titan-embed-text-v2:0"
	}
	if dim <= 0 {
		dim = 1024
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Bedrock{
		client: bedrockruntime.NewFromConfig(cfg),
		model:  model,
		dim:    dim,
	}, nil
}

// Dimensions returns the configured embedding dimension.
func (e *Bedrock) Dimensions() int { return e.dim }

// Embed returns the embedding of text.
func (e *Bedrock) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanEmbedRequest{
		InputText:  text,
		Dimensions: e.dim,
		Normalize:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode titan request: %w", err)
	}

	out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &e.model,
		ContentType: contentTypeJSON(),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke %s: %w", e.model, err)
	}

	var resp titanEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode titan response: %w", err)
	}
	if len(resp.Embedding) != e.dim {
		return nil, fmt.Errorf("bedrock embeddings: got dimension %d, want %d", len(resp.Embedding), e.dim)
	}
	return resp.Embedding, nil
}

func contentTypeJSON() *string {
	s := "application/json"
	return &s
}
