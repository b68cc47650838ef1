// Package embedders defines the Embedder capability the cache consumes and
// ships implementations for OpenAI, AWS Bedrock (Titan), and Ollama.
//
// Embedders return raw model output; the cache normalizes vectors itself
// before indexing, so implementations do not need to guarantee unit norm.
package embedders

import "context"

// Embedder produces a fixed-dimension vector embedding for a text.
type Embedder interface {
	// Embed returns the embedding of text. Errors are non-fatal to the
	// caller's request: the cache degrades that request to a miss.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the embedding dimension this embedder produces.
	Dimensions() int
}
