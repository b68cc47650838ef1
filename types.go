package semcache

import (
	"context"
	"time"
)

// Response is the cached payload: the generated text plus the minimal
// metadata eviction and cost accounting need. Callers receive copies; the
// cache never hands out a pointer into its own storage.
type Response struct {
	Text        string    `json:"text"`
	Tokens      int       `json:"tokens"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Hit is a successful lookup result.
type Hit struct {
	Response Response `json:"response"`
	// Score is the cosine similarity of the match; 1 for an exact-key hit.
	Score float32 `json:"score"`
	// Exact reports whether the hit came from the exact-key fast path rather
	// than a similarity match.
	Exact bool `json:"exact"`
}

// ComputeFunc produces the response for a query on a cache miss. It is
// invoked at most once per equivalence class of concurrent callers.
type ComputeFunc func(ctx context.Context) (Response, error)

// Gate vetoes caching of individual responses. A response rejected by the
// gate is still returned to every waiting caller but is never stored. The
// typical implementation wraps external guardrail classifiers.
type Gate interface {
	Cacheable(ctx context.Context, query string, resp Response) bool
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(ctx context.Context, query string, resp Response) bool

// Cacheable implements Gate.
func (f GateFunc) Cacheable(ctx context.Context, query string, resp Response) bool {
	return f(ctx, query, resp)
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries     int    `json:"entries"`
	HitsExact   uint64 `json:"hits_exact"`
	HitsSimilar uint64 `json:"hits_similar"`
	Misses      uint64 `json:"misses"`
	// Shared counts resolve calls that were served by another caller's
	// in-flight computation instead of issuing their own.
	Shared uint64 `json:"shared"`
}
