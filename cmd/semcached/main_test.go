package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ferro-labs/semcache"
)

// onehotEmbedder maps each distinct query to its own axis, so no two queries
// are ever similar.
type onehotEmbedder struct {
	dim  int
	seen map[string]int
}

func (e *onehotEmbedder) Dimensions() int { return e.dim }

func (e *onehotEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.seen == nil {
		e.seen = make(map[string]int)
	}
	axis, ok := e.seen[text]
	if !ok {
		axis = len(e.seen) % e.dim
		e.seen[text] = axis
	}
	v := make([]float32, e.dim)
	v[axis] = 1
	return v, nil
}

func newTestServer(t *testing.T) (http.Handler, *semcache.Cache) {
	t.Helper()

	// Upstream chat endpoint returning a fixed completion.
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "upstream says hi"}}],
			"usage": {"completion_tokens": 3}
		}`))
	}))
	t.Cleanup(upstreamSrv.Close)

	cache, err := semcache.New(semcache.Config{}, &onehotEmbedder{dim: 8})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	up := &upstream{
		client: openai.NewClient(option.WithAPIKey("test"), option.WithBaseURL(upstreamSrv.URL)),
		model:  "test-model",
	}
	return newRouter(cache, up), cache
}

func TestResolveEndpoint_MissThenHit(t *testing.T) {
	router, cache := newTestServer(t)

	body := `{"query": "what is the capital of france"}`
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/resolve", strings.NewReader(body)))
		if rec.Code != http.StatusOK {
			t.Fatalf("resolve %d: status %d: %s", i, rec.Code, rec.Body.String())
		}
		var resp semcache.Response
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Text != "upstream says hi" {
			t.Errorf("resolve %d: text = %q", i, resp.Text)
		}
	}

	stats := cache.Stats()
	if stats.Misses != 1 || stats.HitsExact != 1 {
		t.Errorf("stats = %+v, want one miss then one exact hit", stats)
	}
}

func TestLookupEndpoint_Miss(t *testing.T) {
	router, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/lookup", strings.NewReader(`{"query": "unseen"}`)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestLookupEndpoint_BadRequest(t *testing.T) {
	router, _ := newTestServer(t)

	for _, body := range []string{`{}`, `{bad json`} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/lookup", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestStatsAndFlushEndpoints(t *testing.T) {
	router, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/resolve", strings.NewReader(`{"query": "seed entry"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("seed resolve: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status %d", rec.Code)
	}
	var stats semcache.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Entries != 1 {
		t.Errorf("entries = %d, want 1", stats.Entries)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/entries", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("flush: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	_ = json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats.Entries != 0 {
		t.Errorf("entries after flush = %d, want 0", stats.Entries)
	}
}

func TestHealthz(t *testing.T) {
	router, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
