// Command semcached runs the semantic cache as an HTTP daemon in front of an
// OpenAI-compatible chat completion endpoint. Misses are proxied upstream,
// hits are served from the cache.
//
// Configuration is environment-driven:
//
//	SEMCACHE_CONFIG     optional path to a JSON/YAML cache config file
//	EMBEDDER            openai (default), bedrock, or ollama
//	OPENAI_API_KEY      key for the openai embedder and the default upstream
//	OLLAMA_HOST         base URL for the ollama embedder
//	AWS_REGION          region for the bedrock embedder
//	UPSTREAM_BASE_URL   upstream chat endpoint (default api.openai.com)
//	UPSTREAM_MODEL      chat model requested upstream (default gpt-4o-mini)
//	PORT                listen port (default 8080)
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ferro-labs/semcache"
	"github.com/ferro-labs/semcache/embedders"
	"github.com/ferro-labs/semcache/internal/logging"
	"github.com/ferro-labs/semcache/internal/version"
)

func main() {
	var cfg semcache.Config
	if path := os.Getenv("SEMCACHE_CONFIG"); path != "" {
		loaded, err := semcache.LoadConfig(path)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
		log.Printf("Config loaded: dimension=%d threshold=%v ttl=%v", cfg.Dimension, cfg.Threshold, cfg.TTL)
	}

	embedder, err := buildEmbedder(cfg.Dimension)
	if err != nil {
		log.Fatalf("Failed to build embedder: %v", err)
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = embedder.Dimensions()
	}
	if err := semcache.ValidateConfig(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	cache, err := semcache.New(cfg, embedder)
	if err != nil {
		log.Fatalf("Failed to create cache: %v", err)
	}
	defer func() { _ = cache.Close() }()

	upstream := newUpstream()
	r := newRouter(cache, upstream)

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("semcached %s listening on %s", version.Short(), addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err) //nolint:gocritic
	}
	log.Println("Server stopped.")
}

func buildEmbedder(dim int) (embedders.Embedder, error) {
	switch os.Getenv("EMBEDDER") {
	case "bedrock":
		return embedders.NewBedrock(context.Background(), os.Getenv("AWS_REGION"), os.Getenv("BEDROCK_EMBED_MODEL"), dim)
	case "ollama":
		return embedders.NewOllama(os.Getenv("OLLAMA_HOST"), os.Getenv("OLLAMA_EMBED_MODEL"), dim)
	default:
		return embedders.NewOpenAI(os.Getenv("OPENAI_API_KEY"), "", os.Getenv("OPENAI_EMBED_MODEL"), dim)
	}
}

// upstream is the chat completion backend consulted on cache misses.
type upstream struct {
	client openai.Client
	model  string
}

func newUpstream() *upstream {
	opts := []option.RequestOption{
		option.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
	}
	if base := os.Getenv("UPSTREAM_BASE_URL"); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	model := os.Getenv("UPSTREAM_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &upstream{client: openai.NewClient(opts...), model: model}
}

// Compute is the miss-path ComputeFunc the handlers hand to the cache.
func (u *upstream) Compute(query string) semcache.ComputeFunc {
	return func(ctx context.Context) (semcache.Response, error) {
		resp, err := u.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(u.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(query),
			},
		})
		if err != nil {
			return semcache.Response{}, err
		}
		out := semcache.Response{GeneratedAt: time.Now()}
		if len(resp.Choices) > 0 {
			out.Text = resp.Choices[0].Message.Content
		}
		out.Tokens = int(resp.Usage.CompletionTokens)
		return out, nil
	}
}

// newRouter builds the HTTP router.
func newRouter(cache *semcache.Cache, up *upstream) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	h := &handlers{cache: cache, upstream: up}
	r.Post("/v1/lookup", h.lookup)
	r.Post("/v1/resolve", h.resolve)
	r.Get("/v1/stats", h.stats)
	r.Delete("/v1/entries", h.flush)

	return r
}
