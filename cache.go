// Package semcache provides a semantic response cache for LLM workloads:
// it maps a natural-language query to a previously computed response via
// embedding similarity, collapses concurrent misses for the same query into
// a single computation, and bounds its size with TTL expiry and true-LRU
// capacity eviction.
//
// The Cache type is the main entry point: create one with New, look up
// cached responses with Lookup, and route full request flows through
// Resolve, which composes embed, coordinate, match, compute, and store.
// An optional durable mirror (SQLite or Postgres) survives restarts;
// without one the cache is memory-only.
package semcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ferro-labs/semcache/embedders"
	"github.com/ferro-labs/semcache/internal/index"
	"github.com/ferro-labs/semcache/internal/logging"
	"github.com/ferro-labs/semcache/internal/metrics"
	"github.com/ferro-labs/semcache/internal/store"
)

// Cache is a semantic response cache. All methods are safe for concurrent
// use. A Cache owns its entries exclusively; values returned from Lookup and
// Resolve are copies.
type Cache struct {
	cfg      Config
	embedder embedders.Embedder
	gate     Gate
	idx      *index.Index
	group    singleflight.Group
	mirror   store.Store
	log      *slog.Logger
	now      func() time.Time

	mu          sync.Mutex // guards stats counters
	hitsExact   uint64
	hitsSimilar uint64
	misses      uint64
	shared      uint64

	persistWarn sync.Once
	deletes     chan string
	done        chan struct{}
	wg          sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// Option customizes a Cache created by New.
type Option func(*Cache)

// WithStore supplies a durable mirror directly, overriding cfg.Persistence.
func WithStore(s store.Store) Option {
	return func(c *Cache) { c.mirror = s }
}

// WithGate installs a cacheability gate consulted before every store. The
// default gate accepts everything.
func WithGate(g Gate) Option {
	return func(c *Cache) { c.gate = g }
}

// New creates a Cache backed by the given embedder. If cfg.Persistence is
// set the durable mirror is opened and replayed; failure to do so is logged
// once and the cache continues memory-only.
func New(cfg Config, embedder embedders.Embedder, opts ...Option) (*Cache, error) {
	if embedder == nil {
		return nil, fmt.Errorf("semcache: embedder is required")
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = embedder.Dimensions()
	}
	if cfg.Dimension != embedder.Dimensions() {
		return nil, fmt.Errorf("semcache: config dimension %d does not match embedder dimension %d",
			cfg.Dimension, embedder.Dimensions())
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("semcache: %w", err)
	}
	cfg = cfg.withDefaults()

	c := &Cache{
		cfg:      cfg,
		embedder: embedder,
		gate:     GateFunc(func(context.Context, string, Response) bool { return true }),
		idx:      index.New(cfg.Dimension, cfg.Capacity),
		log:      logging.Component("cache"),
		now:      time.Now,
		deletes:  make(chan string, 256),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.idx.OnEvict = func(key string, reason index.EvictReason) {
		metrics.EvictionsTotal.WithLabelValues(string(reason)).Inc()
		if c.mirror != nil {
			// Called with the index lock held; never block here. A dropped
			// delete is pruned from the mirror at next startup.
			select {
			case c.deletes <- key:
			default:
			}
		}
	}

	if c.mirror == nil && cfg.Persistence != nil {
		s, err := store.Open(cfg.Persistence.Driver, cfg.Persistence.DSN)
		if err != nil {
			metrics.PersistenceErrors.WithLabelValues("open").Inc()
			c.log.Warn("persistence unavailable, continuing in-memory only",
				"driver", cfg.Persistence.Driver, "error", err.Error())
		} else {
			c.mirror = s
		}
	}

	if c.mirror != nil {
		c.replayMirror()
	}

	c.wg.Add(1)
	go c.sweepLoop()
	if c.mirror != nil {
		c.wg.Add(1)
		go c.deleteLoop()
	}

	metrics.Entries.Set(float64(c.idx.Len()))
	return c, nil
}

// replayMirror loads surviving records from the durable store into the
// index. A load failure downgrades the cache to memory-only.
func (c *Cache) replayMirror() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	recs, err := c.mirror.Load(ctx)
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("load").Inc()
		c.log.Warn("mirror load failed, continuing in-memory only", "error", err.Error())
		_ = c.mirror.Close()
		c.mirror = nil
		return
	}

	restored := 0
	for _, rec := range recs {
		resp := Response{Text: rec.Response, Tokens: rec.Tokens, GeneratedAt: rec.GeneratedAt}
		if _, err := c.idx.Insert(rec.Key, index.Normalize(rec.Embedding), resp, rec.CreatedAt, rec.ExpiresAt); err != nil {
			c.log.Warn("skipping unrestorable record", "key", rec.Key, "error", err.Error())
			continue
		}
		restored++
	}
	if restored > 0 {
		c.log.Info("cache restored from mirror", "entries", restored)
	}
}

// queryKey returns the stable content hash of the normalized query text:
// lower-cased with runs of whitespace collapsed, then SHA-256.
func queryKey(query string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	h := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(h[:])
}

// Lookup checks the cache for query and returns a Hit on success. Every
// failure mode short of a hit, including an embedding error, is reported as
// a miss.
func (c *Cache) Lookup(ctx context.Context, query string) (Hit, bool) {
	if c.isClosed() {
		return Hit{}, false
	}
	hit, _, ok := c.lookup(ctx, query, queryKey(query))
	return hit, ok
}

// lookup runs the exact-key fast path and then the similarity scan. It
// returns the query embedding (normalized) when one was computed, so Resolve
// can reuse it for insertion.
func (c *Cache) lookup(ctx context.Context, query, key string) (Hit, []float32, bool) {
	now := c.now()

	if v, ok := c.idx.GetExact(key, now); ok {
		c.count(&c.hitsExact)
		metrics.LookupsTotal.WithLabelValues("hit_exact").Inc()
		return Hit{Response: v.(Response), Score: 1, Exact: true}, nil, true
	}

	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		// Degrade this request to always-miss; the caller computes uncached.
		logging.FromContext(ctx).Debug("embedding failed, treating as miss", "error", err.Error())
		c.count(&c.misses)
		metrics.LookupsTotal.WithLabelValues("miss").Inc()
		return Hit{}, nil, false
	}
	vec = index.Normalize(vec)

	if m, ok := c.idx.BestMatch(vec, c.cfg.Threshold, now); ok {
		c.count(&c.hitsSimilar)
		metrics.LookupsTotal.WithLabelValues("hit_similar").Inc()
		metrics.SimilarityScore.Observe(float64(m.Score))
		return Hit{Response: m.Value.(Response), Score: m.Score}, vec, true
	}

	c.count(&c.misses)
	metrics.LookupsTotal.WithLabelValues("miss").Inc()
	return Hit{}, vec, false
}

// Resolve returns the cached response for query or computes it. Concurrent
// Resolve calls for the same query share a single compute invocation: the
// first caller computes, the rest wait for its result (success or failure
// alike). The wait is bounded by ctx and by cfg.WaitTimeout, whichever
// expires first; a waiter timing out does not disturb the computation, which
// still completes for everyone else.
func (c *Cache) Resolve(ctx context.Context, query string, compute ComputeFunc) (Response, error) {
	if c.isClosed() {
		return Response{}, ErrClosed
	}

	key := queryKey(query)
	hit, vec, ok := c.lookup(ctx, query, key)
	if ok {
		return hit.Response, nil
	}
	if vec == nil {
		// Embedding failed: compute uncached so the request still succeeds.
		return c.timeCompute(ctx, compute)
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// A flight that lost the race with a just-completed one finds the
		// entry already present.
		if v, ok := c.idx.GetExact(key, c.now()); ok {
			return v.(Response), nil
		}

		resp, err := c.timeCompute(ctx, compute)
		if err != nil {
			// Failures are never cached; every waiter sees this error.
			return Response{}, err
		}
		c.store(ctx, key, query, vec, resp)
		return resp, nil
	})

	metrics.InflightWaiters.Inc()
	defer metrics.InflightWaiters.Dec()

	timer := time.NewTimer(c.cfg.WaitTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Shared {
			c.count(&c.shared)
			metrics.SharedResults.Inc()
		}
		if res.Err != nil {
			return Response{}, res.Err
		}
		return res.Val.(Response), nil
	case <-ctx.Done():
		return Response{}, fmt.Errorf("%w: %w", ErrWaitTimeout, ctx.Err())
	case <-timer.C:
		return Response{}, ErrWaitTimeout
	}
}

func (c *Cache) timeCompute(ctx context.Context, compute ComputeFunc) (Response, error) {
	start := time.Now()
	resp, err := compute(ctx)
	metrics.ComputeDuration.Observe(time.Since(start).Seconds())
	return resp, err
}

// store inserts a freshly computed response into the index and mirror,
// unless the gate vetoes caching it.
func (c *Cache) store(ctx context.Context, key, query string, vec []float32, resp Response) {
	if !c.gate.Cacheable(ctx, query, resp) {
		logging.FromContext(ctx).Debug("response vetoed by gate, not cached")
		return
	}

	now := c.now()
	expires := now.Add(c.cfg.TTL)
	if _, err := c.idx.Insert(key, vec, resp, now, expires); err != nil {
		logging.FromContext(ctx).Error("index insert rejected", "error", err.Error())
		return
	}
	metrics.Entries.Set(float64(c.idx.Len()))

	if c.mirror == nil {
		return
	}
	// The mirror write is detached from the request context: a caller
	// cancelling after compute success must not lose the entry.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	rec := store.Record{
		Key:         key,
		Embedding:   vec,
		Response:    resp.Text,
		Tokens:      resp.Tokens,
		GeneratedAt: resp.GeneratedAt,
		CreatedAt:   now,
		ExpiresAt:   expires,
	}
	if err := c.mirror.Save(sctx, rec); err != nil {
		metrics.PersistenceErrors.WithLabelValues("save").Inc()
		c.persistWarn.Do(func() {
			c.log.Warn("mirror save failed, cache continues in-memory", "error", err.Error())
		})
	}
}

// Flush removes every entry from the index and the mirror.
func (c *Cache) Flush(ctx context.Context) error {
	c.idx.Clear()
	metrics.Entries.Set(0)
	if c.mirror != nil {
		if err := c.mirror.Clear(ctx); err != nil {
			metrics.PersistenceErrors.WithLabelValues("clear").Inc()
			return fmt.Errorf("flush mirror: %w", err)
		}
	}
	return nil
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:     c.idx.Len(),
		HitsExact:   c.hitsExact,
		HitsSimilar: c.hitsSimilar,
		Misses:      c.misses,
		Shared:      c.shared,
	}
}

// Close stops the background sweeper and closes the mirror. Operations on a
// closed cache return ErrClosed (Resolve) or miss (Lookup).
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		close(c.done)
		c.wg.Wait()
		if c.mirror != nil {
			err = c.mirror.Close()
		}
	})
	return err
}

func (c *Cache) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Cache) count(field *uint64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// sweepLoop periodically removes expired entries.
func (c *Cache) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if n := c.idx.SweepExpired(c.now()); n > 0 {
				c.log.Debug("ttl sweep", "removed", n, "remaining", c.idx.Len())
			}
			metrics.Entries.Set(float64(c.idx.Len()))
		}
	}
}

// deleteLoop mirrors index evictions into the durable store.
func (c *Cache) deleteLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case key := <-c.deletes:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := c.mirror.Delete(ctx, key)
			cancel()
			if err != nil {
				metrics.PersistenceErrors.WithLabelValues("delete").Inc()
			}
		}
	}
}
