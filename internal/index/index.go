// Package index implements the in-memory embedding index backing the cache:
// a columnar (struct-of-arrays) store of unit-norm embedding vectors with
// parallel metadata, supporting O(1) exact-key lookup, swap-remove, LRU
// capacity eviction, and brute-force cosine similarity search.
//
// The columnar layout keeps all vector data in one flat float32 slice with a
// fixed row stride, so a similarity scan walks memory contiguously instead of
// chasing per-entry pointers. All methods are safe for concurrent use: scans
// run under a shared lock, structural mutation under an exclusive lock.
package index

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Sentinel errors returned by Insert.
var (
	ErrDimensionMismatch = errors.New("index: embedding dimension mismatch")
	ErrNotNormalized     = errors.New("index: embedding is not unit-norm")
)

// normTolerance is the allowed deviation of |v| from 1.0 on insert.
const normTolerance = 1e-3

// EvictReason identifies why an entry was removed by the index itself.
type EvictReason string

// Eviction reasons reported to the OnEvict hook.
const (
	EvictTTL      EvictReason = "ttl"
	EvictCapacity EvictReason = "capacity"
)

// Entry is a snapshot of one live index entry. The index owns its internal
// storage; Entry values handed out by Snapshot are copies and never alias it.
type Entry struct {
	Key        string
	Vec        []float32
	Value      any
	Created    time.Time
	Expires    time.Time
	LastAccess time.Time
	Hits       uint64
}

type meta struct {
	value      any
	created    time.Time
	expires    time.Time
	lastAccess time.Time
	hits       uint64
}

// Index is a bounded, TTL-aware embedding index. The zero value is not
// usable; construct with New.
type Index struct {
	mu  sync.RWMutex
	dim int
	max int // maximum live entries; <= 0 means unbounded

	// Parallel columns. keys, metas and the vecs rows always have identical
	// logical length N; byKey maps every live key to its slot.
	keys  []string
	vecs  []float32 // flat, row stride == dim
	metas []meta
	byKey map[string]int

	// OnEvict, if set before first use, is called (with the lock held) for
	// every entry the index removes on its own initiative.
	OnEvict func(key string, reason EvictReason)
}

// New creates an index for vectors of the given dimension holding at most
// capacity entries (<= 0 for unbounded).
func New(dim, capacity int) *Index {
	return &Index{
		dim:   dim,
		max:   capacity,
		byKey: make(map[string]int),
	}
}

// Dim returns the vector dimension the index was created with.
func (ix *Index) Dim() int { return ix.dim }

// Len returns the number of live entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.keys)
}

func (ix *Index) vec(slot int) []float32 {
	return ix.vecs[slot*ix.dim : (slot+1)*ix.dim]
}

// Insert stores vec under key and returns the slot it landed in. An existing
// key is overwritten in place, refreshing its TTL window. When the index is
// at capacity, the least recently used entry is evicted first. The vector is
// copied; the caller keeps ownership of vec.
func (ix *Index) Insert(key string, vec []float32, value any, now, expires time.Time) (int, error) {
	if len(vec) != ix.dim {
		return -1, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), ix.dim)
	}
	if !IsNormalized(vec, normTolerance) {
		return -1, fmt.Errorf("%w: |v| = %v", ErrNotNormalized, Norm(vec))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if slot, ok := ix.byKey[key]; ok {
		copy(ix.vec(slot), vec)
		ix.metas[slot] = meta{value: value, created: now, expires: expires, lastAccess: now}
		return slot, nil
	}

	// Capacity is checked and freed under the same lock as the append, so a
	// concurrent scan never observes N > max.
	if ix.max > 0 && len(ix.keys) >= ix.max {
		ix.evictLRULocked()
	}

	slot := len(ix.keys)
	ix.keys = append(ix.keys, key)
	ix.vecs = append(ix.vecs, vec...)
	ix.metas = append(ix.metas, meta{value: value, created: now, expires: expires, lastAccess: now})
	ix.byKey[key] = slot
	return slot, nil
}

// Remove deletes the entry for key if present and reports whether it did.
func (ix *Index) Remove(key string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	slot, ok := ix.byKey[key]
	if !ok {
		return false
	}
	ix.removeSlotLocked(slot)
	return true
}

// removeSlotLocked swap-removes slot: the last row is moved into the freed
// position so the columns stay dense. O(1).
func (ix *Index) removeSlotLocked(slot int) {
	last := len(ix.keys) - 1
	delete(ix.byKey, ix.keys[slot])

	if slot != last {
		ix.keys[slot] = ix.keys[last]
		ix.metas[slot] = ix.metas[last]
		copy(ix.vec(slot), ix.vec(last))
		ix.byKey[ix.keys[slot]] = slot
	}

	ix.keys = ix.keys[:last]
	ix.metas = ix.metas[:last]
	ix.vecs = ix.vecs[:last*ix.dim]
}

// GetExact returns the value stored under key if it is live at now. A hit
// refreshes the entry's recency; an expired entry is removed and reported as
// a miss.
func (ix *Index) GetExact(key string, now time.Time) (any, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	slot, ok := ix.byKey[key]
	if !ok {
		return nil, false
	}
	m := &ix.metas[slot]
	if now.After(m.expires) {
		if ix.OnEvict != nil {
			ix.OnEvict(key, EvictTTL)
		}
		ix.removeSlotLocked(slot)
		return nil, false
	}
	m.lastAccess = now
	m.hits++
	return m.value, true
}

// Touch refreshes the recency of key, if live. Used after a similarity hit.
func (ix *Index) Touch(key string, now time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if slot, ok := ix.byKey[key]; ok {
		ix.metas[slot].lastAccess = now
		ix.metas[slot].hits++
	}
}

// SweepExpired removes every entry whose TTL has lapsed at now and returns
// the number removed.
func (ix *Index) SweepExpired(now time.Time) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	removed := 0
	// Iterate backwards so a swap-remove never skips the row swapped in.
	for slot := len(ix.keys) - 1; slot >= 0; slot-- {
		if now.After(ix.metas[slot].expires) {
			if ix.OnEvict != nil {
				ix.OnEvict(ix.keys[slot], EvictTTL)
			}
			ix.removeSlotLocked(slot)
			removed++
		}
	}
	return removed
}

// evictLRULocked removes the entry with the oldest lastAccess timestamp.
func (ix *Index) evictLRULocked() {
	if len(ix.keys) == 0 {
		return
	}
	victim := 0
	for slot := 1; slot < len(ix.keys); slot++ {
		if ix.metas[slot].lastAccess.Before(ix.metas[victim].lastAccess) {
			victim = slot
		}
	}
	if ix.OnEvict != nil {
		ix.OnEvict(ix.keys[victim], EvictCapacity)
	}
	ix.removeSlotLocked(victim)
}

// Snapshot returns a consistent copy of every live entry. The vectors in the
// result are copies and may be retained by the caller.
func (ix *Index) Snapshot() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]Entry, len(ix.keys))
	for slot := range ix.keys {
		m := ix.metas[slot]
		vec := make([]float32, ix.dim)
		copy(vec, ix.vec(slot))
		out[slot] = Entry{
			Key:        ix.keys[slot],
			Vec:        vec,
			Value:      m.value,
			Created:    m.created,
			Expires:    m.expires,
			LastAccess: m.lastAccess,
			Hits:       m.hits,
		}
	}
	return out
}

// Clear removes all entries.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.keys = nil
	ix.vecs = nil
	ix.metas = nil
	ix.byKey = make(map[string]int)
}
