// Package store provides the optional durable mirror of the cache: a
// key-value record store the cache replays at startup and writes through on
// each successful insertion. Losing the store costs durability, never
// correctness; the cache degrades to memory-only operation.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned (wrapped) when the backing store cannot be
// reached. Callers treat it as non-fatal.
var ErrUnavailable = errors.New("store: unavailable")

// Record is the persisted form of one cache entry.
type Record struct {
	Key         string
	Embedding   []float32
	Response    string
	Tokens      int
	GeneratedAt time.Time
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Store is the durable mirror interface. Implementations must be safe for
// concurrent use.
type Store interface {
	// Load returns every non-expired record. Called once at startup.
	Load(ctx context.Context) ([]Record, error)
	// Save upserts a record keyed by Record.Key.
	Save(ctx context.Context, rec Record) error
	// Delete removes the record for key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Clear removes all records.
	Clear(ctx context.Context) error
	Close() error
}
