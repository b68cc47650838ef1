package semcache

import "errors"

// Sentinel errors surfaced by the cache. Index-level errors
// (dimension/normalization) are defined in internal/index and wrapped.
var (
	// ErrWaitTimeout is returned to a caller that waited past its deadline
	// for another caller's in-flight computation. The computation itself is
	// unaffected and still completes for everyone else.
	ErrWaitTimeout = errors.New("semcache: timed out waiting for in-flight computation")

	// ErrClosed is returned by operations on a cache after Close.
	ErrClosed = errors.New("semcache: cache is closed")
)
