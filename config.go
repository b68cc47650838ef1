package semcache

import "time"

// Config holds the configuration for a Cache instance. The zero value is
// usable apart from Dimension, which must match the embedder; New fills in
// defaults for everything else.
type Config struct {
	// Dimension is the embedding vector dimension. Required; must match the
	// embedder's output dimension.
	Dimension int `json:"dimension" yaml:"dimension"`
	// Threshold is the minimum cosine similarity (inclusive) for a lookup to
	// count as a hit. Defaults to 0.95.
	Threshold float32 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// TTL is how long an entry stays servable after insertion. Defaults to 1h.
	TTL time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	// Capacity bounds the number of live entries; the least recently used
	// entry is evicted to admit a new one. Defaults to 1024.
	Capacity int `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	// WaitTimeout bounds how long a caller waits on another caller's
	// in-flight computation, in addition to its own context deadline.
	// Defaults to 30s.
	WaitTimeout time.Duration `json:"wait_timeout,omitempty" yaml:"wait_timeout,omitempty"`
	// SweepInterval is the period of the background TTL sweep. Defaults to 1m.
	SweepInterval time.Duration `json:"sweep_interval,omitempty" yaml:"sweep_interval,omitempty"`
	// Persistence configures the optional durable mirror. Nil means
	// memory-only operation.
	Persistence *PersistenceConfig `json:"persistence,omitempty" yaml:"persistence,omitempty"`
}

// PersistenceConfig selects the durable store backend.
type PersistenceConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `json:"driver" yaml:"driver"`
	// DSN is the driver-specific data source name (a file path for sqlite).
	DSN string `json:"dsn" yaml:"dsn"`
}

// Configuration defaults applied by New.
const (
	DefaultThreshold     = 0.95
	DefaultTTL           = time.Hour
	DefaultCapacity      = 1024
	DefaultWaitTimeout   = 30 * time.Second
	DefaultSweepInterval = time.Minute
)

func (c Config) withDefaults() Config {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}
