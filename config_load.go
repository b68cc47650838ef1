package semcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of Config. Durations are plain seconds so
// the file stays toolable from any language.
type fileConfig struct {
	Dimension            int                `json:"dimension" yaml:"dimension"`
	Threshold            float32            `json:"threshold" yaml:"threshold"`
	TTLSeconds           int                `json:"ttl_seconds" yaml:"ttl_seconds"`
	Capacity             int                `json:"capacity" yaml:"capacity"`
	WaitTimeoutSeconds   int                `json:"wait_timeout_seconds" yaml:"wait_timeout_seconds"`
	SweepIntervalSeconds int                `json:"sweep_interval_seconds" yaml:"sweep_interval_seconds"`
	Persistence          *PersistenceConfig `json:"persistence,omitempty" yaml:"persistence,omitempty"`
}

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	cfg := Config{
		Dimension:     fc.Dimension,
		Threshold:     fc.Threshold,
		TTL:           time.Duration(fc.TTLSeconds) * time.Second,
		Capacity:      fc.Capacity,
		WaitTimeout:   time.Duration(fc.WaitTimeoutSeconds) * time.Second,
		SweepInterval: time.Duration(fc.SweepIntervalSeconds) * time.Second,
		Persistence:   fc.Persistence,
	}
	return &cfg, nil
}

// ValidateConfig validates a Config for correctness. Zero values that New
// would default are accepted.
func ValidateConfig(cfg Config) error {
	if cfg.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0, 1], got %v", cfg.Threshold)
	}
	if cfg.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}
	if cfg.Capacity < 0 {
		return fmt.Errorf("capacity must not be negative")
	}
	if p := cfg.Persistence; p != nil {
		switch p.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("unknown persistence driver: %q", p.Driver)
		}
		if p.Driver == "postgres" && p.DSN == "" {
			return fmt.Errorf("postgres persistence requires a dsn")
		}
	}
	return nil
}
