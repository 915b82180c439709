package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/INLOpen/flatindex/core"
	"gopkg.in/yaml.v3"
)

// IndexConfig describes the index files an invocation works with.
type IndexConfig struct {
	KeyLength  int    `yaml:"key_length"`
	Format     string `yaml:"format"`      // "v1" or "raw"
	SearchMode string `yaml:"search_mode"` // "leftmost" or "any"
	// SearchCacheEntries bounds the lookup cache of a batch search. 0 disables it.
	SearchCacheEntries int `yaml:"search_cache_entries"`
}

// BuildConfig holds index-build configurations.
type BuildConfig struct {
	Strategy         string  `yaml:"strategy"` // memory, staged, merge or auto
	ChunkEntries     int     `yaml:"chunk_entries"`
	TempDir          string  `yaml:"temp_dir"`
	SpillCompression string  `yaml:"spill_compression"`
	MemoryFraction   float64 `yaml:"memory_fraction"`
	Preallocate      bool    `yaml:"preallocate"`
	LockTimeout      string  `yaml:"lock_timeout"`
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Output string `yaml:"output"` // stderr, stdout, file, none
	File   string `yaml:"file"`
	Format string `yaml:"format"` // auto, text, json
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol string `yaml:"protocol"` // "grpc" or "http"
}

// DebugConfig holds debugging-related configurations.
type DebugConfig struct {
	FileTracking   bool `yaml:"file_tracking"`
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// HooksConfig configures the built-in hook listeners.
type HooksConfig struct {
	SlowSearchThreshold string `yaml:"slow_search_threshold"` // "0s" disables
	SlowListThreshold   string `yaml:"slow_list_threshold"`
}

// Config is the top-level configuration struct.
type Config struct {
	Index   IndexConfig   `yaml:"index"`
	Build   BuildConfig   `yaml:"build"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Hooks   HooksConfig   `yaml:"hooks"`
	Debug   DebugConfig   `yaml:"debug"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Load reads configuration from an io.Reader.
func Load(r io.Reader) (*Config, error) {
	cfg := &Config{
		Index: IndexConfig{
			Format:             "v1",
			SearchMode:         "leftmost",
			SearchCacheEntries: 1024,
		},
		Build: BuildConfig{
			Strategy:         "auto",
			ChunkEntries:     core.DefaultChunkEntries,
			SpillCompression: "snappy",
			MemoryFraction:   0.5,
			Preallocate:      true,
			LockTimeout:      "0s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			File:   "flatindex.log",
			Format: "auto",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
		Hooks: HooksConfig{
			SlowSearchThreshold: "100ms",
			SlowListThreshold:   "0s",
		},
	}

	// A nil reader is like an empty file.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path. A missing file
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// Validate checks the enumerated settings. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if _, err := core.ParseIndexFormat(c.Index.Format); err != nil {
		errs = append(errs, err)
	}
	if _, err := core.ParseSearchMode(c.Index.SearchMode); err != nil {
		errs = append(errs, err)
	}
	if _, err := core.ParseBuildStrategy(c.Build.Strategy); err != nil {
		errs = append(errs, err)
	}
	if _, err := core.ParseCompressionType(c.Build.SpillCompression); err != nil {
		errs = append(errs, err)
	}
	if c.Index.SearchCacheEntries < 0 {
		errs = append(errs, &core.ValidationError{Field: "index.search_cache_entries", Value: strconv.Itoa(c.Index.SearchCacheEntries), Message: "must not be negative"})
	}
	if c.Build.ChunkEntries < 0 {
		errs = append(errs, &core.ValidationError{Field: "build.chunk_entries", Value: strconv.Itoa(c.Build.ChunkEntries), Message: "must not be negative"})
	}
	if c.Build.MemoryFraction < 0 || c.Build.MemoryFraction > 1 {
		errs = append(errs, &core.ValidationError{Field: "build.memory_fraction", Value: strconv.FormatFloat(c.Build.MemoryFraction, 'g', -1, 64), Message: "must be between 0 and 1"})
	}
	switch c.Logging.Output {
	case "", "stderr", "stdout", "file", "none":
	default:
		errs = append(errs, &core.ValidationError{Field: "logging.output", Value: c.Logging.Output, Message: "expected stderr, stdout, file or none"})
	}
	switch c.Logging.Format {
	case "", "auto", "text", "json":
	default:
		errs = append(errs, &core.ValidationError{Field: "logging.format", Value: c.Logging.Format, Message: "expected auto, text or json"})
	}
	for field, value := range map[string]string{
		"build.lock_timeout":          c.Build.LockTimeout,
		"hooks.slow_search_threshold": c.Hooks.SlowSearchThreshold,
		"hooks.slow_list_threshold":   c.Hooks.SlowListThreshold,
	} {
		if value == "" || value == "0" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d < 0 {
			errs = append(errs, &core.ValidationError{Field: field, Value: value, Message: "expected a non-negative duration"})
		}
	}
	switch c.Tracing.Protocol {
	case "grpc", "http":
	default:
		if c.Tracing.Enabled {
			errs = append(errs, &core.ValidationError{Field: "tracing.protocol", Value: c.Tracing.Protocol, Message: "expected grpc or http"})
		}
	}
	return errors.Join(errs...)
}
