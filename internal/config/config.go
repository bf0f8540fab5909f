// Package config loads engine and CLI settings from a YAML file, with
// environment overrides.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/xqcore/internal/engine"
)

// Config is the full configuration of an xqc run.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Store  StoreConfig  `yaml:"store"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig contains compilation and evaluation limits.
type EngineConfig struct {
	MaxPasses int           `yaml:"max_passes"`
	MaxSteps  int           `yaml:"max_steps"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
}

// StoreConfig locates the record store.
type StoreConfig struct {
	// Path is the SQLite database file. Empty means no store: collections
	// are unavailable and no index is negotiated.
	Path string `yaml:"path"`

	// Indexes enables index negotiation against the store.
	Indexes bool `yaml:"indexes"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			MaxPasses: engine.DefaultMaxPasses,
			MaxSteps:  engine.DefaultMaxSteps,
			CacheSize: engine.DefaultCacheSize,
		},
		Store: StoreConfig{Indexes: true},
		Log:   LogConfig{Level: "warn", Format: "text"},
	}
}

// Load reads configuration with priority: env > file > defaults.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides settings from XQC_* environment variables. Values
// that do not parse are ignored.
func applyEnv(cfg *Config) {
	if v := os.Getenv("XQC_MAX_PASSES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxPasses = n
		}
	}
	if v := os.Getenv("XQC_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxSteps = n
		}
	}
	if v := os.Getenv("XQC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.Timeout = d
		}
	}
	if v := os.Getenv("XQC_STORE"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("XQC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Engine.MaxPasses < 1 {
		return fmt.Errorf("engine.max_passes must be >= 1")
	}
	if c.Engine.MaxSteps < 1 {
		return fmt.Errorf("engine.max_steps must be >= 1")
	}
	if c.Engine.Timeout < 0 {
		return fmt.Errorf("engine.timeout must not be negative")
	}
	if c.Engine.CacheSize < 0 {
		return fmt.Errorf("engine.cache_size must not be negative")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// EngineOptions converts the engine settings to engine options.
func (c Config) EngineOptions() []engine.EngineOption {
	return []engine.EngineOption{
		engine.WithMaxPasses(c.Engine.MaxPasses),
		engine.WithMaxSteps(c.Engine.MaxSteps),
		engine.WithTimeout(c.Engine.Timeout),
		engine.WithCacheSize(c.Engine.CacheSize),
	}
}

// Logger builds the configured logger writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
}
