package bus

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config holds bus retention and timing settings.
type Config struct {
	// HistoryTTL is the maximum age of a history or queue entry.
	// Default: 24h
	HistoryTTL time.Duration

	// MaxHistory caps the history list, keeping the most recent.
	// Default: 10000
	MaxHistory int

	// MaxQueue caps the shared transient queue.
	// Default: 1000
	MaxQueue int

	// PendingTTL is the stale-entry expiry for unclaimed responses.
	// Default: 5m
	PendingTTL time.Duration

	// PollInterval is the sleep between RequestResponse polls.
	// Default: 100ms
	PollInterval time.Duration

	// RequestTimeout is the default RequestResponse timeout, used when
	// the caller passes a non-positive one. Default: 30s
	RequestTimeout time.Duration

	// Logger receives routing and failure events. Default: slog.Default()
	Logger *slog.Logger

	// Persister is the optional durability hook.
	Persister Persister
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HistoryTTL:     24 * time.Hour,
		MaxHistory:     10000,
		MaxQueue:       1000,
		PendingTTL:     5 * time.Minute,
		PollInterval:   100 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
		Logger:         slog.Default(),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HistoryTTL <= 0 {
		c.HistoryTTL = def.HistoryTTL
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = def.MaxHistory
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = def.MaxQueue
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = def.PendingTTL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	return c
}

// tomlConfig is the file and environment representation. Durations are
// strings in Go duration syntax ("24h", "100ms").
type tomlConfig struct {
	HistoryTTL     string `toml:"history_ttl" env:"BUS_HISTORY_TTL"`
	MaxHistory     int    `toml:"max_history" env:"BUS_MAX_HISTORY"`
	MaxQueue       int    `toml:"max_queue" env:"BUS_MAX_QUEUE"`
	PendingTTL     string `toml:"pending_ttl" env:"BUS_PENDING_TTL"`
	PollInterval   string `toml:"poll_interval" env:"BUS_POLL_INTERVAL"`
	RequestTimeout string `toml:"request_timeout" env:"BUS_REQUEST_TIMEOUT"`
}

// LoadConfig builds a Config from defaults, then the TOML file at path
// (skipped when path is empty), then BUS_* environment overrides.
func LoadConfig(path string) (Config, error) {
	var raw tomlConfig
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read bus config: %w", err)
		}
		if _, err := toml.Decode(string(content), &raw); err != nil {
			return Config{}, fmt.Errorf("failed to parse bus config: %w", err)
		}
	}
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("failed to parse bus environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := applyDuration(&cfg.HistoryTTL, raw.HistoryTTL, "history_ttl"); err != nil {
		return Config{}, err
	}
	if err := applyDuration(&cfg.PendingTTL, raw.PendingTTL, "pending_ttl"); err != nil {
		return Config{}, err
	}
	if err := applyDuration(&cfg.PollInterval, raw.PollInterval, "poll_interval"); err != nil {
		return Config{}, err
	}
	if err := applyDuration(&cfg.RequestTimeout, raw.RequestTimeout, "request_timeout"); err != nil {
		return Config{}, err
	}
	if raw.MaxHistory > 0 {
		cfg.MaxHistory = raw.MaxHistory
	}
	if raw.MaxQueue > 0 {
		cfg.MaxQueue = raw.MaxQueue
	}
	return cfg, nil
}

func applyDuration(dst *time.Duration, value, key string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s %q: must be positive", key, value)
	}
	*dst = d
	return nil
}
