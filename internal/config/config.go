// Package config loads the songdb server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendJSONL  = "jsonl"
)

// Durability policies.
const (
	PolicyBuffered = "buffered"
	PolicySync     = "sync"
)

// Backends lists the accepted values for StorageConfig.Backend.
var Backends = []string{BackendBolt, BackendSQLite, BackendJSONL}

// Config is the root of the YAML document.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	HTTP           string          `yaml:"http"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig limits mutating requests per client IP.
type RateLimitConfig struct {
	Enabled         bool `yaml:"enabled"`
	WritesPerMinute int  `yaml:"writes_per_minute"`
	Burst           int  `yaml:"burst"`
}

// StorageConfig selects the backend and how writes become durable.
type StorageConfig struct {
	DataDir       string        `yaml:"data_dir"`
	Backend       string        `yaml:"backend"`
	FlushPolicy   string        `yaml:"flush_policy"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LoggingConfig holds the log settings. Level is re-read when the file
// changes.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTP:           ":8080",
			RequestTimeout: 10 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:         true,
				WritesPerMinute: 6000,
				Burst:           500,
			},
		},
		Storage: StorageConfig{
			DataDir:       "./data",
			Backend:       BackendBolt,
			FlushPolicy:   PolicyBuffered,
			FlushInterval: 200 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration from r on top of Default. A nil or empty
// reader yields the defaults. The result is not validated.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()
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

// LoadConfig reads the configuration file at path. A missing file yields the
// defaults.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is provided by the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.HTTP == "" {
		return errors.New("server.http is required")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive, got %s", c.Server.RequestTimeout)
	}
	if rl := c.Server.RateLimit; rl.Enabled && (rl.WritesPerMinute <= 0 || rl.Burst <= 0) {
		return fmt.Errorf("server.rate_limit needs positive writes_per_minute and burst, got %d and %d", rl.WritesPerMinute, rl.Burst)
	}
	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	switch c.Storage.Backend {
	case BackendBolt, BackendSQLite, BackendJSONL:
	default:
		return fmt.Errorf("unknown storage.backend %q, want one of %v", c.Storage.Backend, Backends)
	}
	switch c.Storage.FlushPolicy {
	case PolicyBuffered:
		if c.Storage.FlushInterval <= 0 {
			return fmt.Errorf("storage.flush_interval must be positive, got %s", c.Storage.FlushInterval)
		}
	case PolicySync:
	default:
		return fmt.Errorf("unknown storage.flush_policy %q, want %q or %q", c.Storage.FlushPolicy, PolicyBuffered, PolicySync)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses Logging.Level ("debug", "info", "warn", "error").
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return 0, fmt.Errorf("invalid logging.level %q: %w", c.Logging.Level, err)
	}
	return l, nil
}
