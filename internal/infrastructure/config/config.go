package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/probehost/internal/shared/paths"
)

// Config holds all host configuration.
//
// Precedence: Default() < probehost.toml < environment < CLI flags.
// Env tags carry no defaults so that unset variables leave file values alone.
type Config struct {
	Runtime RuntimeConfig `toml:"runtime"`
	Plugins PluginsConfig `toml:"plugins"`
	HTTP    HTTPConfig    `toml:"http"`
	Storage StorageConfig `toml:"storage"`
	Server  ServerConfig  `toml:"server"`
	Logging LogConfig     `toml:"logging"`
}

// RuntimeConfig holds probe execution configuration.
type RuntimeConfig struct {
	TimeoutMS      int    `toml:"timeout_ms" envconfig:"PROBE_TIMEOUT_MS"`
	MaxConcurrency int    `toml:"max_concurrency" envconfig:"PROBE_MAX_CONCURRENCY"`
	HistorySize    int    `toml:"history_size" envconfig:"PROBE_HISTORY_SIZE"`
	AppDataDir     string `toml:"app_data_dir" envconfig:"APP_DATA_DIR"`
	Version        string `toml:"version" envconfig:"APP_VERSION"`
}

// PluginsConfig holds plugin discovery configuration.
type PluginsConfig struct {
	Dirs   []string `toml:"dirs" envconfig:"PLUGIN_DIRS"`
	Ignore []string `toml:"ignore" envconfig:"PLUGIN_IGNORE"`
}

// HTTPConfig holds the http capability configuration.
type HTTPConfig struct {
	DefaultTimeoutMS int     `toml:"default_timeout_ms" envconfig:"HTTP_DEFAULT_TIMEOUT_MS"`
	MaxTimeoutMS     int     `toml:"max_timeout_ms" envconfig:"HTTP_MAX_TIMEOUT_MS"`
	RateLimitRPS     float64 `toml:"rate_limit_rps" envconfig:"HTTP_RATE_LIMIT_RPS"`
	MaxBodyBytes     int64   `toml:"max_body_bytes" envconfig:"HTTP_MAX_BODY_BYTES"`
	Retries          int     `toml:"retries" envconfig:"HTTP_RETRIES"`
	UserAgent        string  `toml:"user_agent" envconfig:"HTTP_USER_AGENT"`
}

// StorageConfig holds the sqlite capability configuration.
type StorageConfig struct {
	BusyTimeoutMS int `toml:"busy_timeout_ms" envconfig:"SQLITE_BUSY_TIMEOUT_MS"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        string   `toml:"port" envconfig:"PORT"`
	Host        string   `toml:"host" envconfig:"HOST"`
	CORSOrigins []string `toml:"cors_origins" envconfig:"CORS_ORIGINS"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level" envconfig:"LOG_LEVEL"`
	Development bool   `toml:"development" envconfig:"LOG_DEV"`
}

// Load builds configuration from defaults, the optional TOML file and the
// environment.
func Load() (*Config, error) {
	cfg := Default()
	// Re-derived below once the final data dir is known.
	cfg.Plugins.Dirs = nil

	// The file location depends on APP_DATA_DIR, which may only be in the env.
	dataDir := cfg.Runtime.AppDataDir
	if env := os.Getenv("APP_DATA_DIR"); env != "" {
		dataDir = env
	}
	configPath := os.Getenv("PROBEHOST_CONFIG")
	if configPath == "" {
		configPath = paths.New(dataDir).ConfigPath()
	}
	if err := LoadFile(cfg, configPath); err != nil {
		return nil, err
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges a TOML file into cfg. A missing file is not an error.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadOrDefault loads configuration or returns the default on error.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	cfg := &Config{
		Runtime: RuntimeConfig{
			TimeoutMS:      10000,
			MaxConcurrency: 4,
			HistorySize:    50,
			AppDataDir:     paths.DefaultAppDataDir(),
			Version:        "0.1.0",
		},
		HTTP: HTTPConfig{
			DefaultTimeoutMS: 10000,
			MaxTimeoutMS:     60000,
			RateLimitRPS:     0,
			MaxBodyBytes:     10 << 20,
			Retries:          2,
			UserAgent:        "probehost/0.1",
		},
		Storage: StorageConfig{
			BusyTimeoutMS: 5000,
		},
		Server: ServerConfig{
			Port: "8787",
			Host: "127.0.0.1",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
	cfg.applyDerived()
	return cfg
}

// applyDerived fills values that depend on other fields.
func (c *Config) applyDerived() {
	if len(c.Plugins.Dirs) == 0 {
		c.Plugins.Dirs = []string{paths.New(c.Runtime.AppDataDir).PluginsRoot()}
	}
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	if c.Runtime.TimeoutMS <= 0 {
		return fmt.Errorf("PROBE_TIMEOUT_MS must be positive, got %d", c.Runtime.TimeoutMS)
	}
	if c.Runtime.MaxConcurrency <= 0 {
		return fmt.Errorf("PROBE_MAX_CONCURRENCY must be positive, got %d", c.Runtime.MaxConcurrency)
	}
	if c.HTTP.DefaultTimeoutMS <= 0 || c.HTTP.MaxTimeoutMS < c.HTTP.DefaultTimeoutMS {
		return fmt.Errorf("HTTP timeouts invalid: default %dms, max %dms", c.HTTP.DefaultTimeoutMS, c.HTTP.MaxTimeoutMS)
	}
	if c.HTTP.Retries < 0 || c.HTTP.Retries > 10 {
		return fmt.Errorf("HTTP retries must be between 0 and 10, got %d", c.HTTP.Retries)
	}
	if c.Runtime.AppDataDir == "" {
		return fmt.Errorf("APP_DATA_DIR must not be empty")
	}
	return nil
}

// RunTimeout returns the run-level deadline.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Runtime.TimeoutMS) * time.Millisecond
}

// Layout returns the app data layout.
func (c *Config) Layout() paths.Layout {
	return paths.New(c.Runtime.AppDataDir)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
