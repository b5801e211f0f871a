// Package config provides configuration loading and hot reload for
// applications embedding the framework.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the framework's file-backed configuration.
type Config struct {
	// SaveLocation is the root directory for persistent caches. Empty
	// keeps caches in memory.
	SaveLocation string `yaml:"save_location"`

	// CacheBackend selects the content-cache backend: "memory",
	// "sqlite" (requires SaveLocation), or "redis".
	CacheBackend string `yaml:"cache_backend"`

	// Redis configures the redis backend when selected.
	Redis RedisConfig `yaml:"redis"`

	// LogLevel is a zerolog level name: trace, debug, info, warn,
	// error.
	LogLevel string `yaml:"log_level"`

	// MetricsPrefix overrides the Prometheus metric name prefix.
	MetricsPrefix string `yaml:"metrics_prefix"`
}

// RedisConfig holds the redis backend connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		CacheBackend: "memory",
		LogLevel:     "info",
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case "", "memory":
	case "sqlite":
		if c.SaveLocation == "" {
			return fmt.Errorf("cache_backend %q requires save_location", c.CacheBackend)
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("cache_backend %q requires redis.addr", c.CacheBackend)
		}
	default:
		return fmt.Errorf("unknown cache_backend %q", c.CacheBackend)
	}

	switch c.LogLevel {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}
