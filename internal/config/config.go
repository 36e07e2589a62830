// Package config loads the server configuration from YAML with
// flag-friendly defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gatehouse/go-core/internal/audit"
)

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Policy  PolicyConfig  `yaml:"policy"`
	Session SessionConfig `yaml:"session"`
	Audit   audit.Config  `yaml:"audit"`
}

// ServerConfig holds the listen addresses.
type ServerConfig struct {
	// APIAddr serves the decision and admin API plus /metrics.
	APIAddr string `yaml:"api_addr"`

	// LoginAddr serves the sign-in/sign-out surface.
	LoginAddr string `yaml:"login_addr"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig controls the operational logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console

	// FilePath enables rotated file output; empty logs to stderr.
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxAge     int    `yaml:"max_age"`  // days
	MaxBackups int    `yaml:"max_backups"`
}

// PolicyConfig locates the policy documents.
type PolicyConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// SessionConfig controls the cookie session layer.
type SessionConfig struct {
	CookieName string        `yaml:"cookie_name"`
	ChunkSize  int           `yaml:"chunk_size"`
	TTL        time.Duration `yaml:"ttl"`

	// Codec selects the ticket serialization: "jwt" or "sealed".
	Codec string `yaml:"codec"`
	Key   string `yaml:"key"`

	// Store selects server-side persistence: "", "memory", "redis" or
	// "postgres".
	Store       string `yaml:"store"`
	RedisAddr   string `yaml:"redis_addr"`
	PostgresDSN string `yaml:"postgres_dsn"`

	CookieDomain string `yaml:"cookie_domain"`
	CookiePath   string `yaml:"cookie_path"`
	Secure       bool   `yaml:"secure"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			APIAddr:         ":8080",
			LoginAddr:       ":8081",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
		},
		Policy: PolicyConfig{
			Dir:   "policies",
			Watch: true,
		},
		Session: SessionConfig{
			CookieName: "gatehouse.session",
			TTL:        12 * time.Hour,
			Codec:      "sealed",
			CookiePath: "/",
			Secure:     true,
		},
		Audit: audit.DefaultConfig(),
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Log.Format)
	}

	if c.Policy.Dir == "" {
		return fmt.Errorf("policy dir is required")
	}

	switch c.Session.Codec {
	case "jwt", "sealed":
	default:
		return fmt.Errorf("invalid session codec: %s (must be jwt or sealed)", c.Session.Codec)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.Session.ChunkSize < 0 {
		return fmt.Errorf("session chunk size must not be negative")
	}

	switch c.Session.Store {
	case "", "memory":
	case "redis":
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis session store")
		}
	case "postgres":
		if c.Session.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required for the postgres session store")
		}
	default:
		return fmt.Errorf("invalid session store: %s", c.Session.Store)
	}

	return nil
}
