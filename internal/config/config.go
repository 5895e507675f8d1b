// Package config loads server configuration from HEIST_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Flag store backends.
const (
	StoreMemory = "memory"
	StoreBbolt  = "bbolt"
	StoreRedis  = "redis"
)

// Config is the server configuration. Command-line flags override the
// environment.
type Config struct {
	Addr    string `env:"HEIST_ADDR"     envDefault:":8080"`
	TLSCert string `env:"HEIST_TLS_CERT"`
	TLSKey  string `env:"HEIST_TLS_KEY"`

	Store           string        `env:"HEIST_STORE"            envDefault:"memory"`
	DataDir         string        `env:"HEIST_DATA_DIR"         envDefault:"./data"`
	RedisAddr       string        `env:"HEIST_REDIS_ADDR"       envDefault:"localhost:6379"`
	RedisPassword   string        `env:"HEIST_REDIS_PASSWORD"`
	RedisDB         int           `env:"HEIST_REDIS_DB"         envDefault:"0"`
	RedisPrefix     string        `env:"HEIST_REDIS_PREFIX"     envDefault:"heist"`
	JanitorInterval time.Duration `env:"HEIST_JANITOR_INTERVAL" envDefault:"10m"`

	// SessionSecret seeds the session signing key. When empty a random
	// secret is generated and sessions do not survive a restart.
	SessionSecret string        `env:"HEIST_SESSION_SECRET"`
	SessionTTL    time.Duration `env:"HEIST_SESSION_TTL"    envDefault:"24h"`

	CatalogPath string `env:"HEIST_CATALOG"`
	FinalFlag   string `env:"HEIST_FINAL_FLAG"`

	// AlertWebhookURL receives anomaly alerts as JSON when set.
	AlertWebhookURL  string `env:"HEIST_ALERT_WEBHOOK_URL"`
	AlertWebhookAuth string `env:"HEIST_ALERT_WEBHOOK_AUTH"`

	LogLevel  string `env:"HEIST_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"HEIST_LOG_FORMAT" envDefault:"json"`
}

// Load parses the environment into a Config. It does not validate; call
// Validate once flag overrides have been applied.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreBbolt, StoreRedis:
	default:
		return fmt.Errorf("unknown store %q (want %s, %s or %s)", c.Store, StoreMemory, StoreBbolt, StoreRedis)
	}
	if c.Store == StoreBbolt && strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data directory is required for the bbolt store")
	}
	if c.Store == StoreRedis {
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("redis address is required for the redis store")
		}
		if strings.TrimSpace(c.RedisPrefix) == "" {
			return errors.New("redis key prefix must not be empty")
		}
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	}
	if c.JanitorInterval <= 0 {
		return fmt.Errorf("janitor interval must be positive, got %s", c.JanitorInterval)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("tls cert and key must be set together")
	}
	if c.AlertWebhookURL != "" {
		u, err := url.Parse(c.AlertWebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("alert webhook url %q must be an absolute http(s) url", c.AlertWebhookURL)
		}
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q (want json or text)", c.LogFormat)
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
