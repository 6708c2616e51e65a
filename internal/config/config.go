// Package config reads formflow settings from FORMFLOW_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends accepted by FORMFLOW_STORAGE.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageBadger = "badger"
	StorageRedis  = "redis"
)

// Config is the process-wide configuration for the CLI and embedding hosts.
type Config struct {
	LogLevel  string `env:"FORMFLOW_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"FORMFLOW_LOG_FORMAT" envDefault:"text"`

	AutoSaveInterval       time.Duration `env:"FORMFLOW_AUTOSAVE_INTERVAL" envDefault:"30s"`
	LowConfidenceThreshold float64       `env:"FORMFLOW_LOW_CONFIDENCE_THRESHOLD" envDefault:"0.7"`

	Storage    string        `env:"FORMFLOW_STORAGE" envDefault:"sqlite"`
	SQLitePath string        `env:"FORMFLOW_SQLITE_PATH" envDefault:".formflow/formflow.db"`
	BadgerPath string        `env:"FORMFLOW_BADGER_PATH" envDefault:".formflow/badger"`
	RedisURL   string        `env:"FORMFLOW_REDIS_URL"`
	RedisTTL   time.Duration `env:"FORMFLOW_REDIS_TTL"`

	TemplateDir string `env:"FORMFLOW_TEMPLATE_DIR" envDefault:"templates"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses environ instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and backend-specific requirements.
func (c Config) Validate() error {
	var errs []error
	if c.AutoSaveInterval <= 0 {
		errs = append(errs, fmt.Errorf("config: FORMFLOW_AUTOSAVE_INTERVAL must be positive, got %s", c.AutoSaveInterval))
	}
	if c.LowConfidenceThreshold < 0 || c.LowConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("config: FORMFLOW_LOW_CONFIDENCE_THRESHOLD must be within [0, 1], got %v", c.LowConfidenceThreshold))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: FORMFLOW_LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	switch c.Storage {
	case StorageMemory:
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("config: FORMFLOW_SQLITE_PATH is required for sqlite storage"))
		}
	case StorageBadger:
		if strings.TrimSpace(c.BadgerPath) == "" {
			errs = append(errs, errors.New("config: FORMFLOW_BADGER_PATH is required for badger storage"))
		}
	case StorageRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			errs = append(errs, errors.New("config: FORMFLOW_REDIS_URL is required for redis storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown storage backend %q", c.Storage))
	}
	return errors.Join(errs...)
}
