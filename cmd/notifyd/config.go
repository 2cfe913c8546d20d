package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Storage backends.
const (
	storageMemory   = "memory"
	storagePostgres = "postgres"
)

// appConfig holds the settings owned by the binary itself. Component
// settings live in each package's Config.
type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Name     string `env:"APP_NAME" envDefault:"notifyd"`
	LogLevel string `env:"LOG_LEVEL"` // Overrides the environment preset when set.

	Storage string `env:"STORAGE" envDefault:"memory"` // memory or postgres
	Redis   bool   `env:"REDIS_ENABLED" envDefault:"false"`

	EmailEnabled    bool `env:"EMAIL_ENABLED" envDefault:"true"`
	PushEnabled     bool `env:"PUSH_ENABLED" envDefault:"false"`
	RealtimeEnabled bool `env:"REALTIME_ENABLED" envDefault:"true"`

	RulesFile       string        `env:"RULES_FILE"`
	StreamHeartbeat time.Duration `env:"STREAM_HEARTBEAT" envDefault:"25s"`

	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"notifykit"`
}

// Validate implements config.Validator.
func (c appConfig) Validate() error {
	switch c.Storage {
	case storageMemory, storagePostgres:
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", storageMemory, storagePostgres, c.Storage)
	}
	if c.LogLevel != "" {
		if _, err := c.level(); err != nil {
			return err
		}
	}
	return nil
}

func (c appConfig) level() (slog.Level, error) {
	l, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return l, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return l, nil
}
