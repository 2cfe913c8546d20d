package processor

import (
	"time"

	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/ratelimiter"
)

// Config holds the processor settings.
type Config struct {
	Workers         int           `env:"NOTIFY_WORKERS" envDefault:"4"`
	QueueSize       int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"10000"`
	SweepInterval   time.Duration `env:"NOTIFY_BATCH_SWEEP_INTERVAL" envDefault:"1s"`
	CleanupInterval time.Duration `env:"NOTIFY_CLEANUP_INTERVAL" envDefault:"1m"`
	MetricsInterval time.Duration `env:"NOTIFY_METRICS_INTERVAL" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"NOTIFY_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	MaxAttempts       int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"3"`
	SendTimeout       time.Duration `env:"NOTIFY_SEND_TIMEOUT" envDefault:"30s"`
	BackoffInitial    time.Duration `env:"NOTIFY_BACKOFF_INITIAL" envDefault:"1s"`
	BackoffMax        time.Duration `env:"NOTIFY_BACKOFF_MAX" envDefault:"30s"`
	BackoffMultiplier float64       `env:"NOTIFY_BACKOFF_MULTIPLIER" envDefault:"2"`
	BackoffJitter     float64       `env:"NOTIFY_BACKOFF_JITTER" envDefault:"0.1"`

	// ThrottleCooldown blocks a user for this long after they breach a cap.
	ThrottleCooldown time.Duration `env:"NOTIFY_THROTTLE_COOLDOWN" envDefault:"0s"`
	DedupWindow      time.Duration `env:"NOTIFY_DEDUP_WINDOW" envDefault:"60m"`

	// Caps for types without a rule. Zero means unlimited.
	DefaultMaxPerHour int `env:"NOTIFY_DEFAULT_MAX_PER_HOUR" envDefault:"100"`
	DefaultMaxPerDay  int `env:"NOTIFY_DEFAULT_MAX_PER_DAY" envDefault:"1000"`

	QuietHours bool `env:"NOTIFY_QUIET_HOURS" envDefault:"true"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		QueueSize:         10_000,
		SweepInterval:     time.Second,
		CleanupInterval:   time.Minute,
		MetricsInterval:   30 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		MaxAttempts:       dispatcher.DefaultMaxAttempts,
		SendTimeout:       dispatcher.DefaultSendTimeout,
		BackoffInitial:    time.Second,
		BackoffMax:        30 * time.Second,
		BackoffMultiplier: 2,
		BackoffJitter:     0.1,
		DedupWindow:       60 * time.Minute,
		DefaultMaxPerHour: 100,
		DefaultMaxPerDay:  1000,
		QuietHours:        true,
	}
}

// withDefaults replaces non-positive values with the defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = d.MetricsInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = d.DedupWindow
	}
	return c
}

// Backoff returns the retry policy described by the config.
func (c Config) Backoff() dispatcher.Backoff {
	return dispatcher.Backoff{
		Initial:    c.BackoffInitial,
		Max:        c.BackoffMax,
		Multiplier: c.BackoffMultiplier,
		Jitter:     c.BackoffJitter,
	}
}

// DefaultLimits are the caps applied to types without a rule.
func (c Config) DefaultLimits() ratelimiter.Limits {
	return ratelimiter.Limits{PerHour: c.DefaultMaxPerHour, PerDay: c.DefaultMaxPerDay}
}
