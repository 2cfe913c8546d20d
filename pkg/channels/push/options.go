package push

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRegistry shares an existing device registry.
func WithRegistry(r *Registry) Option {
	return func(c *Channel) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithCircuitBreaker replaces the default gateway breaker.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(c *Channel) {
		if cb != nil {
			c.breaker = cb
		}
	}
}

// WithTemplate overrides the template of tmpl.Type.
func WithTemplate(tmpl notifications.Template) Option {
	return func(c *Channel) {
		c.templates.Set(tmpl)
	}
}

// WithBadges toggles badge counting. Enabled by default.
func WithBadges(enabled bool) Option {
	return func(c *Channel) {
		c.badges = enabled
	}
}

// WithClock sets the time source of the registry and breaker.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) {
		if now != nil {
			c.now = now
		}
	}
}
