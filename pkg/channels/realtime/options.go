package realtime

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

const (
	DefaultStaleAfter = 5 * time.Minute
	DefaultMaxUsers   = 100_000
	DefaultBuffer     = 64
	DefaultEventRate  = rate.Limit(10)
	DefaultEventBurst = 20
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

// WithStaleAfter sets how long a session may go without a ping.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.staleAfter = d
		}
	}
}

// WithMaxUsers bounds the number of users with a live hub. The least
// recently used hub is closed when the bound is exceeded.
func WithMaxUsers(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.maxUsers = n
		}
	}
}

// WithBuffer sets the per-session event buffer. A session whose buffer is
// full is dropped.
func WithBuffer(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithSessionRate caps notification events per session. A zero limit
// disables the cap.
func WithSessionRate(limit rate.Limit, burst int) Option {
	return func(c *Channel) {
		c.eventRate = limit
		c.eventBurst = burst
	}
}

// WithTemplate overrides the template of tmpl.Type.
func WithTemplate(tmpl notifications.Template) Option {
	return func(c *Channel) {
		c.templates.Set(tmpl)
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) {
		if now != nil {
			c.now = now
		}
	}
}
