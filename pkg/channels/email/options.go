package email

import (
	"log/slog"

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

// WithDirectory shares an existing address directory.
func WithDirectory(d *Directory) Option {
	return func(c *Channel) {
		if d != nil {
			c.directory = d
		}
	}
}

// WithTemplate overrides the template of tmpl.Type.
func WithTemplate(tmpl notifications.Template) Option {
	return func(c *Channel) {
		c.templates.Set(tmpl)
	}
}

// WithFooter sets the footer line of the HTML layout.
func WithFooter(footer string) Option {
	return func(c *Channel) {
		c.footer = footer
	}
}
