package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/dmitrymomot/notifykit/pkg/async"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	mailer "github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/email/templates"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/ratelimit"
)

// DefaultFooter is appended to every HTML email.
const DefaultFooter = "You are receiving this email because of your notification settings."

// Channel delivers notifications by email through a mailer.EmailSender.
type Channel struct {
	sender    mailer.EmailSender
	directory *Directory
	templates *dispatcher.TemplateSet
	footer    string
	logger    *slog.Logger

	sent     atomic.Int64
	failed   atomic.Int64
	bounced  atomic.Int64
	rejected atomic.Int64
}

// New creates an email channel over sender.
func New(sender mailer.EmailSender, opts ...Option) *Channel {
	c := &Channel{
		sender:    sender,
		directory: NewDirectory(),
		templates: dispatcher.NewTemplateSet(DefaultTemplates()),
		footer:    DefaultFooter,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProviderLimits returns the send quota configured for the email provider.
func ProviderLimits(cfg mailer.Config) ratelimit.Limits {
	return ratelimit.Limits{PerMinute: cfg.RatePerMinute, PerHour: cfg.RatePerHour}
}

func (c *Channel) Kind() notifications.Channel { return notifications.ChannelEmail }

// Directory exposes the address directory.
func (c *Channel) Directory() *Directory { return c.directory }

// Templates exposes the template set.
func (c *Channel) Templates() *dispatcher.TemplateSet { return c.templates }

func (c *Channel) Template(t notifications.Type) (notifications.Template, bool) {
	return c.templates.Template(t)
}

// Render fills the payload and, unless the template carries its own HTML,
// wraps the title and body in the standard layout.
func (c *Channel) Render(n notifications.Notification, tmpl notifications.Template) (dispatcher.Payload, error) {
	p, err := dispatcher.RenderPayload(n, tmpl)
	if err != nil {
		return p, err
	}
	if p.HTML != "" {
		return p, nil
	}

	html, err := templates.Render(context.Background(), templates.Layout(templates.LayoutParams{
		Title:     p.Title,
		Preheader: firstLine(p.Body),
		Body:      p.Body,
		ActionURL: p.ActionURL,
		Footer:    c.footer,
	}))
	if err != nil {
		return dispatcher.Payload{}, fmt.Errorf("%w: %w", dispatcher.ErrRender, err)
	}
	p.HTML = html
	return p, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// Targets returns the user's active address.
func (c *Channel) Targets(_ context.Context, userID string) ([]string, error) {
	return c.directory.Targets(userID), nil
}

// DeactivateTarget marks a bounced address inactive.
func (c *Channel) DeactivateTarget(_ context.Context, userID, addr string) error {
	return c.directory.Deactivate(userID, addr)
}

// Send emails payload to addr.
func (c *Channel) Send(ctx context.Context, payload dispatcher.Payload, addr string) *async.Future[dispatcher.Result] {
	return async.Async(ctx, addr, func(ctx context.Context, addr string) (dispatcher.Result, error) {
		return c.send(ctx, payload, addr), nil
	})
}

func (c *Channel) send(ctx context.Context, payload dispatcher.Payload, addr string) dispatcher.Result {
	res := dispatcher.Result{Channel: notifications.ChannelEmail, Target: addr}

	id, err := c.sender.SendEmail(ctx, mailer.SendEmailParams{
		SendTo:   addr,
		Subject:  payload.Subject,
		BodyHTML: payload.HTML,
		BodyText: payload.Body,
		Tag:      string(payload.Type),
	})
	if err == nil {
		c.sent.Add(1)
		res.Success = true
		res.MessageID = id
		return res
	}

	res.Err = classify(err)
	switch {
	case errors.Is(res.Err, dispatcher.ErrTokenInvalid):
		res.TokenInvalid = true
		c.bounced.Add(1)
	case errors.Is(res.Err, dispatcher.ErrPermanent):
		c.rejected.Add(1)
	default:
		c.failed.Add(1)
	}

	c.logger.LogAttrs(ctx, slog.LevelDebug, "email send failed",
		logger.NotificationID(payload.NotificationID),
		logger.UserID(payload.UserID),
		logger.Error(err),
	)
	return res
}

// classify maps mailer errors onto the dispatcher's retry classes.
func classify(err error) error {
	switch {
	case errors.Is(err, mailer.ErrRecipientRejected):
		return fmt.Errorf("%w: %w", dispatcher.ErrTokenInvalid, err)
	case errors.Is(err, mailer.ErrMessageRejected), errors.Is(err, mailer.ErrInvalidParams):
		return fmt.Errorf("%w: %w", dispatcher.ErrPermanent, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", dispatcher.ErrTransient, err)
	}
}

// Stats returns the channel counters.
func (c *Channel) Stats() map[string]int64 {
	return map[string]int64{
		"sent":      c.sent.Load(),
		"failed":    c.failed.Load(),
		"bounced":   c.bounced.Load(),
		"rejected":  c.rejected.Load(),
		"addresses": int64(c.directory.Len()),
	}
}

// Health reports whether a sender is configured.
func (c *Channel) Health(context.Context) error {
	if c.sender == nil {
		return fmt.Errorf("%w: no sender", mailer.ErrInvalidConfig)
	}
	return nil
}
