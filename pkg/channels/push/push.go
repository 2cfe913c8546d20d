package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/async"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/ratelimit"
)

// Channel delivers notifications to the user's registered devices through
// a Provider.
type Channel struct {
	provider  Provider
	registry  *Registry
	breaker   *CircuitBreaker
	templates *dispatcher.TemplateSet
	badges    bool
	logger    *slog.Logger
	now       func() time.Time

	sent         atomic.Int64
	failed       atomic.Int64
	tokenInvalid atomic.Int64
	rejected     atomic.Int64
}

// New creates a push channel over provider.
func New(provider Provider, opts ...Option) *Channel {
	c := &Channel{
		provider:  provider,
		templates: dispatcher.NewTemplateSet(DefaultTemplates()),
		badges:    true,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry(DefaultTokenTTL, c.now)
	}
	if c.breaker == nil {
		c.breaker = NewCircuitBreaker(0, 0, 0)
	}
	c.breaker.now = c.now
	return c
}

// NewFromConfig builds the HTTP gateway provider, registry and breaker from cfg.
func NewFromConfig(cfg Config, opts ...Option) (*Channel, error) {
	provider, err := NewHTTPProvider(cfg.GatewayURL, cfg.APIKey, cfg.SigningSecret, nil, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithRegistry(NewRegistry(cfg.TokenTTL, nil)),
		WithCircuitBreaker(NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerSuccesses, cfg.BreakerRecovery)),
	}
	return New(provider, append(base, opts...)...), nil
}

// ProviderLimits is the gateway quota of cfg.
func (cfg Config) ProviderLimits() ratelimit.Limits {
	return ratelimit.Limits{PerMinute: cfg.RatePerMinute, PerHour: cfg.RatePerHour}
}

func (c *Channel) Kind() notifications.Channel { return notifications.ChannelPush }

// Registry exposes the device registry for registration endpoints.
func (c *Channel) Registry() *Registry { return c.registry }

// Templates exposes the template set.
func (c *Channel) Templates() *dispatcher.TemplateSet { return c.templates }

func (c *Channel) Template(t notifications.Type) (notifications.Template, bool) {
	return c.templates.Template(t)
}

func (c *Channel) Render(n notifications.Notification, tmpl notifications.Template) (dispatcher.Payload, error) {
	return dispatcher.RenderPayload(n, tmpl)
}

// Targets returns the user's active device tokens.
func (c *Channel) Targets(_ context.Context, userID string) ([]string, error) {
	return c.registry.ActiveTokens(userID), nil
}

// DeactivateTarget retires a token the gateway reported as gone.
func (c *Channel) DeactivateTarget(_ context.Context, _ string, token string) error {
	return c.registry.Deactivate(token)
}

// Send pushes payload to one device token.
func (c *Channel) Send(ctx context.Context, payload dispatcher.Payload, token string) *async.Future[dispatcher.Result] {
	return async.Async(ctx, token, func(ctx context.Context, token string) (dispatcher.Result, error) {
		return c.send(ctx, payload, token), nil
	})
}

func (c *Channel) send(ctx context.Context, payload dispatcher.Payload, token string) (res dispatcher.Result) {
	res = dispatcher.Result{Channel: notifications.ChannelPush, Target: token, StartedAt: c.now()}
	defer func() { res.CompletedAt = c.now() }()

	device, ok := c.registry.Device(token)
	if !ok || !device.Active {
		res.TokenInvalid = true
		res.Err = fmt.Errorf("%w: %w", dispatcher.ErrTokenInvalid, ErrDeviceNotFound)
		c.tokenInvalid.Add(1)
		return res
	}

	if !c.breaker.Allow() {
		c.rejected.Add(1)
		res.Err = fmt.Errorf("%w: %w", dispatcher.ErrTransient, ErrCircuitOpen)
		return res
	}

	msg := c.message(payload, device)
	resp, err := c.provider.Send(ctx, msg)
	res.MessageID = resp.MessageID
	res.ErrorCode = resp.ErrorCode
	res.RetryAfter = resp.RetryAfter

	switch {
	case err == nil:
		c.breaker.RecordSuccess()
		c.registry.Touch(token)
		if c.badges {
			c.registry.IncrementBadge(payload.UserID, payload.NotificationID)
		}
		c.sent.Add(1)
		res.Success = true
	case resp.TokenInvalid || errors.Is(err, dispatcher.ErrTokenInvalid):
		// The gateway answered; only the device is dead.
		c.breaker.RecordSuccess()
		c.tokenInvalid.Add(1)
		res.TokenInvalid = true
		res.Err = err
	case errors.Is(err, dispatcher.ErrPermanent):
		c.breaker.RecordSuccess()
		c.failed.Add(1)
		res.Err = err
	default:
		c.breaker.RecordFailure()
		c.failed.Add(1)
		res.Err = err
	}

	if res.Err != nil {
		c.logger.LogAttrs(ctx, slog.LevelDebug, "push send failed",
			logger.NotificationID(payload.NotificationID),
			logger.UserID(payload.UserID),
			slog.String("platform", string(device.Platform)),
			logger.Error(res.Err),
		)
	}
	return res
}

func (c *Channel) message(p dispatcher.Payload, d Device) Message {
	msg := Message{
		Token:       d.Token,
		Platform:    d.Platform,
		Title:       p.Title,
		Body:        p.Body,
		Sound:       "default",
		ClickAction: p.ActionURL,
		CollapseKey: p.GroupKey,
		Priority:    "normal",
		Data: map[string]string{
			"notification_id": p.NotificationID,
			"type":            string(p.Type),
		},
	}
	if p.TrackingID != "" {
		msg.Data["tracking_id"] = p.TrackingID
	}
	if p.Priority >= notifications.PriorityHigh {
		msg.Priority = "high"
	}
	if !p.ExpiresAt.IsZero() {
		msg.ExpiresAt = p.ExpiresAt.Unix()
	}
	if c.badges {
		msg.Badge = c.registry.NextBadge(p.UserID, p.NotificationID)
		msg.Data["badge"] = strconv.Itoa(msg.Badge)
	}
	return msg
}

// Stats returns the channel counters.
func (c *Channel) Stats() map[string]int64 {
	return map[string]int64{
		"sent":             c.sent.Load(),
		"failed":           c.failed.Load(),
		"token_invalid":    c.tokenInvalid.Load(),
		"circuit_rejected": c.rejected.Load(),
		"devices":          int64(c.registry.Len()),
	}
}

// Health fails while the gateway circuit is open.
func (c *Channel) Health(context.Context) error {
	if c.breaker.State() == CircuitOpen {
		return ErrCircuitOpen
	}
	return nil
}

// Cleanup drops inactive and expired devices.
func (c *Channel) Cleanup() int {
	return c.registry.Cleanup()
}

// CircuitStats returns the gateway breaker snapshot.
func (c *Channel) CircuitStats() CircuitStats { return c.breaker.Stats() }
