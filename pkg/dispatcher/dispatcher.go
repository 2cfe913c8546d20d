package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/ratelimit"
)

const (
	DefaultMaxAttempts = 3
	DefaultSendTimeout = 30 * time.Second
)

// Observer receives one call per (channel, target) delivery.
type Observer interface {
	ObserveDelivery(channel string, res Result)
}

// ChannelOutcome aggregates the sends of one channel.
type ChannelOutcome struct {
	Channel  notifications.Channel
	Success  bool
	Attempts int
	Err      error
	Results  []Result
}

// Outcome is the delivery result of one notification across channels.
type Outcome struct {
	NotificationID string
	Status         notifications.Status
	Attempts       int
	Reason         string
	Channels       []ChannelOutcome
}

// Sent reports whether at least one channel succeeded.
func (o Outcome) Sent() bool { return o.Status == notifications.StatusSent }

// Channel returns the outcome of one channel.
func (o Outcome) Channel(ch notifications.Channel) (ChannelOutcome, bool) {
	for _, c := range o.Channels {
		if c.Channel == ch {
			return c, true
		}
	}
	return ChannelOutcome{}, false
}

type entry struct {
	ch      Channel
	limiter *ratelimit.ProviderLimiter
}

// RegisterOption configures a registered channel.
type RegisterOption func(*entry)

// WithProviderLimits caps the channel's outbound send rate.
func WithProviderLimits(limits ratelimit.Limits) RegisterOption {
	return func(e *entry) {
		l, err := ratelimit.NewProviderLimiter(e.ch.Kind().String(), limits)
		if err == nil {
			e.limiter = l
		}
	}
}

// Dispatcher renders notifications for each registered channel and sends them
// to every target with bounded retry.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[notifications.Channel]*entry

	maxAttempts int
	sendTimeout time.Duration
	backoff     Backoff
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a Dispatcher with no channels.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		channels:    make(map[notifications.Channel]*entry),
		maxAttempts: DefaultMaxAttempts,
		sendTimeout: DefaultSendTimeout,
		backoff:     DefaultBackoff(),
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds or replaces the channel for ch.Kind().
func (d *Dispatcher) Register(ch Channel, opts ...RegisterOption) {
	e := &entry{ch: ch}
	for _, opt := range opts {
		opt(e)
	}

	d.mu.Lock()
	d.channels[ch.Kind()] = e
	d.mu.Unlock()
}

// Unregister removes a channel.
func (d *Dispatcher) Unregister(kind notifications.Channel) {
	d.mu.Lock()
	delete(d.channels, kind)
	d.mu.Unlock()
}

// Registered returns the set of registered channels.
func (d *Dispatcher) Registered() notifications.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var set notifications.Channel
	for kind := range d.channels {
		set |= kind
	}
	return set
}

// Channel returns the registered implementation for kind.
func (d *Dispatcher) Channel(kind notifications.Channel) (Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.channels[kind]
	if !ok {
		return nil, false
	}
	return e.ch, true
}

// MaxAttempts is the per-target attempt budget.
func (d *Dispatcher) MaxAttempts() int { return d.maxAttempts }

// Dispatch delivers n over every registered channel in channels, concurrently.
// The outcome is sent when at least one channel succeeds and failed otherwise.
// No registered channel in the set yields a cancelled outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, n notifications.Notification, channels notifications.Channel) Outcome {
	d.mu.RLock()
	entries := make([]*entry, 0, channels.Count())
	for _, kind := range channels.Split() {
		if e, ok := d.channels[kind]; ok {
			entries = append(entries, e)
		}
	}
	d.mu.RUnlock()

	out := Outcome{NotificationID: n.ID}
	if len(entries) == 0 {
		out.Status = notifications.StatusCancelled
		out.Reason = ErrNoChannels.Error()
		return out
	}

	out.Channels = make([]ChannelOutcome, len(entries))
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func(i int, e *entry) {
			defer wg.Done()
			out.Channels[i] = d.deliverChannel(ctx, n, e)
		}(i, e)
	}
	wg.Wait()

	var (
		reasons []string
		expired = true
	)
	out.Status = notifications.StatusFailed
	for _, co := range out.Channels {
		out.Attempts = max(out.Attempts, co.Attempts)
		if co.Success {
			out.Status = notifications.StatusSent
			continue
		}
		if !errors.Is(co.Err, ErrExpired) {
			expired = false
		}
		if co.Err != nil {
			reasons = append(reasons, co.Channel.String()+": "+co.Err.Error())
		}
	}

	switch {
	case out.Status == notifications.StatusSent:
	case expired:
		out.Status = notifications.StatusCancelled
		out.Reason = ErrExpired.Error()
	default:
		out.Reason = strings.Join(reasons, "; ")
	}
	return out
}

// DeliverChannel delivers n over a single registered channel.
func (d *Dispatcher) DeliverChannel(ctx context.Context, n notifications.Notification, kind notifications.Channel) (ChannelOutcome, error) {
	d.mu.RLock()
	e, ok := d.channels[kind]
	d.mu.RUnlock()
	if !ok {
		return ChannelOutcome{}, fmt.Errorf("%w: %s", ErrNoChannels, kind)
	}
	return d.deliverChannel(ctx, n, e), nil
}

func (d *Dispatcher) deliverChannel(ctx context.Context, n notifications.Notification, e *entry) ChannelOutcome {
	kind := e.ch.Kind()
	co := ChannelOutcome{Channel: kind}

	tmpl, ok := e.ch.Template(n.Type)
	if !ok {
		co.Err = fmt.Errorf("%w: %s/%s", ErrTemplateNotFound, kind, n.Type)
		d.logChannelError(ctx, n, kind, co.Err)
		return co
	}

	payload, err := e.ch.Render(n, tmpl)
	if err != nil {
		if !errors.Is(err, ErrRender) {
			err = fmt.Errorf("%w: %w", ErrRender, err)
		}
		co.Err = err
		d.logChannelError(ctx, n, kind, co.Err)
		return co
	}

	targets, err := e.ch.Targets(ctx, n.UserID)
	if err == nil && len(targets) == 0 {
		err = ErrNoTargets
	}
	if err != nil {
		co.Err = err
		d.logChannelError(ctx, n, kind, co.Err)
		return co
	}

	co.Results = make([]Result, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			co.Results[i] = d.sendWithRetry(ctx, e, payload, target)
		}(i, target)
	}
	wg.Wait()

	var errs []error
	for _, res := range co.Results {
		co.Attempts = max(co.Attempts, res.Attempts)
		if res.Success {
			co.Success = true
		} else if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	if !co.Success {
		co.Err = errors.Join(errs...)
	}
	return co
}

func (d *Dispatcher) logChannelError(ctx context.Context, n notifications.Notification, kind notifications.Channel, err error) {
	d.logger.LogAttrs(ctx, slog.LevelWarn, "channel skipped",
		logger.NotificationID(n.ID),
		logger.UserID(n.UserID),
		logger.Channel(kind.String()),
		logger.Error(err),
	)
}

// sendWithRetry sends payload to one target, retrying retryable failures up
// to the attempt budget. Expiry and the provider quota are checked before
// every attempt.
func (d *Dispatcher) sendWithRetry(ctx context.Context, e *entry, payload Payload, target string) Result {
	kind := e.ch.Kind()
	res := Result{Channel: kind, Target: target, StartedAt: d.now()}

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if !payload.ExpiresAt.IsZero() && !d.now().Before(payload.ExpiresAt) {
			res.Err = ErrExpired
			break
		}

		res.Attempts = attempt
		var wait time.Duration

		if e.limiter != nil {
			if lr := e.limiter.Allow(); !lr.Allowed {
				wait = lr.RetryAfter()
				res.Err = &ratelimit.LimitError{Provider: kind.String(), RetryAfter: wait}
				res.RetryAfter = wait
				if !d.pause(ctx, attempt, wait) {
					break
				}
				continue
			}
		}

		sendRes, err := d.sendOnce(ctx, e.ch, payload, target)
		res.MessageID = sendRes.MessageID
		res.ErrorCode = sendRes.ErrorCode
		res.RetryAfter = sendRes.RetryAfter
		if err == nil {
			res.Success = true
			res.Err = nil
			break
		}
		res.Err = err

		if sendRes.TokenInvalid || IsTokenInvalid(err) {
			res.TokenInvalid = true
			d.deactivate(ctx, e.ch, payload.UserID, target)
		}

		d.logger.LogAttrs(ctx, slog.LevelDebug, "delivery attempt failed",
			logger.NotificationID(payload.NotificationID),
			logger.Channel(kind.String()),
			logger.Target(target),
			logger.Attempt(attempt),
			logger.Error(err),
		)

		if !IsRetryable(err) || !d.pause(ctx, attempt, sendRes.RetryAfter) {
			break
		}
	}

	res.CompletedAt = d.now()
	if d.observer != nil {
		d.observer.ObserveDelivery(kind.String(), res)
	}
	return res
}

// sendOnce performs one attempt bounded by the send timeout.
func (d *Dispatcher) sendOnce(ctx context.Context, ch Channel, payload Payload, target string) (Result, error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	res, err := ch.Send(sendCtx, payload, target).AwaitContext(sendCtx)
	if err == nil {
		err = res.Err
	}
	if err == nil && !res.Success {
		err = ErrTransient
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w: send timed out: %w", ErrTransient, err)
	}
	return res, err
}

// pause sleeps before the next attempt. It returns false when no attempt is
// left or ctx is done.
func (d *Dispatcher) pause(ctx context.Context, attempt int, hint time.Duration) bool {
	if attempt >= d.maxAttempts {
		return false
	}
	wait := d.backoff.Cap(max(d.backoff.Next(attempt), hint))

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (d *Dispatcher) deactivate(ctx context.Context, ch Channel, userID, target string) {
	tm, ok := ch.(TargetManager)
	if !ok {
		return
	}
	if err := tm.DeactivateTarget(ctx, userID, target); err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "failed to deactivate target",
			logger.UserID(userID),
			logger.Channel(ch.Kind().String()),
			logger.Target(target),
			logger.Error(err),
		)
	}
}

// Health checks every registered channel and joins the failures.
func (d *Dispatcher) Health(ctx context.Context) error {
	d.mu.RLock()
	entries := make([]*entry, 0, len(d.channels))
	for _, e := range d.channels {
		entries = append(entries, e)
	}
	d.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		if err := e.ch.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.ch.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns each channel's counters keyed by channel name.
func (d *Dispatcher) Stats() map[string]map[string]int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]map[string]int64, len(d.channels))
	for kind, e := range d.channels {
		out[kind.String()] = e.ch.Stats()
	}
	return out
}
