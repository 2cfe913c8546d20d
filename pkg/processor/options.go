package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/dedup"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// DeliveryHook is called with the final outcome of every dispatched
// notification. Batch members are reported with the outcome of their digest.
type DeliveryHook func(ctx context.Context, n notifications.Notification, out dispatcher.Outcome)

type options struct {
	logger         *slog.Logger
	now            func() time.Time
	recorder       Recorder
	hooks          []DeliveryHook
	rules          map[notifications.Type]notifications.ProcessingRule
	dedupStore     dedup.Store
	dispatcherOpts []dispatcher.Option
}

// Option configures a Processor.
type Option func(*options)

// WithLogger sets the logger shared by the pipeline components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces time.Now across the pipeline.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRecorder reports pipeline events to r. When r also implements
// dispatcher.Observer it receives every delivery attempt as well.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithDeliveryHook adds a hook receiving every delivery outcome.
func WithDeliveryHook(h DeliveryHook) Option {
	return func(o *options) {
		if h != nil {
			o.hooks = append(o.hooks, h)
		}
	}
}

// WithRules replaces the default rule set.
func WithRules(rules map[notifications.Type]notifications.ProcessingRule) Option {
	return func(o *options) {
		o.rules = rules
	}
}

// WithDedupStore sets the key store used for deduplication, for example a
// dedup.RedisStore shared by several instances.
func WithDedupStore(s dedup.Store) Option {
	return func(o *options) {
		o.dedupStore = s
	}
}

// WithDispatcherOptions passes extra options to the internal dispatcher.
func WithDispatcherOptions(opts ...dispatcher.Option) Option {
	return func(o *options) {
		o.dispatcherOpts = append(o.dispatcherOpts, opts...)
	}
}
