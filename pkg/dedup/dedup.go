package dedup

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// DefaultWindow applies when a rule enables deduplication without a window.
const DefaultWindow = 60 * time.Minute

// Deduplicator drops notifications that repeat the same (user, type, sender,
// group key) tuple inside a time window. The first occurrence wins; later
// ones are reported as duplicates and never merged.
type Deduplicator struct {
	store  Store
	window time.Duration
	logger *slog.Logger
}

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithDefaultWindow overrides DefaultWindow.
func WithDefaultWindow(d time.Duration) Option {
	return func(dd *Deduplicator) {
		if d > 0 {
			dd.window = d
		}
	}
}

// WithLogger sets the logger used for store failures.
func WithLogger(l *slog.Logger) Option {
	return func(dd *Deduplicator) {
		if l != nil {
			dd.logger = l
		}
	}
}

// New creates a Deduplicator over store. A nil store falls back to an
// in-memory store.
func New(store Store, opts ...Option) *Deduplicator {
	if store == nil {
		store = NewMemoryStore(time.Minute)
	}
	d := &Deduplicator{
		store:  store,
		window: DefaultWindow,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Key hashes the identifying tuple of n.
func Key(n notifications.Notification) string {
	h := xxhash.New()
	for _, part := range n.DedupKeyParts() {
		_, _ = h.WriteString(part)
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// IsDuplicate records n and reports whether an identical tuple was already
// recorded within window. A zero window uses the default. When the store
// fails the notification is let through and the error is returned.
func (d *Deduplicator) IsDuplicate(ctx context.Context, n notifications.Notification, window time.Duration) (bool, error) {
	if window <= 0 {
		window = d.window
	}

	key := Key(n)
	added, err := d.store.Add(ctx, key, window)
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "dedup store failed, admitting notification",
			logger.UserID(n.UserID),
			slog.String("type", string(n.Type)),
			logger.Error(err),
		)
		return false, err
	}
	return !added, nil
}

// Check applies the rule: notifications of types without deduplication are
// never duplicates.
func (d *Deduplicator) Check(ctx context.Context, n notifications.Notification, rule notifications.ProcessingRule) (bool, error) {
	if !rule.EnableDeduplication {
		return false, nil
	}
	return d.IsDuplicate(ctx, n, rule.DeduplicationWindow)
}

// Forget removes the record for n so an identical notification is admitted again.
func (d *Deduplicator) Forget(ctx context.Context, n notifications.Notification) error {
	return d.store.Forget(ctx, Key(n))
}

// Cleanup evicts expired keys when the store keeps them in memory.
func (d *Deduplicator) Cleanup() {
	if c, ok := d.store.(interface{ Cleanup() }); ok {
		c.Cleanup()
	}
}
