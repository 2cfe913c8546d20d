package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/batcher"
	"github.com/dmitrymomot/notifykit/pkg/dedup"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/ratelimiter"
)

// SubmitResult is the per-item answer of SubmitBulk.
type SubmitResult struct {
	ID  string `json:"id,omitempty"`
	Err error  `json:"-"`
}

// Processor owns the notification pipeline: a bounded intake queue served
// by a fixed worker pool, the per-user rate limiter, the deduplicator, the
// batcher and the channel dispatcher.
type Processor struct {
	cfg  Config
	repo notifications.Repository

	dispatcher *dispatcher.Dispatcher
	limiter    *ratelimiter.Limiter
	dedup      *dedup.Deduplicator
	batcher    *batcher.Batcher

	rulesMu sync.RWMutex
	rules   map[notifications.Type]notifications.ProcessingRule

	queue    chan notifications.Notification
	inflight sync.Map

	logger   *slog.Logger
	now      func() time.Time
	recorder Recorder
	hooks    []DeliveryHook

	// mu guards running and the queue close.
	mu      sync.RWMutex
	running bool

	pauseMu  sync.Mutex
	resumeCh chan struct{}

	loopCancel  context.CancelFunc
	sendCtx     context.Context
	cancelSends context.CancelFunc
	workers     sync.WaitGroup
	loops       sync.WaitGroup

	startedAt time.Time
	stats     counters
	stopped   atomic.Bool
}

// New creates a processor over repo. Channels are added with RegisterChannel.
func New(cfg Config, repo notifications.Repository, opts ...Option) (*Processor, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}
	cfg = cfg.withDefaults()

	o := &options{
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
		recorder: nopRecorder{},
		rules:    notifications.DefaultRules(),
	}
	for _, opt := range opts {
		opt(o)
	}

	dispatcherOpts := []dispatcher.Option{
		dispatcher.WithMaxAttempts(cfg.MaxAttempts),
		dispatcher.WithSendTimeout(cfg.SendTimeout),
		dispatcher.WithBackoff(cfg.Backoff()),
		dispatcher.WithLogger(o.logger),
		dispatcher.WithClock(o.now),
	}
	if obs, ok := o.recorder.(dispatcher.Observer); ok {
		dispatcherOpts = append(dispatcherOpts, dispatcher.WithObserver(obs))
	}

	p := &Processor{
		cfg:        cfg,
		repo:       repo,
		dispatcher: dispatcher.New(append(dispatcherOpts, o.dispatcherOpts...)...),
		limiter: ratelimiter.New(
			ratelimiter.WithCooldown(cfg.ThrottleCooldown),
			ratelimiter.WithClock(o.now),
		),
		dedup: dedup.New(o.dedupStore,
			dedup.WithDefaultWindow(cfg.DedupWindow),
			dedup.WithLogger(o.logger),
		),
		batcher:   batcher.New(batcher.WithClock(o.now)),
		rules:     make(map[notifications.Type]notifications.ProcessingRule, len(o.rules)),
		queue:     make(chan notifications.Notification, cfg.QueueSize),
		logger:    o.logger.With(logger.Component("processor")),
		now:       o.now,
		recorder:  o.recorder,
		hooks:     o.hooks,
		startedAt: o.now(),
	}
	for t, r := range o.rules {
		r.Type = t
		p.rules[t] = r
	}
	return p, nil
}

// Dispatcher exposes the channel dispatcher.
func (p *Processor) Dispatcher() *dispatcher.Dispatcher { return p.dispatcher }

// Limiter exposes the per-user rate limiter, for overrides and throttling.
func (p *Processor) Limiter() *ratelimiter.Limiter { return p.limiter }

// RegisterChannel adds a delivery channel.
func (p *Processor) RegisterChannel(ch dispatcher.Channel, opts ...dispatcher.RegisterOption) {
	p.dispatcher.Register(ch, opts...)
	p.logger.Info("channel registered", logger.Channel(ch.Kind().String()))
}

// Start launches the workers and the periodic loops. The processor runs
// until Stop is called.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("processor already started")
	}
	if p.stopped.Load() {
		return ErrNotRunning
	}

	p.sendCtx, p.cancelSends = context.WithCancel(context.WithoutCancel(ctx))
	loopCtx, cancel := context.WithCancel(ctx)
	p.loopCancel = cancel
	p.running = true
	p.startedAt = p.now()

	for range p.cfg.Workers {
		p.workers.Add(1)
		go p.work()
	}

	p.every(loopCtx, p.cfg.SweepInterval, p.sweep)
	p.every(loopCtx, p.cfg.CleanupInterval, p.cleanup)
	p.every(loopCtx, p.cfg.MetricsInterval, p.flushMetrics)

	p.logger.Info("processor started",
		slog.Int("workers", p.cfg.Workers),
		slog.Int("queue_size", p.cfg.QueueSize),
	)
	return nil
}

// Stop rejects new submissions, stops the loops, drains the queue and
// flushes open batches. In-flight sends get ShutdownTimeout to finish
// before they are cancelled. Stop returns early with ctx's error.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running = false
	p.stopped.Store(true)
	close(p.queue)
	p.mu.Unlock()

	p.Resume()
	p.loopCancel()
	p.loops.Wait()

	grace := time.AfterFunc(p.cfg.ShutdownTimeout, func() {
		p.logger.Warn("shutdown grace period elapsed, cancelling in-flight sends")
		p.cancelSends()
	})
	defer grace.Stop()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		for _, b := range p.batcher.FlushAll() {
			p.deliverBatch(p.sendCtx, b)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.cancelSends()
		return ctx.Err()
	}

	p.cancelSends()
	p.flushMetrics(context.Background())
	p.logger.Info("processor stopped", slog.Int64("processed", p.stats.processed.Load()))
	return nil
}

// Run starts the processor and returns a function suitable for errgroup.
// The processor stops when ctx is done.
func (p *Processor) Run(ctx context.Context) func() error {
	return func() error {
		if err := p.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), p.cfg.ShutdownTimeout+5*time.Second)
		defer cancel()
		return p.Stop(stopCtx)
	}
}

func (p *Processor) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	p.loops.Add(1)
	go func() {
		defer p.loops.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// Submit enqueues n without blocking and returns its id.
func (p *Processor) Submit(ctx context.Context, n notifications.Notification) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return "", ErrNotRunning
	}
	if _, loaded := p.inflight.LoadOrStore(n.ID, struct{}{}); loaded {
		return n.ID, ErrAlreadyQueued
	}

	select {
	case p.queue <- n:
		return n.ID, nil
	default:
		p.inflight.Delete(n.ID)
		return "", ErrQueueFull
	}
}

// SubmitBulk submits every notification and reports each result in order.
func (p *Processor) SubmitBulk(ctx context.Context, ns []notifications.Notification) []SubmitResult {
	out := make([]SubmitResult, len(ns))
	for i, n := range ns {
		out[i].ID, out[i].Err = p.Submit(ctx, n)
	}
	return out
}

// SendImmediate validates, persists and dispatches n synchronously,
// bypassing rate limits, deduplication and batching.
func (p *Processor) SendImmediate(ctx context.Context, n notifications.Notification) (dispatcher.Outcome, error) {
	started := p.now()
	rule := p.Rule(n.Type)
	p.prepare(&n, rule, started)

	if err := n.Validate(started); err != nil {
		return dispatcher.Outcome{NotificationID: n.ID}, err
	}
	prefs := p.preferences(ctx, n.UserID)
	n.Channels = p.eligibleChannels(n, rule, prefs)
	if err := p.save(ctx, n); err != nil {
		return dispatcher.Outcome{NotificationID: n.ID}, err
	}

	out := p.deliver(ctx, n, started)
	return out, nil
}

// Pause stops workers from taking new items. Submissions are still queued.
func (p *Processor) Pause() {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	if p.resumeCh == nil {
		p.resumeCh = make(chan struct{})
		p.logger.Info("processor paused")
	}
}

// Resume lets paused workers continue.
func (p *Processor) Resume() {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	if p.resumeCh != nil {
		close(p.resumeCh)
		p.resumeCh = nil
		p.logger.Info("processor resumed")
	}
}

// Paused reports whether the processor is paused.
func (p *Processor) Paused() bool {
	return p.gate() != nil
}

func (p *Processor) gate() chan struct{} {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	return p.resumeCh
}

// Rule returns the active rule for t, or the permissive default when no
// rule is set: no batching, no deduplication and the configured caps.
func (p *Processor) Rule(t notifications.Type) notifications.ProcessingRule {
	p.rulesMu.RLock()
	r, ok := p.rules[t]
	p.rulesMu.RUnlock()
	if ok {
		return r
	}
	return notifications.ProcessingRule{
		Type:            t,
		MaxPerHour:      p.cfg.DefaultMaxPerHour,
		MaxPerDay:       p.cfg.DefaultMaxPerDay,
		Channels:        notifications.ChannelAll,
		DefaultPriority: notifications.PriorityNormal,
	}
}

// SetRule adds or replaces the rule for rule.Type.
func (p *Processor) SetRule(rule notifications.ProcessingRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	p.rulesMu.Lock()
	p.rules[rule.Type] = rule
	p.rulesMu.Unlock()
	return nil
}

// RemoveRule drops the rule for t so the defaults apply.
func (p *Processor) RemoveRule(t notifications.Type) {
	p.rulesMu.Lock()
	delete(p.rules, t)
	p.rulesMu.Unlock()
}

// Rules returns a copy of the active rules.
func (p *Processor) Rules() map[notifications.Type]notifications.ProcessingRule {
	p.rulesMu.RLock()
	defer p.rulesMu.RUnlock()
	return maps.Clone(p.rules)
}

// ReplaceRules swaps the whole rule set atomically. Nothing changes when
// any rule is invalid.
func (p *Processor) ReplaceRules(rules map[notifications.Type]notifications.ProcessingRule) error {
	next := make(map[notifications.Type]notifications.ProcessingRule, len(rules))
	for t, r := range rules {
		r.Type = t
		if err := validateRule(r); err != nil {
			return err
		}
		next[t] = r
	}
	p.rulesMu.Lock()
	p.rules = next
	p.rulesMu.Unlock()
	return nil
}

func validateRule(r notifications.ProcessingRule) error {
	switch {
	case !r.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRule, r.Type)
	case r.MaxPerHour < 0 || r.MaxPerDay < 0:
		return fmt.Errorf("%w: %s: negative cap", ErrInvalidRule, r.Type)
	case r.EnableBatching && (r.MaxBatchSize <= 1 || r.BatchWindow <= 0):
		return fmt.Errorf("%w: %s: batching needs a window and a size above one", ErrInvalidRule, r.Type)
	case r.DeduplicationWindow < 0 || r.Expiry < 0:
		return fmt.Errorf("%w: %s: negative duration", ErrInvalidRule, r.Type)
	}
	return nil
}

// Healthy reports whether the processor accepts work and its queue has room.
func (p *Processor) Healthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running && len(p.queue) < cap(p.queue)
}

// Health is Healthy plus the health of every channel.
func (p *Processor) Health(ctx context.Context) error {
	if !p.Healthy() {
		return ErrNotRunning
	}
	return p.dispatcher.Health(ctx)
}

func (p *Processor) sweep(ctx context.Context) {
	if p.Paused() {
		return
	}
	for _, b := range p.batcher.Due(p.now()) {
		p.deliverBatch(p.sendCtx, b)
	}
}

// cleanup drops idle rate limiter state, expired dedup keys and stale
// channel targets.
func (p *Processor) cleanup(ctx context.Context) {
	users := p.limiter.Cleanup()
	p.dedup.Cleanup()

	for _, kind := range p.dispatcher.Registered().Split() {
		ch, ok := p.dispatcher.Channel(kind)
		if !ok {
			continue
		}
		if c, ok := ch.(interface{ Cleanup() int }); ok {
			if n := c.Cleanup(); n > 0 {
				p.logger.LogAttrs(ctx, slog.LevelDebug, "channel cleanup",
					logger.Channel(kind.String()),
					slog.Int("removed", n),
				)
			}
		}
	}
	if users > 0 {
		p.logger.LogAttrs(ctx, slog.LevelDebug, "rate limiter cleanup", slog.Int("removed", users))
	}
}

func (p *Processor) flushMetrics(ctx context.Context) {
	s := p.Stats()
	p.recorder.Snapshot(s)
	p.logger.LogAttrs(ctx, slog.LevelDebug, "processor stats",
		slog.Int64("processed", s.Processed),
		slog.Int64("sent", s.Sent),
		slog.Int64("failed", s.Failed),
		slog.Int("queue_depth", s.QueueDepth),
		slog.Int("open_batches", s.OpenBatches),
	)
}
