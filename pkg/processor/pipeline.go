package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/batcher"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/ratelimiter"
)

func (p *Processor) work() {
	defer p.workers.Done()
	for {
		if g := p.gate(); g != nil {
			<-g
			continue
		}
		n, ok := <-p.queue
		if !ok {
			return
		}
		p.safeProcess(p.sendCtx, n)
	}
}

// safeProcess runs the pipeline for one item. A panic is logged and the
// item is marked failed.
func (p *Processor) safeProcess(ctx context.Context, n notifications.Notification) {
	defer func() {
		if r := recover(); r != nil {
			p.stats.failed.Add(1)
			p.inflight.Delete(n.ID)
			p.logger.LogAttrs(ctx, slog.LevelError, "panic while processing notification",
				logger.NotificationID(n.ID),
				logger.UserID(n.UserID),
				slog.Any("panic", r),
			)
			if err := p.repo.UpdateStatus(ctx, n.ID, notifications.StatusFailed, fmt.Sprintf("panic: %v", r)); err != nil &&
				!errors.Is(err, notifications.ErrNotificationNotFound) {
				p.logger.LogAttrs(ctx, slog.LevelWarn, "failed to mark notification failed",
					logger.NotificationID(n.ID),
					logger.Error(err),
				)
			}
		}
	}()
	p.process(ctx, n)
}

// process takes one notification through the pipeline. Each stage may end
// processing: validation, schedule, preferences, quiet hours, rate limit,
// deduplication, then batching or dispatch.
func (p *Processor) process(ctx context.Context, n notifications.Notification) {
	p.stats.processed.Add(1)
	now := p.now()
	rule := p.Rule(n.Type)
	p.prepare(&n, rule, now)

	if err := n.Validate(now); err != nil {
		p.reject(ctx, n, err, now)
		return
	}

	if !n.IsDue(now) {
		p.park(ctx, n)
		return
	}

	prefs := p.preferences(ctx, n.UserID)
	if !prefs.TypeEnabled(n.Type) || prefs.SenderBlocked(n.SenderID) {
		p.stats.filtered.Add(1)
		p.drop(ctx, n, DropFiltered, "filtered by user preferences", now)
		return
	}

	if p.quiet(n, prefs, now) {
		n.ScheduledAt = prefs.QuietHours.NextEnd(now)
		if !n.ScheduledAt.Before(n.ExpiresAt) {
			p.stats.filtered.Add(1)
			p.drop(ctx, n, DropFiltered, "expires during quiet hours", now)
			return
		}
		p.stats.deferred.Add(1)
		p.park(ctx, n)
		return
	}

	limits := ratelimiter.LimitsFromRule(rule)
	if override, ok := prefs.HourlyLimits[n.Type]; ok {
		limits.PerHour = override
	}
	if d := p.limiter.Admit(n.UserID, n.Type, limits); !d.Allowed {
		p.stats.rateLimited.Add(1)
		p.drop(ctx, n, DropRateLimited, string(d.Reason), now)
		return
	}

	// A failing dedup store admits the notification.
	dup, err := p.dedup.Check(ctx, n, rule)
	if err != nil {
		p.stats.dedupErrors.Add(1)
	}
	if dup {
		p.stats.deduplicated.Add(1)
		p.drop(ctx, n, DropDuplicate, "duplicate", now)
		return
	}

	n.Channels = p.eligibleChannels(n, rule, prefs)
	if err := p.save(ctx, n); err != nil {
		p.inflight.Delete(n.ID)
		p.logger.LogAttrs(ctx, slog.LevelError, "failed to persist notification",
			logger.NotificationID(n.ID),
			logger.Error(err),
		)
		return
	}

	if rule.Batches() && n.GroupKey != "" && !n.DisableBundling {
		p.batch(ctx, n, rule)
		return
	}

	p.deliver(ctx, n, now)
	p.inflight.Delete(n.ID)
}

// prepare assigns the id and the rule-driven defaults. now must be the
// same instant the caller checks IsDue against.
func (p *Processor) prepare(n *notifications.Notification, rule notifications.ProcessingRule, now time.Time) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Priority == 0 && rule.DefaultPriority != 0 {
		n.Priority = rule.DefaultPriority
	}
	n.ApplyDefaults(now, rule.Expiry)
}

func (p *Processor) preferences(ctx context.Context, userID string) notifications.Preferences {
	prefs, err := p.repo.GetPreferences(ctx, userID)
	switch {
	case err == nil && prefs != nil:
		return *prefs
	case err != nil && !errors.Is(err, notifications.ErrPreferencesNotFound):
		p.logger.LogAttrs(ctx, slog.LevelWarn, "failed to load preferences, using defaults",
			logger.UserID(userID),
			logger.Error(err),
		)
	}
	return notifications.DefaultPreferences(userID)
}

// quiet reports whether n must wait for the user's quiet hours to end.
// Urgent notifications and priority senders are never held.
func (p *Processor) quiet(n notifications.Notification, prefs notifications.Preferences, now time.Time) bool {
	return p.cfg.QuietHours &&
		n.RespectQuietHours &&
		n.Priority < notifications.PriorityUrgent &&
		!prefs.PrioritySender(n.SenderID) &&
		prefs.QuietHours.Contains(now)
}

// eligibleChannels intersects the requested channels with the rule, the
// user's preferences and the registered channels.
func (p *Processor) eligibleChannels(n notifications.Notification, rule notifications.ProcessingRule, prefs notifications.Preferences) notifications.Channel {
	requested := n.Channels
	if requested == notifications.ChannelNone {
		requested = rule.Channels
	}
	if rule.Channels != notifications.ChannelNone {
		requested = requested.Intersect(rule.Channels)
	}
	return requested.
		Intersect(prefs.ChannelsFor(n.Type)).
		Intersect(p.dispatcher.Registered())
}

// save creates n or updates it when it already exists.
func (p *Processor) save(ctx context.Context, n notifications.Notification) error {
	err := p.repo.Create(ctx, n)
	if errors.Is(err, notifications.ErrDuplicateID) {
		err = p.repo.Update(ctx, n)
	}
	return err
}

// park stores a notification that is not due yet. The scheduler releases
// it back into the pipeline.
func (p *Processor) park(ctx context.Context, n notifications.Notification) {
	defer p.inflight.Delete(n.ID)
	if err := p.save(ctx, n); err != nil {
		p.logger.LogAttrs(ctx, slog.LevelError, "failed to park notification",
			logger.NotificationID(n.ID),
			logger.Error(err),
		)
		return
	}
	p.logger.LogAttrs(ctx, slog.LevelDebug, "notification parked",
		logger.NotificationID(n.ID),
		slog.Time("scheduled_at", n.ScheduledAt),
	)
}

// reject marks an invalid notification failed and stores it when possible.
func (p *Processor) reject(ctx context.Context, n notifications.Notification, cause error, now time.Time) {
	defer p.inflight.Delete(n.ID)
	p.stats.failed.Add(1)
	p.recorder.Dropped(n.Type, DropInvalid)

	if n.Status == notifications.StatusPending {
		_ = n.Fail(cause.Error(), now)
	}
	p.logger.LogAttrs(ctx, slog.LevelWarn, "notification rejected",
		logger.NotificationID(n.ID),
		logger.UserID(n.UserID),
		logger.Error(cause),
	)
	if n.UserID == "" {
		return
	}
	if err := p.save(ctx, n); err != nil {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "failed to store rejected notification",
			logger.NotificationID(n.ID),
			logger.Error(err),
		)
	}
}

// drop discards an admitted-but-unwanted notification. Only parked
// notifications exist in the repository; those are cancelled.
func (p *Processor) drop(ctx context.Context, n notifications.Notification, reason, detail string, now time.Time) {
	defer p.inflight.Delete(n.ID)
	p.recorder.Dropped(n.Type, reason)
	p.logger.LogAttrs(ctx, slog.LevelDebug, "notification dropped",
		logger.NotificationID(n.ID),
		logger.UserID(n.UserID),
		logger.NotificationType(string(n.Type)),
		logger.Reason(reason),
	)

	if !n.ScheduledAt.After(n.CreatedAt) {
		return
	}
	if err := p.repo.UpdateStatus(ctx, n.ID, notifications.StatusCancelled, reason+": "+detail); err != nil &&
		!errors.Is(err, notifications.ErrNotificationNotFound) {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "failed to cancel parked notification",
			logger.NotificationID(n.ID),
			logger.Error(err),
		)
	}
}

// batch adds n to its open batch and flushes the batch when n filled it.
func (p *Processor) batch(ctx context.Context, n notifications.Notification, rule notifications.ProcessingRule) {
	p.stats.batched.Add(1)
	id, ready := p.batcher.AddToBatch(n, rule)
	if b, ok := p.batcher.Get(id); ok && len(b.Members) > 0 && b.Members[0].ID == n.ID {
		p.stats.batchesCreated.Add(1)
	}

	p.logger.LogAttrs(ctx, slog.LevelDebug, "notification batched",
		logger.NotificationID(n.ID),
		logger.BatchID(id),
		slog.Bool("ready", ready),
	)
	if !ready {
		return
	}
	if b, ok := p.batcher.FlushBatch(id); ok {
		p.deliverBatch(ctx, b)
	}
}

// deliverBatch dispatches the digest of b and gives every member the
// digest's final status.
func (p *Processor) deliverBatch(ctx context.Context, b batcher.Batch) {
	now := p.now()
	p.stats.batchesSent.Add(1)
	p.recorder.BatchFlushed(b.Type, b.Size())
	defer func() {
		for _, m := range b.Members {
			p.inflight.Delete(m.ID)
		}
	}()

	agg, ok := batcher.Aggregate(b, now)
	var out dispatcher.Outcome
	if ok {
		out = p.dispatch(ctx, agg)
	} else {
		out = dispatcher.Outcome{
			Status: notifications.StatusCancelled,
			Reason: dispatcher.ErrExpired.Error(),
		}
	}

	members := make([]notifications.Notification, 0, len(b.Members))
	for _, m := range b.Members {
		p.apply(&m, out, now)
		members = append(members, m)
	}
	if err := p.repo.BulkUpdate(ctx, members); err != nil {
		p.logger.LogAttrs(ctx, slog.LevelError, "failed to update batch members",
			logger.BatchID(b.ID),
			logger.Error(err),
		)
	}
	for _, m := range members {
		p.finish(ctx, m, out, now)
	}

	p.logger.LogAttrs(ctx, slog.LevelInfo, "batch delivered",
		logger.BatchID(b.ID),
		logger.UserID(b.UserID),
		logger.NotificationType(string(b.Type)),
		slog.Int("size", b.Size()),
		logger.Status(string(out.Status)),
	)
}

// deliver dispatches a stored notification and records the outcome.
func (p *Processor) deliver(ctx context.Context, n notifications.Notification, started time.Time) dispatcher.Outcome {
	out := p.dispatch(ctx, n)
	now := p.now()

	p.apply(&n, out, now)
	if err := p.repo.Update(ctx, n); err != nil {
		p.logger.LogAttrs(ctx, slog.LevelError, "failed to update notification",
			logger.NotificationID(n.ID),
			logger.Error(err),
		)
	}
	p.finish(ctx, n, out, started)
	return out
}

func (p *Processor) dispatch(ctx context.Context, n notifications.Notification) dispatcher.Outcome {
	if n.Channels == notifications.ChannelNone {
		return dispatcher.Outcome{
			NotificationID: n.ID,
			Status:         notifications.StatusCancelled,
			Reason:         dispatcher.ErrNoChannels.Error(),
		}
	}
	return p.dispatcher.Dispatch(ctx, n, n.Channels)
}

// apply moves n to the outcome's status.
func (p *Processor) apply(n *notifications.Notification, out dispatcher.Outcome, now time.Time) {
	n.DeliveryAttempts += out.Attempts
	var err error
	switch out.Status {
	case notifications.StatusSent:
		err = n.Transition(notifications.StatusSent, now)
	case notifications.StatusFailed:
		err = n.Fail(out.Reason, now)
	case notifications.StatusCancelled:
		err = n.Cancel(out.Reason, now)
	}
	if err != nil {
		p.logger.Warn("unexpected status transition",
			logger.NotificationID(n.ID),
			logger.Error(err),
		)
	}
}

// finish counts the outcome and runs the delivery hooks.
func (p *Processor) finish(ctx context.Context, n notifications.Notification, out dispatcher.Outcome, started time.Time) {
	p.stats.countStatus(out.Status)
	p.recorder.Completed(n.Type, out.Status, p.now().Sub(started))

	level := slog.LevelDebug
	if out.Status == notifications.StatusFailed {
		level = slog.LevelWarn
	}
	p.logger.LogAttrs(ctx, level, "notification delivered",
		logger.NotificationID(n.ID),
		logger.UserID(n.UserID),
		logger.Status(string(out.Status)),
		logger.Reason(out.Reason),
		logger.Attempt(n.DeliveryAttempts),
	)

	for _, h := range p.hooks {
		h(ctx, n, out)
	}
}
