// Package processor runs the notification pipeline.
//
// Submitted notifications go into a bounded queue served by a fixed pool of
// workers. Each worker takes one notification through these stages, any of
// which may end its journey:
//
//  1. validation: invalid or expired notifications are stored as failed
//  2. schedule: notifications that are not due yet are stored as pending
//     and released later by the scheduler
//  3. preferences: disabled types and blocked senders are filtered out
//  4. quiet hours: non-urgent notifications are parked until the user's
//     quiet window ends
//  5. rate limit: per-user hourly and daily caps from the type's rule
//  6. deduplication: repeats of the same (user, type, sender, group) tuple
//     within the rule's window are dropped
//  7. batching or dispatch: batched types wait in an open batch that is
//     flushed when full or when its window elapses; everything else is
//     dispatched over the eligible channels right away
//
// Three background loops run next to the workers: the batch sweep, the
// cleanup of rate limiter, dedup and channel state, and the metrics flush.
//
// # Usage
//
//	p, err := processor.New(cfg, repo, processor.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	p.RegisterChannel(realtimeChannel)
//	p.RegisterChannel(emailChannel, dispatcher.WithProviderLimits(limits))
//
//	g.Go(p.Run(ctx))
//
//	id, err := p.Submit(ctx, notifications.Notification{
//	    UserID: "u1",
//	    Type:   notifications.TypeComment,
//	    Title:  "New comment",
//	})
//
// Stop drains the queue and flushes open batches before returning. Sends
// still running after Config.ShutdownTimeout are cancelled.
package processor
