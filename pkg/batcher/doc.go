// Package batcher groups bursts of similar notifications into one delivery.
//
// Notifications of the same type for the same user that share a group key
// join one open batch. A batch is ready when it reaches the rule's maximum
// size or when its window elapses. Ready batches are removed from the batcher
// when flushed, so each one is delivered exactly once, and the next matching
// notification starts a fresh batch.
//
// Aggregate turns a flushed batch into a single summary notification.
//
//	id, ready := b.AddToBatch(n, rule)
//	if ready {
//	    batch, _ := b.FlushBatch(id)
//	    agg, ok := batcher.Aggregate(batch, time.Now())
//	    ...
//	}
//
//	// periodic sweep
//	for _, batch := range b.Due(time.Now()) { ... }
package batcher
