// Package broadcast fans messages out to in-process subscribers.
//
// MemoryBroadcaster never blocks a sender: each subscriber owns a buffered
// channel and is dropped when its buffer is full. Subscriptions end when their
// context is cancelled. A per-subscription filter lets one stream carry only
// the messages a client asked for.
//
//	b := broadcast.NewMemoryBroadcaster[Event](64)
//	sub := b.Subscribe(ctx, broadcast.WithFilter(func(e Event) bool { return e.Kind == "like" }))
//	for msg := range sub.Receive(ctx) {
//	    handle(msg.Data)
//	}
package broadcast
