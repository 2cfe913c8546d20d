package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
)

type registration[T any] struct {
	sub  *subscriber[T]
	stop func() bool
}

// MemoryBroadcaster fans messages out inside one process. A subscriber whose
// buffer is full when a message arrives is closed and removed, so Broadcast
// never waits on a reader.
type MemoryBroadcaster[T any] struct {
	mu      sync.RWMutex
	subs    map[string]registration[T]
	buffer  int
	closed  bool
	evicted atomic.Int64
}

// NewMemoryBroadcaster returns a broadcaster whose subscribers buffer up to
// bufferSize messages (at least 1).
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	return &MemoryBroadcaster[T]{
		subs:   make(map[string]registration[T]),
		buffer: max(bufferSize, 1),
	}
}

// Subscribe registers a subscriber that is removed once ctx is done. A
// subscription reusing a live id replaces it. After Close the returned
// subscriber is already closed.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context, opts ...SubscribeOption[T]) Subscriber[T] {
	sub := newSubscriber(b.buffer, opts...)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		_ = sub.Close()
		return sub
	}
	if prev, ok := b.subs[sub.id]; ok {
		prev.stop()
		_ = prev.sub.Close()
	}

	b.subs[sub.id] = registration[T]{
		sub:  sub,
		stop: context.AfterFunc(ctx, func() { b.remove(sub) }),
	}
	return sub
}

// Broadcast hands msg to every subscriber whose filter accepts it and
// returns how many took it.
func (b *MemoryBroadcaster[T]) Broadcast(_ context.Context, msg Message[T]) (int, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0, ErrClosed
	}

	delivered := 0
	var full []*subscriber[T]
	for _, r := range b.subs {
		switch {
		case !r.sub.accepts(msg):
		case r.sub.send(msg):
			delivered++
		default:
			full = append(full, r.sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range full {
		if b.remove(sub) {
			b.evicted.Add(1)
		}
	}
	return delivered, nil
}

func (b *MemoryBroadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Evicted counts the subscribers dropped for falling behind.
func (b *MemoryBroadcaster[T]) Evicted() int64 {
	return b.evicted.Load()
}

// Close closes every subscriber. It is idempotent.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, r := range b.subs {
		r.stop()
		_ = r.sub.Close()
		delete(b.subs, id)
	}
	return nil
}

// remove reports whether sub was still registered.
func (b *MemoryBroadcaster[T]) remove(sub *subscriber[T]) bool {
	b.mu.Lock()
	r, ok := b.subs[sub.id]
	if ok && r.sub == sub {
		delete(b.subs, sub.id)
		r.stop()
	} else {
		ok = false
	}
	b.mu.Unlock()

	_ = sub.Close()
	return ok
}
