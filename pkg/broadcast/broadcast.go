package broadcast

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Message wraps data of type T for type-safe broadcasting.
type Message[T any] struct {
	Data T
}

// Subscriber receives messages from a Broadcaster.
// Implementations must be safe for concurrent use.
type Subscriber[T any] interface {
	// ID identifies the subscription.
	ID() string

	// Receive returns a channel for receiving broadcast messages. It is
	// closed when the subscriber is closed or removed as a slow consumer.
	Receive(ctx context.Context) <-chan Message[T]

	// Close is idempotent.
	Close() error
}

// Broadcaster sends messages to multiple subscribers without blocking on
// slow ones.
type Broadcaster[T any] interface {
	// Subscribe registers a subscriber for the lifetime of ctx.
	Subscribe(ctx context.Context, opts ...SubscribeOption[T]) Subscriber[T]

	// Broadcast delivers msg to every subscriber whose filter accepts it and
	// returns how many received it.
	Broadcast(ctx context.Context, msg Message[T]) (int, error)

	// Len returns the number of active subscribers.
	Len() int

	// Close shuts down the broadcaster and closes all subscribers.
	Close() error
}

// SubscribeOption configures a subscription.
type SubscribeOption[T any] func(*subscriber[T])

// WithID sets the subscription id. A random id is used otherwise.
func WithID[T any](id string) SubscribeOption[T] {
	return func(s *subscriber[T]) {
		if id != "" {
			s.id = id
		}
	}
}

// WithFilter delivers only the messages for which accept returns true.
func WithFilter[T any](accept func(T) bool) SubscribeOption[T] {
	return func(s *subscriber[T]) {
		s.filter = accept
	}
}

type subscriber[T any] struct {
	id     string
	ch     chan Message[T]
	filter func(T) bool
	closed bool
	mu     sync.RWMutex
}

func newSubscriber[T any](bufferSize int, opts ...SubscribeOption[T]) *subscriber[T] {
	s := &subscriber[T]{
		id: uuid.NewString(),
		ch: make(chan Message[T], bufferSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *subscriber[T]) ID() string { return s.id }

func (s *subscriber[T]) Receive(context.Context) <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	return nil
}

func (s *subscriber[T]) accepts(msg Message[T]) bool {
	return s.filter == nil || s.filter(msg.Data)
}

// send reports false when the subscriber is closed or its buffer is full.
func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
