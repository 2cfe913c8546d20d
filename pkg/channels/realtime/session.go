package realtime

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// SessionOptions configures a new session.
type SessionOptions struct {
	// ID is generated when empty.
	ID string
	// Types restricts notification events to these types. Empty means all.
	Types []notifications.Type
}

// Session is one live socket or stream of a user.
type Session struct {
	id          string
	userID      string
	types       []notifications.Type
	connectedAt time.Time
	lastPing    atomic.Int64
	limiter     *rate.Limiter
	sub         broadcast.Subscriber[Event]
	dropped     atomic.Int64
}

func (s *Session) ID() string             { return s.id }
func (s *Session) UserID() string         { return s.userID }
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// LastPing returns the time of the last keepalive.
func (s *Session) LastPing() time.Time {
	return time.Unix(0, s.lastPing.Load())
}

// Events returns the stream of events for this session. The channel is
// closed when the session ends.
func (s *Session) Events() <-chan broadcast.Message[Event] {
	return s.sub.Receive(context.Background())
}

// Dropped returns how many events the rate cap discarded.
func (s *Session) Dropped() int64 { return s.dropped.Load() }

func (s *Session) ping(now time.Time) {
	s.lastPing.Store(now.UnixNano())
}

func (s *Session) stale(now time.Time, after time.Duration) bool {
	return now.Sub(s.LastPing()) > after
}

// accepts applies the type filter, then the rate cap. Control events are
// never filtered.
func (s *Session) accepts(e Event) bool {
	if e.Kind != KindNotification {
		return true
	}
	if len(s.types) > 0 && !slices.Contains(s.types, e.Type) {
		return false
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.dropped.Add(1)
		return false
	}
	return true
}
