package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dmitrymomot/notifykit/pkg/async"
	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/cache"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// hub fans events out to every session of one user.
type hub struct {
	b        *broadcast.MemoryBroadcaster[Event]
	mu       sync.Mutex
	sessions map[string]*Session
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Channel delivers notifications to live WebSocket or SSE sessions.
type Channel struct {
	hubs      *cache.LRUCache[string, *hub]
	templates *dispatcher.TemplateSet

	mu       sync.RWMutex
	sessions map[string]*Session

	staleAfter time.Duration
	maxUsers   int
	buffer     int
	eventRate  rate.Limit
	eventBurst int
	logger     *slog.Logger
	now        func() time.Time

	closed     atomic.Bool
	delivered  atomic.Int64
	noListener atomic.Int64
}

// New creates a realtime channel.
func New(opts ...Option) *Channel {
	c := &Channel{
		templates:  dispatcher.NewTemplateSet(DefaultTemplates()),
		sessions:   make(map[string]*Session),
		staleAfter: DefaultStaleAfter,
		maxUsers:   DefaultMaxUsers,
		buffer:     DefaultBuffer,
		eventRate:  DefaultEventRate,
		eventBurst: DefaultEventBurst,
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.hubs = cache.NewLRUCache[string, *hub](c.maxUsers)
	c.hubs.SetEvictCallback(func(userID string, h *hub) {
		h.mu.Lock()
		ids := make([]string, 0, len(h.sessions))
		for id := range h.sessions {
			ids = append(ids, id)
		}
		clear(h.sessions)
		h.mu.Unlock()

		c.mu.Lock()
		for _, id := range ids {
			delete(c.sessions, id)
		}
		c.mu.Unlock()

		_ = h.b.Close()
	})
	return c
}

// DefaultTemplates renders every type from the notification's own title and
// message.
func DefaultTemplates() map[notifications.Type]notifications.Template {
	out := make(map[notifications.Type]notifications.Template)
	for _, t := range notifications.AllTypes() {
		out[t] = notifications.Template{Type: t}
	}
	return out
}

func (c *Channel) Kind() notifications.Channel { return notifications.ChannelInApp }

// Templates exposes the template set.
func (c *Channel) Templates() *dispatcher.TemplateSet { return c.templates }

func (c *Channel) Template(t notifications.Type) (notifications.Template, bool) {
	return c.templates.Template(t)
}

func (c *Channel) Render(n notifications.Notification, tmpl notifications.Template) (dispatcher.Payload, error) {
	return dispatcher.RenderPayload(n, tmpl)
}

// Connect opens a session for userID that lives until ctx is done or
// Disconnect is called.
func (c *Channel) Connect(ctx context.Context, userID string, opts SessionOptions) (*Session, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}

	s := &Session{
		id:          opts.ID,
		userID:      userID,
		types:       opts.Types,
		connectedAt: c.now(),
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if c.eventRate > 0 {
		s.limiter = rate.NewLimiter(c.eventRate, max(c.eventBurst, 1))
	}
	s.ping(s.connectedAt)

	h, _ := c.hubs.GetOrPut(userID, func() *hub {
		return &hub{
			b:        broadcast.NewMemoryBroadcaster[Event](c.buffer),
			sessions: make(map[string]*Session),
		}
	})
	s.sub = h.b.Subscribe(ctx, broadcast.WithID[Event](s.id), broadcast.WithFilter(s.accepts))

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	c.mu.Lock()
	c.sessions[s.id] = s
	c.mu.Unlock()

	context.AfterFunc(ctx, func() { c.Disconnect(s.id) })

	c.logger.LogAttrs(ctx, slog.LevelDebug, "realtime session connected",
		logger.UserID(userID),
		slog.String("session_id", s.id),
	)
	return s, nil
}

// Disconnect ends a session. Unknown ids are ignored.
func (c *Channel) Disconnect(sessionID string) {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	delete(c.sessions, sessionID)
	c.mu.Unlock()
	if !ok {
		return
	}

	if h, ok := c.hubs.Peek(s.userID); ok {
		h.mu.Lock()
		delete(h.sessions, sessionID)
		h.mu.Unlock()
	}
	_ = s.sub.Close()
}

// Ping records a keepalive for the session.
func (c *Channel) Ping(sessionID string) error {
	c.mu.RLock()
	s, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.ping(c.now())
	return nil
}

// Session returns a live session by id.
func (c *Channel) Session(sessionID string) (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[sessionID]
	return s, ok
}

// Sessions returns the live sessions of a user.
func (c *Channel) Sessions(userID string) []*Session {
	h, ok := c.hubs.Peek(userID)
	if !ok {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Targets returns the user id as the single target when the user has at
// least one live session; one send fans out to all of them.
func (c *Channel) Targets(_ context.Context, userID string) ([]string, error) {
	if h, ok := c.hubs.Peek(userID); ok && h.size() > 0 {
		return []string{userID}, nil
	}
	return nil, nil
}

// Send publishes payload to every session of the target user. Delivery is
// a non-blocking fan-out, so the future is already resolved.
func (c *Channel) Send(ctx context.Context, payload dispatcher.Payload, userID string) *async.Future[dispatcher.Result] {
	started := c.now()
	res := dispatcher.Result{Channel: notifications.ChannelInApp, Target: userID, StartedAt: started}

	n, err := c.Publish(ctx, userID, EventFromPayload(payload))
	res.CompletedAt = c.now()
	switch {
	case err != nil:
		res.Err = fmt.Errorf("%w: %w", dispatcher.ErrTransient, err)
	case n == 0:
		c.noListener.Add(1)
		res.Err = fmt.Errorf("%w: %w", dispatcher.ErrPermanent, ErrNoListener)
	default:
		c.delivered.Add(int64(n))
		res.Success = true
		res.MessageID = payload.NotificationID
	}
	return async.Resolved(res, nil)
}

// Publish sends an event to every session of userID and returns how many
// sessions received it.
func (c *Channel) Publish(ctx context.Context, userID string, e Event) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	h, ok := c.hubs.Get(userID)
	if !ok {
		return 0, nil
	}
	if e.UserID == "" {
		e.UserID = userID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}
	return h.b.Broadcast(ctx, broadcast.Message[Event]{Data: e})
}

// Cleanup disconnects sessions without a recent ping and drops hubs with no
// sessions. It returns the number of sessions removed.
func (c *Channel) Cleanup() int {
	now := c.now()

	c.mu.RLock()
	var stale []string
	for id, s := range c.sessions {
		if s.stale(now, c.staleAfter) {
			stale = append(stale, id)
		}
	}
	c.mu.RUnlock()

	for _, id := range stale {
		c.Disconnect(id)
	}
	c.hubs.RemoveIf(func(_ string, h *hub) bool { return h.size() == 0 })
	return len(stale)
}

// Stats returns the channel counters.
func (c *Channel) Stats() map[string]int64 {
	c.mu.RLock()
	sessions := len(c.sessions)
	var dropped int64
	for _, s := range c.sessions {
		dropped += s.Dropped()
	}
	c.mu.RUnlock()

	var slow int64
	c.hubs.Range(func(_ string, h *hub) bool {
		slow += h.b.Evicted()
		return true
	})

	return map[string]int64{
		"sessions":     int64(sessions),
		"users":        int64(c.hubs.Len()),
		"slow_dropped": slow,
		"delivered":    c.delivered.Load(),
		"no_listener":  c.noListener.Load(),
		"rate_dropped": dropped,
	}
}

func (c *Channel) Health(context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Close ends every session.
func (c *Channel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.hubs.Clear()
	return nil
}
