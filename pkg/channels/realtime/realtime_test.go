package realtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/dmitrymomot/notifykit/pkg/channels/realtime"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func payload(t notifications.Type) dispatcher.Payload {
	return dispatcher.Payload{
		NotificationID: "n1",
		UserID:         "u1",
		Type:           t,
		Priority:       notifications.PriorityNormal,
		Title:          "hello",
	}
}

func receive(t *testing.T, s *realtime.Session) realtime.Event {
	t.Helper()
	select {
	case msg, ok := <-s.Events():
		require.True(t, ok, "session closed")
		return msg.Data
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return realtime.Event{}
	}
}

func TestChannel_FanOut(t *testing.T) {
	t.Parallel()

	ch := realtime.New()
	ctx := context.Background()

	s1, err := ch.Connect(ctx, "u1", realtime.SessionOptions{})
	require.NoError(t, err)
	s2, err := ch.Connect(ctx, "u1", realtime.SessionOptions{ID: "tab-2"})
	require.NoError(t, err)
	assert.Equal(t, "tab-2", s2.ID())

	targets, err := ch.Targets(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, targets)

	res, err := ch.Send(ctx, payload(notifications.TypeLike), "u1").Await()
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "n1", res.MessageID)

	for _, s := range []*realtime.Session{s1, s2} {
		e := receive(t, s)
		assert.Equal(t, realtime.KindNotification, e.Kind)
		assert.Equal(t, "hello", e.Title)
		assert.Equal(t, "normal", e.Priority)
	}
	assert.Equal(t, int64(2), ch.Stats()["delivered"])
}

func TestChannel_NoSessions(t *testing.T) {
	t.Parallel()

	ch := realtime.New()
	targets, err := ch.Targets(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, targets)

	d := dispatcher.New()
	d.Register(ch)
	n := notifications.Notification{ID: "n1", UserID: "u1", Type: notifications.TypeLike, Title: "x"}
	n.ApplyDefaults(time.Now(), time.Hour)

	out := d.Dispatch(context.Background(), n, notifications.ChannelInApp)
	assert.Equal(t, notifications.StatusFailed, out.Status)
	co, _ := out.Channel(notifications.ChannelInApp)
	assert.ErrorIs(t, co.Err, dispatcher.ErrNoTargets)
}

func TestChannel_TypeFilter(t *testing.T) {
	t.Parallel()

	ch := realtime.New()
	ctx := context.Background()

	s, err := ch.Connect(ctx, "u1", realtime.SessionOptions{Types: []notifications.Type{notifications.TypeMention}})
	require.NoError(t, err)

	res, _ := ch.Send(ctx, payload(notifications.TypeLike), "u1").Await()
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, realtime.ErrNoListener)
	assert.False(t, dispatcher.IsRetryable(res.Err))

	res, _ = ch.Send(ctx, payload(notifications.TypeMention), "u1").Await()
	assert.True(t, res.Success)
	assert.Equal(t, notifications.TypeMention, receive(t, s).Type)

	// Control events bypass the filter.
	n, err := ch.Publish(ctx, "u1", realtime.Event{Kind: realtime.KindUnreadCount, Count: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	e := receive(t, s)
	assert.Equal(t, 3, e.Count)
	assert.Equal(t, "u1", e.UserID)
}

func TestChannel_SessionRateCap(t *testing.T) {
	t.Parallel()

	ch := realtime.New(realtime.WithSessionRate(rate.Every(time.Hour), 2))
	ctx := context.Background()

	s, err := ch.Connect(ctx, "u1", realtime.SessionOptions{})
	require.NoError(t, err)

	sent := 0
	for range 5 {
		res, _ := ch.Send(ctx, payload(notifications.TypeComment), "u1").Await()
		if res.Success {
			sent++
		}
	}
	assert.Equal(t, 2, sent)
	assert.Equal(t, int64(3), s.Dropped())
	assert.Equal(t, int64(3), ch.Stats()["rate_dropped"])
}

func TestChannel_StaleSessions(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	ch := realtime.New(realtime.WithClock(clock.Now))
	ctx := context.Background()

	idle, err := ch.Connect(ctx, "u1", realtime.SessionOptions{})
	require.NoError(t, err)
	active, err := ch.Connect(ctx, "u2", realtime.SessionOptions{})
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	require.NoError(t, ch.Ping(active.ID()))
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, ch.Cleanup())
	_, ok := ch.Session(idle.ID())
	assert.False(t, ok)
	assert.Empty(t, ch.Sessions("u1"))
	assert.Len(t, ch.Sessions("u2"), 1)
	assert.Equal(t, int64(1), ch.Stats()["users"])

	_, open := <-idle.Events()
	assert.False(t, open)

	assert.ErrorIs(t, ch.Ping("missing"), realtime.ErrSessionNotFound)
}

func TestChannel_ContextEndsSession(t *testing.T) {
	t.Parallel()

	ch := realtime.New()
	ctx, cancel := context.WithCancel(context.Background())

	s, err := ch.Connect(ctx, "u1", realtime.SessionOptions{})
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		_, ok := ch.Session(s.ID())
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestChannel_LRUEviction(t *testing.T) {
	t.Parallel()

	ch := realtime.New(realtime.WithMaxUsers(2))
	ctx := context.Background()

	first, err := ch.Connect(ctx, "u1", realtime.SessionOptions{})
	require.NoError(t, err)
	_, err = ch.Connect(ctx, "u2", realtime.SessionOptions{})
	require.NoError(t, err)
	_, err = ch.Connect(ctx, "u3", realtime.SessionOptions{})
	require.NoError(t, err)

	_, ok := ch.Session(first.ID())
	assert.False(t, ok)
	_, open := <-first.Events()
	assert.False(t, open)
	assert.Equal(t, int64(2), ch.Stats()["users"])
}

func TestChannel_Close(t *testing.T) {
	t.Parallel()

	ch := realtime.New()
	s, err := ch.Connect(context.Background(), "u1", realtime.SessionOptions{})
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	_, open := <-s.Events()
	assert.False(t, open)
	assert.ErrorIs(t, ch.Health(context.Background()), realtime.ErrClosed)

	_, err = ch.Connect(context.Background(), "u1", realtime.SessionOptions{})
	assert.ErrorIs(t, err, realtime.ErrClosed)
	_, err = ch.Connect(context.Background(), "", realtime.SessionOptions{})
	assert.Error(t, err)
}
