package ratelimiter_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/ratelimiter"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
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

func TestLimiter_HourlyCap(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := ratelimiter.New(ratelimiter.WithClock(clock.Now))
	limits := ratelimiter.Limits{PerHour: 5}

	allowed := 0
	for range 6 {
		if l.Admit("u1", notifications.TypeLike, limits).Allowed {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)

	d := l.Admit("u1", notifications.TypeLike, limits)
	assert.False(t, d.Allowed)
	assert.Equal(t, ratelimiter.ReasonHourlyLimit, d.Reason)
	assert.Equal(t, 5, d.HourlyCount)
	assert.Equal(t, time.Hour, d.RetryAfter)

	// Other types and users are independent.
	assert.True(t, l.Admit("u1", notifications.TypeFollow, limits).Allowed)
	assert.True(t, l.Admit("u2", notifications.TypeLike, limits).Allowed)

	clock.Advance(time.Hour)
	d = l.Admit("u1", notifications.TypeLike, limits)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.HourlyCount)
	assert.Equal(t, 6, d.DailyCount)
}

func TestLimiter_DailyCap(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := ratelimiter.New(ratelimiter.WithClock(clock.Now))
	limits := ratelimiter.Limits{PerHour: 2, PerDay: 3}

	assert.True(t, l.Admit("u1", notifications.TypeLike, limits).Allowed)
	assert.True(t, l.Admit("u1", notifications.TypeLike, limits).Allowed)

	clock.Advance(time.Hour)
	assert.True(t, l.Admit("u1", notifications.TypeLike, limits).Allowed)
	d := l.Admit("u1", notifications.TypeLike, limits)
	assert.False(t, d.Allowed)
	assert.Equal(t, ratelimiter.ReasonDailyLimit, d.Reason)

	clock.Advance(23 * time.Hour)
	assert.True(t, l.Admit("u1", notifications.TypeLike, limits).Allowed)
}

func TestLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	l := ratelimiter.New()
	for range 1000 {
		require.True(t, l.Admit("u1", notifications.TypeDirectMessage, ratelimiter.Limits{}).Allowed)
	}
	assert.True(t, ratelimiter.Limits{}.Unlimited())
}

func TestLimiter_Cooldown(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := ratelimiter.New(ratelimiter.WithClock(clock.Now), ratelimiter.WithCooldown(2*time.Hour))
	limits := ratelimiter.Limits{PerHour: 1}

	assert.True(t, l.Admit("u1", notifications.TypeLike, limits).Allowed)
	d := l.Admit("u1", notifications.TypeLike, limits)
	assert.Equal(t, ratelimiter.ReasonHourlyLimit, d.Reason)
	assert.Equal(t, 2*time.Hour, d.RetryAfter)

	// The throttle covers every type.
	d = l.Admit("u1", notifications.TypeFollow, limits)
	assert.Equal(t, ratelimiter.ReasonThrottled, d.Reason)

	clock.Advance(time.Hour)
	assert.Equal(t, ratelimiter.ReasonThrottled, l.Admit("u1", notifications.TypeLike, limits).Reason)

	clock.Advance(time.Hour)
	assert.True(t, l.Admit("u1", notifications.TypeLike, limits).Allowed)
}

func TestLimiter_Overrides(t *testing.T) {
	t.Parallel()

	l := ratelimiter.New()
	rule := ratelimiter.Limits{PerHour: 10}

	l.SetUserLimit("u1", notifications.TypeLike, ratelimiter.Limits{PerHour: 1})
	assert.True(t, l.Admit("u1", notifications.TypeLike, rule).Allowed)
	assert.False(t, l.Admit("u1", notifications.TypeLike, rule).Allowed)

	l.ClearUserLimit("u1", notifications.TypeLike)
	assert.True(t, l.Admit("u1", notifications.TypeLike, rule).Allowed)
}

func TestLimiter_ThrottleAndReset(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := ratelimiter.New(ratelimiter.WithClock(clock.Now))
	limits := ratelimiter.Limits{PerHour: 1}

	l.Throttle("u1", 30*time.Minute)
	d := l.Admit("u1", notifications.TypeLike, limits)
	assert.Equal(t, ratelimiter.ReasonThrottled, d.Reason)
	assert.Equal(t, 30*time.Minute, d.RetryAfter)

	l.Unthrottle("u1")
	assert.True(t, l.Admit("u1", notifications.TypeLike, limits).Allowed)
	assert.False(t, l.Admit("u1", notifications.TypeLike, limits).Allowed)

	l.ResetLimits("u1")
	assert.True(t, l.Admit("u1", notifications.TypeLike, limits).Allowed)

	st, ok := l.State("u1")
	require.True(t, ok)
	assert.Equal(t, 1, st.HourlyCounts[notifications.TypeLike])

	_, ok = l.State("nobody")
	assert.False(t, ok)
}

func TestLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := ratelimiter.New(ratelimiter.WithClock(clock.Now), ratelimiter.WithStaleAfter(time.Hour))

	l.Admit("idle", notifications.TypeLike, ratelimiter.Limits{})
	l.Admit("throttled", notifications.TypeLike, ratelimiter.Limits{})
	l.Throttle("throttled", 3*time.Hour)
	l.SetUserLimit("override", notifications.TypeLike, ratelimiter.Limits{PerHour: 1})

	clock.Advance(2 * time.Hour)
	l.Admit("active", notifications.TypeLike, ratelimiter.Limits{})

	assert.Equal(t, 1, l.Cleanup())
	assert.Equal(t, 3, l.Len())
	_, ok := l.State("idle")
	assert.False(t, ok)
}

func TestLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	l := ratelimiter.New(ratelimiter.WithShards(4))
	limits := ratelimiter.Limits{PerHour: 50}

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if l.Admit("u1", notifications.TypeLike, limits).Allowed {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), allowed.Load())
}

func TestLimitsFromRule(t *testing.T) {
	t.Parallel()

	rule := notifications.DefaultRules()[notifications.TypeLike]
	assert.Equal(t, ratelimiter.Limits{PerHour: 20, PerDay: 100}, ratelimiter.LimitsFromRule(rule))
}
