package ratelimiter

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Limits caps how many notifications of one type a user receives.
// Zero means unlimited.
type Limits struct {
	PerHour int `json:"per_hour"`
	PerDay  int `json:"per_day"`
}

// Unlimited reports whether neither cap is set.
func (l Limits) Unlimited() bool {
	return l.PerHour <= 0 && l.PerDay <= 0
}

// LimitsFromRule extracts the caps of a processing rule.
func LimitsFromRule(r notifications.ProcessingRule) Limits {
	return Limits{PerHour: r.MaxPerHour, PerDay: r.MaxPerDay}
}

// Reason explains a rejected admission.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonThrottled   Reason = "throttled"
	ReasonHourlyLimit Reason = "hourly_limit"
	ReasonDailyLimit  Reason = "daily_limit"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed     bool
	Reason      Reason
	HourlyCount int
	DailyCount  int
	// RetryAfter is how long until the blocking window or throttle ends.
	RetryAfter time.Duration
}

// UserRateState holds one user's counters. Counters are reset lazily when
// their window boundary has passed.
type UserRateState struct {
	HourlyCounts   map[notifications.Type]int
	DailyCounts    map[notifications.Type]int
	HourResetAt    time.Time
	DayResetAt     time.Time
	ThrottledUntil time.Time
	Overrides      map[notifications.Type]Limits
	LastSeen       time.Time
}

func newUserRateState(now time.Time) *UserRateState {
	return &UserRateState{
		HourlyCounts: make(map[notifications.Type]int),
		DailyCounts:  make(map[notifications.Type]int),
		HourResetAt:  now.Add(time.Hour),
		DayResetAt:   now.Add(24 * time.Hour),
		LastSeen:     now,
	}
}

func (s *UserRateState) roll(now time.Time) {
	if !now.Before(s.HourResetAt) {
		clear(s.HourlyCounts)
		s.HourResetAt = now.Add(time.Hour)
	}
	if !now.Before(s.DayResetAt) {
		clear(s.DailyCounts)
		s.DayResetAt = now.Add(24 * time.Hour)
	}
}

func (s *UserRateState) clone() UserRateState {
	out := *s
	out.HourlyCounts = make(map[notifications.Type]int, len(s.HourlyCounts))
	for k, v := range s.HourlyCounts {
		out.HourlyCounts[k] = v
	}
	out.DailyCounts = make(map[notifications.Type]int, len(s.DailyCounts))
	for k, v := range s.DailyCounts {
		out.DailyCounts[k] = v
	}
	if s.Overrides != nil {
		out.Overrides = make(map[notifications.Type]Limits, len(s.Overrides))
		for k, v := range s.Overrides {
			out.Overrides[k] = v
		}
	}
	return out
}

type shard struct {
	mu    sync.Mutex
	users map[string]*UserRateState
}

// Limiter tracks per-user, per-type notification counts over hourly and
// daily windows. State is split across shards keyed by user id so that
// concurrent admissions for different users rarely contend.
type Limiter struct {
	shards     []*shard
	cooldown   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

// New creates a Limiter.
func New(opts ...Option) *Limiter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	l := &Limiter{
		shards:     make([]*shard, o.shards),
		cooldown:   o.cooldown,
		staleAfter: o.staleAfter,
		now:        o.now,
	}
	for i := range l.shards {
		l.shards[i] = &shard{users: make(map[string]*UserRateState)}
	}
	return l
}

func (l *Limiter) shardFor(userID string) *shard {
	return l.shards[xxhash.Sum64String(userID)%uint64(len(l.shards))]
}

// Admit records one notification of type t for userID if it fits within
// limits. A rejected notification is not counted. When a cap is breached and
// a cooldown is configured, the user is throttled for that long.
// User overrides set through SetUserLimit take precedence over limits.
func (l *Limiter) Admit(userID string, t notifications.Type, limits Limits) Decision {
	now := l.now()
	sh := l.shardFor(userID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.users[userID]
	if !ok {
		st = newUserRateState(now)
		sh.users[userID] = st
	}
	st.LastSeen = now
	st.roll(now)

	if now.Before(st.ThrottledUntil) {
		return Decision{
			Reason:      ReasonThrottled,
			HourlyCount: st.HourlyCounts[t],
			DailyCount:  st.DailyCounts[t],
			RetryAfter:  st.ThrottledUntil.Sub(now),
		}
	}

	if o, ok := st.Overrides[t]; ok {
		limits = o
	}

	hourly, daily := st.HourlyCounts[t], st.DailyCounts[t]
	reason := ReasonNone
	retry := time.Duration(0)
	switch {
	case limits.PerHour > 0 && hourly >= limits.PerHour:
		reason, retry = ReasonHourlyLimit, st.HourResetAt.Sub(now)
	case limits.PerDay > 0 && daily >= limits.PerDay:
		reason, retry = ReasonDailyLimit, st.DayResetAt.Sub(now)
	}

	if reason != ReasonNone {
		if l.cooldown > 0 {
			st.ThrottledUntil = now.Add(l.cooldown)
			retry = max(retry, l.cooldown)
		}
		return Decision{Reason: reason, HourlyCount: hourly, DailyCount: daily, RetryAfter: retry}
	}

	st.HourlyCounts[t] = hourly + 1
	st.DailyCounts[t] = daily + 1
	return Decision{Allowed: true, HourlyCount: hourly + 1, DailyCount: daily + 1}
}

// withState runs fn on the user's state, creating it when missing.
func (l *Limiter) withState(userID string, fn func(st *UserRateState, now time.Time)) {
	now := l.now()
	sh := l.shardFor(userID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.users[userID]
	if !ok {
		st = newUserRateState(now)
		sh.users[userID] = st
	}
	st.roll(now)
	fn(st, now)
}

// SetUserLimit overrides the caps for one user and type.
func (l *Limiter) SetUserLimit(userID string, t notifications.Type, limits Limits) {
	l.withState(userID, func(st *UserRateState, _ time.Time) {
		if st.Overrides == nil {
			st.Overrides = make(map[notifications.Type]Limits)
		}
		st.Overrides[t] = limits
	})
}

// ClearUserLimit removes an override set by SetUserLimit.
func (l *Limiter) ClearUserLimit(userID string, t notifications.Type) {
	l.withState(userID, func(st *UserRateState, _ time.Time) {
		delete(st.Overrides, t)
	})
}

// Throttle rejects every notification for userID for the given duration.
func (l *Limiter) Throttle(userID string, d time.Duration) {
	l.withState(userID, func(st *UserRateState, now time.Time) {
		st.ThrottledUntil = now.Add(d)
	})
}

// Unthrottle lifts a throttle early.
func (l *Limiter) Unthrottle(userID string) {
	l.withState(userID, func(st *UserRateState, _ time.Time) {
		st.ThrottledUntil = time.Time{}
	})
}

// ResetLimits clears the user's counters and throttle. Overrides are kept.
func (l *Limiter) ResetLimits(userID string) {
	l.withState(userID, func(st *UserRateState, now time.Time) {
		clear(st.HourlyCounts)
		clear(st.DailyCounts)
		st.HourResetAt = now.Add(time.Hour)
		st.DayResetAt = now.Add(24 * time.Hour)
		st.ThrottledUntil = time.Time{}
	})
}

// State returns a copy of the user's state.
func (l *Limiter) State(userID string) (UserRateState, bool) {
	sh := l.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.users[userID]
	if !ok {
		return UserRateState{}, false
	}
	return st.clone(), true
}

// Cleanup drops state for users inactive longer than the stale period that
// are neither throttled nor carry overrides. It returns how many were removed.
func (l *Limiter) Cleanup() int {
	now := l.now()
	removed := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		for id, st := range sh.users {
			if now.Sub(st.LastSeen) < l.staleAfter {
				continue
			}
			if now.Before(st.ThrottledUntil) || len(st.Overrides) > 0 {
				continue
			}
			delete(sh.users, id)
			removed++
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked users.
func (l *Limiter) Len() int {
	n := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		n += len(sh.users)
		sh.mu.Unlock()
	}
	return n
}
