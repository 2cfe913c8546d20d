package ratelimiter

import "time"

const (
	DefaultShards     = 32
	DefaultStaleAfter = 24 * time.Hour
)

type options struct {
	shards     int
	cooldown   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func defaultOptions() *options {
	return &options{
		shards:     DefaultShards,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
}

// Option configures a Limiter.
type Option func(*options)

// WithCooldown throttles a user for d after they breach a cap.
// Zero (the default) rejects only while the cap is exceeded.
func WithCooldown(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.cooldown = d
		}
	}
}

// WithStaleAfter sets how long a user may stay inactive before Cleanup
// removes their state.
func WithStaleAfter(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.staleAfter = d
		}
	}
}

// WithShards sets the number of lock shards.
func WithShards(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shards = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
