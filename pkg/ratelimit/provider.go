package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limits is the send budget of one provider. Zero means unlimited.
type Limits struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
}

// Result contains the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the send may proceed.
	Allowed bool

	// Remaining is the number of sends left in the tighter of the two buckets.
	Remaining int

	// ResetAt is when the next send would be allowed. Zero when allowed.
	ResetAt time.Time

	wait time.Duration
}

// RetryAfter returns how long to wait before the next send is allowed.
// Returns 0 if the send was allowed.
func (r Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return r.wait
}

// ProviderLimiter keeps an outbound provider inside its per-minute and
// per-hour quotas. Both buckets refill continuously and start full.
type ProviderLimiter struct {
	name   string
	limits Limits
	minute *rate.Limiter
	hour   *rate.Limiter
}

// NewProviderLimiter creates a limiter for the named provider.
func NewProviderLimiter(name string, limits Limits) (*ProviderLimiter, error) {
	if limits.PerMinute < 0 || limits.PerHour < 0 {
		return nil, ErrInvalidLimit
	}
	return &ProviderLimiter{
		name:   name,
		limits: limits,
		minute: bucket(limits.PerMinute, time.Minute),
		hour:   bucket(limits.PerHour, time.Hour),
	}, nil
}

func bucket(n int, window time.Duration) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(n)), n)
}

// Name returns the provider name the limiter was created for.
func (p *ProviderLimiter) Name() string { return p.name }

// Limits returns the configured budget.
func (p *ProviderLimiter) Limits() Limits { return p.limits }

// Allow consumes one send from both buckets if both have capacity.
func (p *ProviderLimiter) Allow() Result {
	return p.AllowAt(time.Now())
}

// AllowAt is Allow evaluated at the given instant.
// Tokens are only consumed when both buckets admit the send.
func (p *ProviderLimiter) AllowAt(now time.Time) Result {
	rm := p.minute.ReserveN(now, 1)
	rh := p.hour.ReserveN(now, 1)

	wait := max(rm.DelayFrom(now), rh.DelayFrom(now))
	if wait > 0 {
		rm.CancelAt(now)
		rh.CancelAt(now)
		return Result{ResetAt: now.Add(wait), wait: wait}
	}

	return Result{Allowed: true, Remaining: p.remaining(now)}
}

func (p *ProviderLimiter) remaining(now time.Time) int {
	r := -1
	for _, l := range []*rate.Limiter{p.minute, p.hour} {
		if l.Limit() == rate.Inf {
			continue
		}
		tokens := int(l.TokensAt(now))
		if r < 0 || tokens < r {
			r = tokens
		}
	}
	return max(r, 0)
}

// Check is Allow returning a *LimitError when the send is rejected.
func (p *ProviderLimiter) Check() error {
	res := p.Allow()
	if res.Allowed {
		return nil
	}
	return &LimitError{Provider: p.name, RetryAfter: res.RetryAfter()}
}

// Wait blocks until a send is allowed or ctx is done.
func (p *ProviderLimiter) Wait(ctx context.Context) error {
	if err := p.minute.Wait(ctx); err != nil {
		return err
	}
	return p.hour.Wait(ctx)
}
