// Package ratelimiter decides whether a user may receive another notification
// of a given type.
//
// Each user has hourly and daily counters per notification type. Windows
// start on first use and are reset lazily the next time the user is seen after
// the boundary, so there is no timer per user. Cleanup removes users that have
// been idle for longer than the stale period to bound memory.
//
// # Usage
//
//	limiter := ratelimiter.New(ratelimiter.WithCooldown(10 * time.Minute))
//
//	d := limiter.Admit(userID, notifications.TypeLike, ratelimiter.Limits{PerHour: 20, PerDay: 100})
//	if !d.Allowed {
//	    // dropped: d.Reason is throttled, hourly_limit or daily_limit
//	}
//
// Manual overrides:
//
//	limiter.SetUserLimit(userID, notifications.TypeLike, ratelimiter.Limits{PerHour: 5})
//	limiter.Throttle(userID, time.Hour)
//	limiter.Unthrottle(userID)
//	limiter.ResetLimits(userID)
//
// A rejected call never increments the counters. Limiter is safe for
// concurrent use; locks are sharded by user id.
package ratelimiter
