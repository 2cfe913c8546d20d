// Package ratelimit keeps outbound delivery providers within their quotas.
//
// A ProviderLimiter combines a per-minute and a per-hour token bucket built on
// golang.org/x/time/rate. A send is admitted only when both buckets have a
// token; a rejected send consumes nothing.
//
//	limiter, _ := ratelimit.NewProviderLimiter("email", ratelimit.Limits{PerMinute: 100, PerHour: 1000})
//	if err := limiter.Check(); err != nil {
//	    wait, _ := ratelimit.RetryAfter(err)
//	    // back off for wait
//	}
package ratelimit
