package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidLimit      = errors.New("invalid limit")
)

// LimitError reports a rejected send and how long to wait before retrying.
// It matches ErrRateLimitExceeded with errors.Is.
type LimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s: retry after %s", ErrRateLimitExceeded, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s: retry after %s", ErrRateLimitExceeded, e.Provider, e.RetryAfter)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// RetryAfter extracts the wait hint from err. It returns false when err is
// not a rate limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var le *LimitError
	if errors.As(err, &le) {
		return le.RetryAfter, true
	}
	return 0, false
}
