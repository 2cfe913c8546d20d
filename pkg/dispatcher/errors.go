package dispatcher

import (
	"context"
	"errors"

	"github.com/dmitrymomot/notifykit/pkg/async"
	"github.com/dmitrymomot/notifykit/pkg/ratelimit"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrRender           = errors.New("render failed")
	ErrNoTargets        = errors.New("no delivery targets")
	ErrNoChannels       = errors.New("no eligible channels")
	ErrExpired          = errors.New("notification expired before delivery")

	// ErrTransient marks failures worth retrying: timeouts, 5xx responses and
	// provider throttling.
	ErrTransient = errors.New("transient delivery failure")
	// ErrPermanent marks failures that will not succeed on retry.
	ErrPermanent = errors.New("permanent delivery failure")
	// ErrTokenInvalid means the target itself is dead (unregistered device,
	// bounced address) and should be deactivated.
	ErrTokenInvalid = errors.New("delivery target invalid")

	// ErrRateLimitExceeded is returned when a provider quota is exhausted.
	ErrRateLimitExceeded = ratelimit.ErrRateLimitExceeded
)

// IsRetryable reports whether another attempt may succeed. Errors that are
// not classified as permanent are retried.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrPermanent),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrTemplateNotFound),
		errors.Is(err, ErrRender),
		errors.Is(err, ErrNoTargets),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrTransient),
		errors.Is(err, ErrRateLimitExceeded),
		errors.Is(err, async.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return true
	}
}

// IsTokenInvalid reports whether err means the target should be deactivated.
func IsTokenInvalid(err error) bool {
	return errors.Is(err, ErrTokenInvalid)
}
