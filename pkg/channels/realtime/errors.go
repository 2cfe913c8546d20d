package realtime

import "errors"

var (
	ErrSessionNotFound = errors.New("realtime session not found")
	ErrMissingUserID   = errors.New("realtime session requires a user id")
	ErrNoListener      = errors.New("no live session accepted the event")
	ErrClosed          = errors.New("realtime channel closed")
)
