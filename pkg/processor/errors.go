package processor

import "errors"

var (
	ErrQueueFull     = errors.New("notification queue is full")
	ErrNotRunning    = errors.New("processor is not running")
	ErrAlreadyQueued = errors.New("notification is already being processed")
	ErrNilRepository = errors.New("processor requires a repository")
	ErrInvalidRule   = errors.New("invalid processing rule")
)
