package scheduler

import "errors"

var (
	ErrNilRepository  = errors.New("scheduler requires a repository")
	ErrNilSubmitter   = errors.New("scheduler requires a submitter")
	ErrInvalidSpec    = errors.New("invalid schedule spec")
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrNotStarted     = errors.New("scheduler not started")
)
