package pgstore

import "errors"

var (
	ErrNilPool      = errors.New("pgstore: nil connection pool")
	ErrMissingID    = errors.New("pgstore: notification id is required")
	ErrOwnerChanged = errors.New("pgstore: notification owner cannot change")
)
