package dedup

import "errors"

var (
	ErrStoreUnavailable = errors.New("dedup store unavailable")
	ErrEmptyKey         = errors.New("dedup key is empty")
)
