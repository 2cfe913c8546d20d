package email

import "errors"

var (
	ErrAddressNotFound = errors.New("email address not found")
	ErrInvalidAddress  = errors.New("invalid email address")
)
