package notifications

import (
	"errors"
	"fmt"
)

var (
	// ErrNotificationNotFound is returned when a notification is not found.
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrPreferencesNotFound is returned when a user has no stored preferences.
	ErrPreferencesNotFound = errors.New("notification preferences not found")
	// ErrDuplicateID is returned when creating a notification whose id is taken.
	ErrDuplicateID = errors.New("notification id already exists")

	// ErrValidation groups every intake validation failure.
	ErrValidation      = errors.New("invalid notification")
	ErrMissingUserID   = fmt.Errorf("%w: user id is required", ErrValidation)
	ErrMissingType     = fmt.Errorf("%w: type is required", ErrValidation)
	ErrUnknownType     = fmt.Errorf("%w: unknown notification type", ErrValidation)
	ErrMissingContent  = fmt.Errorf("%w: title, message or template is required", ErrValidation)
	ErrInvalidExpiry   = fmt.Errorf("%w: expiry must be after creation time", ErrValidation)
	ErrInvalidSchedule = fmt.Errorf("%w: schedule must not precede creation time", ErrValidation)
	ErrExpired         = fmt.Errorf("%w: notification expired", ErrValidation)

	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrUnknownChannel     = errors.New("unknown delivery channel")
	ErrUnknownPriority    = errors.New("unknown priority")
	ErrMissingVariable    = errors.New("required template variable missing")
	ErrInvalidPreferences = errors.New("invalid notification preferences")
)
