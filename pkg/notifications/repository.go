package notifications

import (
	"context"
	"time"
)

// Repository persists notifications and preferences. The engine only talks
// to storage through this interface.
type Repository interface {
	Create(ctx context.Context, n Notification) error
	Update(ctx context.Context, n Notification) error
	Get(ctx context.Context, id string) (*Notification, error)

	BulkCreate(ctx context.Context, ns []Notification) error
	BulkUpdate(ctx context.Context, ns []Notification) error
	BulkDelete(ctx context.Context, ids []string) error

	// MarkAsRead moves the given notifications of userID to read. Ids that
	// are unknown or cannot transition are skipped.
	MarkAsRead(ctx context.Context, userID string, ids ...string) (int, error)
	UpdateStatus(ctx context.Context, id string, status Status, reason string) error

	// GetPending returns pending notifications that are due, oldest first.
	GetPending(ctx context.Context, limit int) ([]Notification, error)
	// GetScheduled returns pending notifications scheduled at or before the given time.
	GetScheduled(ctx context.Context, before time.Time, limit int) ([]Notification, error)
	// GetExpired returns pending notifications whose expiry is at or before now.
	GetExpired(ctx context.Context, now time.Time, limit int) ([]Notification, error)

	ListForUser(ctx context.Context, userID string, opts ListOptions) ([]Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)

	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
	SavePreferences(ctx context.Context, p Preferences) error

	CountByStatus(ctx context.Context, since time.Time) (map[Status]int, error)
	CountByType(ctx context.Context, since time.Time) (map[Type]int, error)
}

// ListOptions provides filtering and pagination options for listing notifications.
type ListOptions struct {
	Limit      int        // Maximum number of notifications to return (0 = no limit)
	Offset     int        // Number of notifications to skip for pagination
	OnlyUnread bool       // When true, only return sent or delivered notifications
	Types      []Type     // If specified, only return notifications of these types
	Since      *time.Time // If specified, only return notifications created after this time
}
