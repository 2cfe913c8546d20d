package realtime

import (
	"time"

	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Event kinds pushed to sessions.
const (
	KindNotification = "notification"
	KindRead         = "read"
	KindUnreadCount  = "unread_count"
)

// Event is the JSON frame written to a socket or SSE stream.
type Event struct {
	Kind           string             `json:"kind"`
	NotificationID string             `json:"notification_id,omitempty"`
	TrackingID     string             `json:"tracking_id,omitempty"`
	UserID         string             `json:"user_id"`
	Type           notifications.Type `json:"type,omitempty"`
	Priority       string             `json:"priority,omitempty"`
	Title          string             `json:"title,omitempty"`
	Body           string             `json:"body,omitempty"`
	ActionURL      string             `json:"action_url,omitempty"`
	GroupKey       string             `json:"group_key,omitempty"`
	Data           map[string]string  `json:"data,omitempty"`
	Count          int                `json:"count,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// EventFromPayload converts a rendered payload to a notification event.
func EventFromPayload(p dispatcher.Payload) Event {
	return Event{
		Kind:           KindNotification,
		NotificationID: p.NotificationID,
		TrackingID:     p.TrackingID,
		UserID:         p.UserID,
		Type:           p.Type,
		Priority:       p.Priority.String(),
		Title:          p.Title,
		Body:           p.Body,
		ActionURL:      p.ActionURL,
		GroupKey:       p.GroupKey,
		Data:           p.Data,
		CreatedAt:      p.CreatedAt,
	}
}
