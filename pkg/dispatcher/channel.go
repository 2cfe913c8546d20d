package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/async"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Channel delivers rendered notifications to one kind of destination.
type Channel interface {
	// Kind is the single channel bit this implementation serves.
	Kind() notifications.Channel
	// Template returns the template used for a notification type.
	Template(t notifications.Type) (notifications.Template, bool)
	// Render produces the channel payload for n.
	Render(n notifications.Notification, tmpl notifications.Template) (Payload, error)
	// Targets lists the user's active destinations: addresses, device
	// tokens or stream ids.
	Targets(ctx context.Context, userID string) ([]string, error)
	// Send delivers payload to one target. The future resolves when the
	// provider answered or ctx is done.
	Send(ctx context.Context, payload Payload, target string) *async.Future[Result]
	Stats() map[string]int64
	Health(ctx context.Context) error
}

// TargetManager is implemented by channels that can retire a dead target.
type TargetManager interface {
	DeactivateTarget(ctx context.Context, userID, target string) error
}

// Payload is a notification rendered for one channel.
type Payload struct {
	NotificationID string
	TrackingID     string
	UserID         string
	SenderID       string
	Type           notifications.Type
	Priority       notifications.Priority
	Subject        string
	Title          string
	Body           string
	HTML           string
	ActionURL      string
	GroupKey       string
	Data           map[string]string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Result describes one send to one target.
type Result struct {
	Channel      notifications.Channel
	Target       string
	Success      bool
	MessageID    string
	ErrorCode    string
	Err          error
	StartedAt    time.Time
	CompletedAt  time.Time
	Attempts     int
	TokenInvalid bool
	// RetryAfter is a provider hint for the next attempt.
	RetryAfter time.Duration
}

// Duration is the wall time of the send.
func (r Result) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// RenderPayload fills a Payload from n and tmpl using the shared placeholder
// renderer. Empty template fields fall back to the notification's own title
// and message. A missing required variable wraps ErrRender. Batch digests
// carry their own title and message, so the per-type copy is bypassed.
func RenderPayload(n notifications.Notification, tmpl notifications.Template) (Payload, error) {
	if IsDigest(n) {
		tmpl.Subject, tmpl.Title, tmpl.Body = "", "{{title}}", "{{message}}"
		tmpl.Required = nil
	}

	vars := tmpl.Vars(n)
	if err := tmpl.Check(vars); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrRender, err)
	}

	p := Payload{
		NotificationID: n.ID,
		TrackingID:     n.TrackingID,
		UserID:         n.UserID,
		SenderID:       n.SenderID,
		Type:           n.Type,
		Priority:       n.Priority,
		Subject:        notifications.Render(tmpl.Subject, vars),
		Title:          notifications.Render(tmpl.Title, vars),
		Body:           notifications.Render(tmpl.Body, vars),
		HTML:           notifications.Render(tmpl.HTML, vars),
		ActionURL:      n.ActionURL,
		GroupKey:       n.GroupKey,
		Data:           vars,
		CreatedAt:      n.CreatedAt,
		ExpiresAt:      n.ExpiresAt,
	}
	if p.Title == "" {
		p.Title = vars["title"]
	}
	if p.Body == "" {
		p.Body = vars["message"]
	}
	if p.Subject == "" {
		p.Subject = p.Title
	}
	return p, nil
}

// IsDigest reports whether n is an aggregate built from a batch.
func IsDigest(n notifications.Notification) bool {
	return n.Digest
}
