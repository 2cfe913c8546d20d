package notifications

import (
	"fmt"
	"strings"
	"time"
)

// DefaultExpiry is applied when neither the notification nor its rule sets one.
const DefaultExpiry = 30 * 24 * time.Hour

// Type classifies the event a notification describes.
type Type string

const (
	TypeLike              Type = "like"
	TypeComment           Type = "comment"
	TypeFollow            Type = "follow"
	TypeMention           Type = "mention"
	TypeReply             Type = "reply"
	TypeRenote            Type = "renote"
	TypeQuote             Type = "quote"
	TypeDirectMessage     Type = "direct_message"
	TypeSystemAlert       Type = "system_alert"
	TypePromotion         Type = "promotion"
	TypeTrending          Type = "trending"
	TypeFollowerMilestone Type = "follower_milestone"
	TypeNoteMilestone     Type = "note_milestone"
)

// AllTypes lists every known notification type.
func AllTypes() []Type {
	return []Type{
		TypeLike, TypeComment, TypeFollow, TypeMention, TypeReply, TypeRenote, TypeQuote,
		TypeDirectMessage, TypeSystemAlert, TypePromotion, TypeTrending,
		TypeFollowerMilestone, TypeNoteMilestone,
	}
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Priority represents the notification priority level.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority converts a priority name back to its value.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPriority, s)
	}
}

// Notification is one event requiring delivery.
type Notification struct {
	ID         string `json:"id"`
	TrackingID string `json:"tracking_id,omitempty"`

	// Digest marks the aggregate of a batch. Channels render its title and
	// message as-is instead of the per-type template.
	Digest bool `json:"digest,omitempty"`

	UserID   string `json:"user_id"`
	SenderID string `json:"sender_id,omitempty"`

	Type     Type     `json:"type"`
	Priority Priority `json:"priority"`

	Title        string            `json:"title"`
	Message      string            `json:"message"`
	ActionURL    string            `json:"action_url,omitempty"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`

	Channels          Channel `json:"channels"`
	DisableBundling   bool    `json:"disable_bundling,omitempty"`
	RespectQuietHours bool    `json:"respect_quiet_hours"`
	GroupKey          string  `json:"group_key,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`

	Status           Status `json:"status"`
	DeliveryAttempts int    `json:"delivery_attempts"`
	FailureReason    string `json:"failure_reason,omitempty"`
}

// ApplyDefaults fills intake-time fields that callers usually leave empty.
// expiry is the rule's expiry duration; zero falls back to DefaultExpiry.
func (n *Notification) ApplyDefaults(now time.Time, expiry time.Duration) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.ScheduledAt.IsZero() {
		n.ScheduledAt = n.CreatedAt
	}
	if n.ExpiresAt.IsZero() {
		if expiry <= 0 {
			expiry = DefaultExpiry
		}
		n.ExpiresAt = n.CreatedAt.Add(expiry)
	}
	if n.Status == "" {
		n.Status = StatusPending
	}
	if n.Priority == 0 {
		n.Priority = PriorityNormal
	}
}

// Validate checks the fields required for delivery.
func (n *Notification) Validate(now time.Time) error {
	switch {
	case strings.TrimSpace(n.UserID) == "":
		return ErrMissingUserID
	case n.Type == "":
		return ErrMissingType
	case !n.Type.Valid():
		return fmt.Errorf("%w: %q", ErrUnknownType, n.Type)
	case n.Title == "" && n.Message == "" && n.TemplateID == "":
		return ErrMissingContent
	case !n.ExpiresAt.IsZero() && !n.ExpiresAt.After(n.CreatedAt):
		return ErrInvalidExpiry
	case !n.ScheduledAt.IsZero() && n.ScheduledAt.Before(n.CreatedAt):
		return ErrInvalidSchedule
	case n.IsExpired(now):
		return ErrExpired
	}
	return nil
}

// IsExpired returns true if the notification has passed its expiry time.
func (n *Notification) IsExpired(now time.Time) bool {
	if n.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(n.ExpiresAt)
}

// IsDue reports whether the notification's scheduled time has arrived.
func (n *Notification) IsDue(now time.Time) bool {
	return !now.Before(n.ScheduledAt)
}

// MarkAsRead moves the notification to read.
func (n *Notification) MarkAsRead(now time.Time) error {
	return n.Transition(StatusRead, now)
}

// DedupKeyParts returns the fields that identify near-identical events.
func (n *Notification) DedupKeyParts() []string {
	return []string{n.UserID, string(n.Type), n.SenderID, n.GroupKey}
}

// Summary is a short human-readable description used in logs.
func (n *Notification) Summary() string {
	var sb strings.Builder
	sb.WriteString(string(n.Type))
	sb.WriteString(" notification for ")
	sb.WriteString(n.UserID)
	if n.SenderID != "" {
		sb.WriteString(" from ")
		sb.WriteString(n.SenderID)
	}
	return sb.String()
}

// Clone returns a deep copy safe for concurrent mutation.
func (n Notification) Clone() Notification {
	if n.TemplateData != nil {
		data := make(map[string]string, len(n.TemplateData))
		for k, v := range n.TemplateData {
			data[k] = v
		}
		n.TemplateData = data
	}
	n.SentAt = cloneTime(n.SentAt)
	n.DeliveredAt = cloneTime(n.DeliveredAt)
	n.ReadAt = cloneTime(n.ReadAt)
	return n
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
