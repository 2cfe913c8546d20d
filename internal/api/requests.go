package api

import (
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/channels/push"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// NotificationRequest is the wire form of a submitted notification.
// Channels and priority use their names ("push", "urgent").
type NotificationRequest struct {
	ID                string            `json:"id,omitempty"`
	UserID            string            `json:"user_id"`
	SenderID          string            `json:"sender_id,omitempty"`
	Type              string            `json:"type"`
	Priority          string            `json:"priority,omitempty"`
	Title             string            `json:"title,omitempty"`
	Message           string            `json:"message,omitempty"`
	ActionURL         string            `json:"action_url,omitempty"`
	TemplateID        string            `json:"template_id,omitempty"`
	TemplateData      map[string]string `json:"template_data,omitempty"`
	Channels          []string          `json:"channels,omitempty"`
	AllowBundling     *bool             `json:"allow_bundling,omitempty"`
	RespectQuietHours *bool             `json:"respect_quiet_hours,omitempty"`
	GroupKey          string            `json:"group_key,omitempty"`
	ScheduledAt       *time.Time        `json:"scheduled_at,omitempty"`
	ExpiresAt         *time.Time        `json:"expires_at,omitempty"`
}

// Notification converts the request, collecting every field problem.
// Bundling and quiet hours default to on.
func (req NotificationRequest) Notification() (notifications.Notification, error) {
	errs := ValidationError{}
	n := notifications.Notification{
		ID:                req.ID,
		UserID:            strings.TrimSpace(req.UserID),
		SenderID:          req.SenderID,
		Type:              notifications.Type(req.Type),
		Title:             req.Title,
		Message:           req.Message,
		ActionURL:         req.ActionURL,
		TemplateID:        req.TemplateID,
		TemplateData:      req.TemplateData,
		DisableBundling:   req.AllowBundling != nil && !*req.AllowBundling,
		RespectQuietHours: req.RespectQuietHours == nil || *req.RespectQuietHours,
		GroupKey:          req.GroupKey,
	}

	if n.UserID == "" {
		errs.Add("user_id", "is required")
	}
	if !n.Type.Valid() {
		errs.Add("type", "unknown notification type")
	}
	if req.Priority != "" {
		p, err := notifications.ParsePriority(req.Priority)
		if err != nil {
			errs.Add("priority", err.Error())
		}
		n.Priority = p
	}
	if len(req.Channels) > 0 {
		ch, err := notifications.ParseChannels(strings.Join(req.Channels, ","))
		if err != nil {
			errs.Add("channels", err.Error())
		}
		n.Channels = ch
	}
	if req.ScheduledAt != nil {
		n.ScheduledAt = *req.ScheduledAt
	}
	if req.ExpiresAt != nil {
		n.ExpiresAt = *req.ExpiresAt
	}
	return n, errs.Err()
}

// BulkRequest submits many notifications at once.
type BulkRequest struct {
	Notifications []NotificationRequest `json:"notifications"`
}

// ListRequest lists a user's notifications.
type ListRequest struct {
	UserPath
	Limit      int
	Offset     int
	OnlyUnread bool
	Types      []notifications.Type
}

func (l *ListRequest) setPage(limit, offset int) { l.Limit, l.Offset = limit, offset }

// ReadRequest marks notifications read.
type ReadRequest struct {
	UserPath
	IDs []string `json:"ids"`
}

// PreferencesRequest replaces a user's preferences. Channel lists use names.
type PreferencesRequest struct {
	UserPath
	Channels        map[string][]string      `json:"channels,omitempty"`
	Disabled        []string                 `json:"disabled,omitempty"`
	BlockedSenders  []string                 `json:"blocked_senders,omitempty"`
	PrioritySenders []string                 `json:"priority_senders,omitempty"`
	QuietHours      notifications.QuietHours `json:"quiet_hours"`
	HourlyLimits    map[string]int           `json:"hourly_limits,omitempty"`
}

// Preferences converts the request to the domain type.
func (req PreferencesRequest) Preferences() (notifications.Preferences, error) {
	errs := ValidationError{}
	p := notifications.Preferences{
		UserID:          req.UserID,
		BlockedSenders:  req.BlockedSenders,
		PrioritySenders: req.PrioritySenders,
		QuietHours:      req.QuietHours,
	}

	typeOf := func(field, name string) (notifications.Type, bool) {
		t := notifications.Type(name)
		if !t.Valid() {
			errs.Add(field, "unknown notification type "+name)
			return "", false
		}
		return t, true
	}

	if len(req.Channels) > 0 {
		p.Channels = make(map[notifications.Type]notifications.Channel, len(req.Channels))
		for name, list := range req.Channels {
			t, ok := typeOf("channels", name)
			if !ok {
				continue
			}
			ch, err := notifications.ParseChannels(strings.Join(list, ","))
			if err != nil {
				errs.Add("channels", err.Error())
				continue
			}
			p.Channels[t] = ch
		}
	}
	for _, name := range req.Disabled {
		if t, ok := typeOf("disabled", name); ok {
			p.Disabled = append(p.Disabled, t)
		}
	}
	if len(req.HourlyLimits) > 0 {
		p.HourlyLimits = make(map[notifications.Type]int, len(req.HourlyLimits))
		for name, limit := range req.HourlyLimits {
			if t, ok := typeOf("hourly_limits", name); ok {
				p.HourlyLimits[t] = limit
			}
		}
	}
	return p, errs.Err()
}

// PreferencesView is the wire form of stored preferences.
type PreferencesView struct {
	UserID          string                     `json:"user_id"`
	Channels        map[string][]string        `json:"channels,omitempty"`
	Disabled        []notifications.Type       `json:"disabled,omitempty"`
	BlockedSenders  []string                   `json:"blocked_senders,omitempty"`
	PrioritySenders []string                   `json:"priority_senders,omitempty"`
	QuietHours      notifications.QuietHours   `json:"quiet_hours"`
	HourlyLimits    map[notifications.Type]int `json:"hourly_limits,omitempty"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

func viewPreferences(p notifications.Preferences) PreferencesView {
	v := PreferencesView{
		UserID:          p.UserID,
		Disabled:        p.Disabled,
		BlockedSenders:  p.BlockedSenders,
		PrioritySenders: p.PrioritySenders,
		QuietHours:      p.QuietHours,
		HourlyLimits:    p.HourlyLimits,
		UpdatedAt:       p.UpdatedAt,
	}
	if len(p.Channels) > 0 {
		v.Channels = make(map[string][]string, len(p.Channels))
		for t, ch := range p.Channels {
			v.Channels[string(t)] = channelNames(ch)
		}
	}
	return v
}

// NotificationView is the wire form of a stored notification.
type NotificationView struct {
	ID            string               `json:"id"`
	TrackingID    string               `json:"tracking_id,omitempty"`
	UserID        string               `json:"user_id"`
	SenderID      string               `json:"sender_id,omitempty"`
	Type          notifications.Type   `json:"type"`
	Priority      string               `json:"priority"`
	Title         string               `json:"title"`
	Message       string               `json:"message"`
	ActionURL     string               `json:"action_url,omitempty"`
	TemplateData  map[string]string    `json:"template_data,omitempty"`
	Channels      []string             `json:"channels,omitempty"`
	GroupKey      string               `json:"group_key,omitempty"`
	Status        notifications.Status `json:"status"`
	Attempts      int                  `json:"delivery_attempts"`
	FailureReason string               `json:"failure_reason,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	SentAt        *time.Time           `json:"sent_at,omitempty"`
	ReadAt        *time.Time           `json:"read_at,omitempty"`
}

func viewNotification(n notifications.Notification) NotificationView {
	return NotificationView{
		ID:            n.ID,
		TrackingID:    n.TrackingID,
		UserID:        n.UserID,
		SenderID:      n.SenderID,
		Type:          n.Type,
		Priority:      n.Priority.String(),
		Title:         n.Title,
		Message:       n.Message,
		ActionURL:     n.ActionURL,
		TemplateData:  n.TemplateData,
		Channels:      channelNames(n.Channels),
		GroupKey:      n.GroupKey,
		Status:        n.Status,
		Attempts:      n.DeliveryAttempts,
		FailureReason: n.FailureReason,
		CreatedAt:     n.CreatedAt,
		SentAt:        n.SentAt,
		ReadAt:        n.ReadAt,
	}
}

func channelNames(ch notifications.Channel) []string {
	if ch == notifications.ChannelNone {
		return nil
	}
	return strings.Split(ch.String(), "|")
}

// DeviceRequest registers a push token.
type DeviceRequest struct {
	UserPath
	Token      string `json:"token"`
	Platform   string `json:"platform"`
	AppVersion string `json:"app_version,omitempty"`
	Language   string `json:"language,omitempty"`
}

// Device converts the request to a registry entry.
func (req DeviceRequest) Device() push.Device {
	return push.Device{
		UserID:     req.UserID,
		Token:      strings.TrimSpace(req.Token),
		Platform:   push.Platform(req.Platform),
		AppVersion: req.AppVersion,
		Language:   req.Language,
	}
}

// TokenRequest removes a push token.
type TokenRequest struct {
	UserPath
	Token string `json:"token"`
}

// EmailRequest sets a user's email address.
type EmailRequest struct {
	UserPath
	Email string `json:"email"`
}

// StreamRequest opens a realtime stream.
type StreamRequest struct {
	UserPath
	SessionID string
	Types     []notifications.Type
}
