package batcher

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Batch groups notifications of one type for one user that share a group key.
type Batch struct {
	ID           string
	UserID       string
	Type         notifications.Type
	GroupKey     string
	Members      []notifications.Notification
	CreatedAt    time.Time
	ScheduledFor time.Time
	MaxSize      int
}

// MemberIDs returns the ids of the batch members in arrival order.
func (b Batch) MemberIDs() []string {
	ids := make([]string, len(b.Members))
	for i, m := range b.Members {
		ids[i] = m.ID
	}
	return ids
}

// Size returns the number of members.
func (b Batch) Size() int { return len(b.Members) }

// Full reports whether the batch reached its size cap.
func (b Batch) Full() bool { return b.MaxSize > 0 && len(b.Members) >= b.MaxSize }

// Due reports whether the batch window has elapsed.
func (b Batch) Due(now time.Time) bool { return !now.Before(b.ScheduledFor) }

// Aggregate builds the single notification delivered in place of the batch.
// Members that expired while waiting are skipped. It returns false when no
// live member remains.
func Aggregate(b Batch, now time.Time) (notifications.Notification, bool) {
	live := make([]notifications.Notification, 0, len(b.Members))
	for _, m := range b.Members {
		if !m.IsExpired(now) {
			live = append(live, m)
		}
	}
	if len(live) == 0 {
		return notifications.Notification{}, false
	}
	if len(live) == 1 {
		return live[0], true
	}

	first := live[0]
	agg := notifications.Notification{
		ID:                uuid.NewString(),
		TrackingID:        b.ID,
		Digest:            true,
		UserID:            b.UserID,
		Type:              b.Type,
		GroupKey:          b.GroupKey,
		ActionURL:         first.ActionURL,
		RespectQuietHours: first.RespectQuietHours,
		CreatedAt:         now,
		ScheduledAt:       now,
		Status:            notifications.StatusPending,
	}

	senders := make([]string, 0, len(live))
	for _, m := range live {
		agg.Channels |= m.Channels
		agg.Priority = max(agg.Priority, m.Priority)
		if m.ExpiresAt.After(agg.ExpiresAt) {
			agg.ExpiresAt = m.ExpiresAt
		}
		if m.SenderID != "" && !slices.Contains(senders, m.SenderID) {
			senders = append(senders, m.SenderID)
		}
	}

	count := strconv.Itoa(len(live))
	agg.Title = fmt.Sprintf("%s new %s notifications", count, strings.ReplaceAll(string(b.Type), "_", " "))
	agg.Message = summarize(senders, len(live))
	agg.TemplateData = map[string]string{
		"count":     count,
		"type":      string(b.Type),
		"senders":   strings.Join(senders, ","),
		"group_key": b.GroupKey,
	}
	if len(senders) > 0 {
		agg.TemplateData["first_sender"] = senders[0]
	}
	return agg, true
}

func summarize(senders []string, count int) string {
	switch len(senders) {
	case 0:
		return fmt.Sprintf("You have %d new notifications", count)
	case 1:
		return senders[0]
	case 2:
		return senders[0] + " and " + senders[1]
	default:
		return fmt.Sprintf("%s and %d others", senders[0], len(senders)-1)
	}
}
