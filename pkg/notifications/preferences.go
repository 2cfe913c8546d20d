package notifications

import (
	"fmt"
	"slices"
	"time"
)

// QuietHours is a daily window, in minutes after local midnight, during
// which non-urgent notifications are held back. Start > End wraps midnight.
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Timezone string `json:"timezone,omitempty"`
}

// Contains reports whether t falls inside the quiet window.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled || q.Start == q.End {
		return false
	}
	minute := q.local(t).Hour()*60 + q.local(t).Minute()
	if q.Start > q.End {
		return minute >= q.Start || minute < q.End
	}
	return minute >= q.Start && minute < q.End
}

// NextEnd returns the first moment at or after t when the window closes.
func (q QuietHours) NextEnd(t time.Time) time.Time {
	lt := q.local(t)
	midnight := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, lt.Location())
	end := midnight.Add(time.Duration(q.End) * time.Minute)
	if !end.After(lt) {
		end = end.AddDate(0, 0, 1)
	}
	return end.In(t.Location())
}

func (q QuietHours) local(t time.Time) time.Time {
	if q.Timezone == "" {
		return t.UTC()
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return t.UTC()
	}
	return t.In(loc)
}

// Preferences are the per-user delivery settings.
type Preferences struct {
	UserID string `json:"user_id"`

	// Channels maps a type to the channels the user accepts for it.
	// Types without an entry accept every channel.
	Channels map[Type]Channel `json:"channels,omitempty"`

	// Disabled lists types the user opted out of entirely.
	Disabled []Type `json:"disabled,omitempty"`

	BlockedSenders  []string `json:"blocked_senders,omitempty"`
	PrioritySenders []string `json:"priority_senders,omitempty"`

	QuietHours QuietHours `json:"quiet_hours"`

	// HourlyLimits overrides the rule's MaxPerHour for this user.
	HourlyLimits map[Type]int `json:"hourly_limits,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultPreferences accepts everything with no quiet hours.
func DefaultPreferences(userID string) Preferences {
	return Preferences{UserID: userID}
}

// ChannelsFor returns the channels the user accepts for type t.
func (p Preferences) ChannelsFor(t Type) Channel {
	if ch, ok := p.Channels[t]; ok {
		return ch
	}
	return ChannelAll
}

// TypeEnabled reports whether the user receives notifications of type t.
func (p Preferences) TypeEnabled(t Type) bool {
	return !slices.Contains(p.Disabled, t)
}

// SenderBlocked reports whether the user blocked the sender.
func (p Preferences) SenderBlocked(senderID string) bool {
	return senderID != "" && slices.Contains(p.BlockedSenders, senderID)
}

// PrioritySender reports whether the sender bypasses quiet hours.
func (p Preferences) PrioritySender(senderID string) bool {
	return senderID != "" && slices.Contains(p.PrioritySenders, senderID)
}

// Validate checks the quiet hours bounds and time zone.
func (p Preferences) Validate() error {
	if p.UserID == "" {
		return ErrMissingUserID
	}
	q := p.QuietHours
	if q.Start < 0 || q.Start >= 24*60 || q.End < 0 || q.End >= 24*60 {
		return fmt.Errorf("%w: quiet hours must be within a day", ErrInvalidPreferences)
	}
	if q.Timezone != "" {
		if _, err := time.LoadLocation(q.Timezone); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPreferences, err)
		}
	}
	for t, limit := range p.HourlyLimits {
		if limit < 0 {
			return fmt.Errorf("%w: negative hourly limit for %s", ErrInvalidPreferences, t)
		}
	}
	return nil
}
