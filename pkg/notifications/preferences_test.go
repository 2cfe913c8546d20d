package notifications_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func TestQuietHours_Contains(t *testing.T) {
	t.Parallel()

	at := func(h, m int) time.Time { return time.Date(2025, 3, 1, h, m, 0, 0, time.UTC) }

	overnight := notifications.QuietHours{Enabled: true, Start: 22 * 60, End: 8 * 60}
	daytime := notifications.QuietHours{Enabled: true, Start: 13 * 60, End: 14 * 60}

	tests := []struct {
		name string
		q    notifications.QuietHours
		t    time.Time
		want bool
	}{
		{name: "disabled", q: notifications.QuietHours{Start: 0, End: 600}, t: at(1, 0), want: false},
		{name: "overnight late evening", q: overnight, t: at(23, 30), want: true},
		{name: "overnight early morning", q: overnight, t: at(7, 59), want: true},
		{name: "overnight end boundary", q: overnight, t: at(8, 0), want: false},
		{name: "overnight afternoon", q: overnight, t: at(15, 0), want: false},
		{name: "daytime inside", q: daytime, t: at(13, 30), want: true},
		{name: "daytime outside", q: daytime, t: at(12, 59), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.q.Contains(tt.t))
		})
	}
}

func TestQuietHours_NextEnd(t *testing.T) {
	t.Parallel()

	q := notifications.QuietHours{Enabled: true, Start: 22 * 60, End: 8 * 60}

	late := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC), q.NextEnd(late))

	early := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), q.NextEnd(early))
}

func TestPreferences(t *testing.T) {
	t.Parallel()

	p := notifications.Preferences{
		UserID:          "u1",
		Channels:        map[notifications.Type]notifications.Channel{notifications.TypeLike: notifications.ChannelInApp},
		Disabled:        []notifications.Type{notifications.TypePromotion},
		BlockedSenders:  []string{"spammer"},
		PrioritySenders: []string{"bestie"},
	}

	assert.Equal(t, notifications.ChannelInApp, p.ChannelsFor(notifications.TypeLike))
	assert.Equal(t, notifications.ChannelAll, p.ChannelsFor(notifications.TypeComment))
	assert.False(t, p.TypeEnabled(notifications.TypePromotion))
	assert.True(t, p.TypeEnabled(notifications.TypeLike))
	assert.True(t, p.SenderBlocked("spammer"))
	assert.False(t, p.SenderBlocked(""))
	assert.True(t, p.PrioritySender("bestie"))
	assert.NoError(t, p.Validate())
}

func TestPreferences_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		p       notifications.Preferences
		wantErr bool
	}{
		{name: "defaults", p: notifications.DefaultPreferences("u1")},
		{name: "missing user", p: notifications.Preferences{}, wantErr: true},
		{name: "quiet hours out of range", p: notifications.Preferences{UserID: "u1", QuietHours: notifications.QuietHours{Start: 24 * 60}}, wantErr: true},
		{name: "bad timezone", p: notifications.Preferences{UserID: "u1", QuietHours: notifications.QuietHours{Timezone: "Mars/Olympus"}}, wantErr: true},
		{name: "negative limit", p: notifications.Preferences{UserID: "u1", HourlyLimits: map[notifications.Type]int{notifications.TypeLike: -1}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChannel(t *testing.T) {
	t.Parallel()

	ch := notifications.ChannelPush | notifications.ChannelEmail
	assert.True(t, ch.Has(notifications.ChannelPush))
	assert.False(t, ch.Has(notifications.ChannelInApp))
	assert.False(t, ch.Has(notifications.ChannelNone))
	assert.Equal(t, 2, ch.Count())
	assert.Equal(t, []notifications.Channel{notifications.ChannelPush, notifications.ChannelEmail}, ch.Split())
	assert.Equal(t, "push|email", ch.String())
	assert.Equal(t, notifications.ChannelPush, ch.Intersect(notifications.ChannelPush|notifications.ChannelInApp))

	parsed, err := notifications.ParseChannels("push, email")
	assert.NoError(t, err)
	assert.Equal(t, ch, parsed)

	all, err := notifications.ParseChannels("all")
	assert.NoError(t, err)
	assert.Equal(t, notifications.ChannelAll, all)

	_, err = notifications.ParseChannels("pager")
	assert.ErrorIs(t, err, notifications.ErrUnknownChannel)
}

func TestDefaultRules(t *testing.T) {
	t.Parallel()

	rules := notifications.DefaultRules()

	like := rules[notifications.TypeLike]
	assert.True(t, like.Batches())
	assert.Equal(t, 20, like.MaxBatchSize)
	assert.Equal(t, 30*time.Minute, like.DeduplicationWindow)

	follow := rules[notifications.TypeFollow]
	assert.False(t, follow.Batches())
	assert.Equal(t, 24*time.Hour, follow.DeduplicationWindow)

	dm := rules[notifications.TypeDirectMessage]
	assert.Zero(t, dm.MaxPerHour)
	assert.Zero(t, dm.MaxPerDay)
	assert.Equal(t, notifications.PriorityUrgent, dm.DefaultPriority)

	_, ok := rules[notifications.TypePromotion]
	assert.False(t, ok)
}
