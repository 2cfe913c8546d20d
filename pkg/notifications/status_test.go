package notifications_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	all := []notifications.Status{
		notifications.StatusPending, notifications.StatusSent, notifications.StatusDelivered,
		notifications.StatusRead, notifications.StatusFailed, notifications.StatusCancelled,
	}
	allowed := map[notifications.Status][]notifications.Status{
		notifications.StatusPending:   {notifications.StatusSent, notifications.StatusFailed, notifications.StatusCancelled},
		notifications.StatusSent:      {notifications.StatusDelivered, notifications.StatusRead},
		notifications.StatusDelivered: {notifications.StatusRead},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, notifications.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, notifications.StatusFailed.IsTerminal())
	assert.True(t, notifications.StatusCancelled.IsTerminal())
	assert.False(t, notifications.StatusPending.IsTerminal())
	assert.False(t, notifications.StatusRead.IsTerminal())
}

func TestNotification_Transition(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("full happy path stamps timestamps", func(t *testing.T) {
		t.Parallel()

		n := notifications.Notification{Status: notifications.StatusPending}
		require.NoError(t, n.Transition(notifications.StatusSent, now))
		require.NoError(t, n.Transition(notifications.StatusDelivered, now.Add(time.Second)))
		require.NoError(t, n.MarkAsRead(now.Add(2*time.Second)))

		require.NotNil(t, n.SentAt)
		require.NotNil(t, n.DeliveredAt)
		require.NotNil(t, n.ReadAt)
		assert.Equal(t, now, *n.SentAt)
		assert.Equal(t, now.Add(2*time.Second), *n.ReadAt)
		assert.Equal(t, notifications.StatusRead, n.Status)
	})

	t.Run("terminal states reject transitions", func(t *testing.T) {
		t.Parallel()

		n := notifications.Notification{Status: notifications.StatusPending}
		require.NoError(t, n.Fail("boom", now))
		assert.Equal(t, "boom", n.FailureReason)

		err := n.Transition(notifications.StatusSent, now)
		assert.ErrorIs(t, err, notifications.ErrInvalidTransition)
		assert.Equal(t, notifications.StatusFailed, n.Status)

		c := notifications.Notification{Status: notifications.StatusPending}
		require.NoError(t, c.Cancel("target deleted", now))
		assert.ErrorIs(t, c.Transition(notifications.StatusPending, now), notifications.ErrInvalidTransition)
	})

	t.Run("read requires prior send", func(t *testing.T) {
		t.Parallel()

		n := notifications.Notification{Status: notifications.StatusPending}
		assert.ErrorIs(t, n.MarkAsRead(now), notifications.ErrInvalidTransition)
		assert.Nil(t, n.ReadAt)
	})
}
