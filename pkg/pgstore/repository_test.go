package pgstore_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/pgstore"
)

var (
	poolOnce sync.Once
	pool     *pgxpool.Pool
	poolErr  error
)

// newRepo connects to NOTIFYKIT_TEST_PG_URL and migrates once per run.
// Every test works on its own user ids so tests can share the database.
func newRepo(t *testing.T, opts ...pgstore.Option) *pgstore.Repository {
	t.Helper()

	url := os.Getenv("NOTIFYKIT_TEST_PG_URL")
	if url == "" {
		t.Skip("NOTIFYKIT_TEST_PG_URL not set")
	}

	poolOnce.Do(func() {
		ctx := context.Background()
		cfg := pg.Config{
			ConnectionString: url,
			MaxOpenConns:     10,
			RetryAttempts:    3,
			RetryInterval:    time.Second,
			MigrationsTable:  "notifykit_test_migrations",
		}
		pool, poolErr = pg.Connect(ctx, cfg)
		if poolErr != nil {
			return
		}
		poolErr = pgstore.Migrate(ctx, pool, cfg, nil)
	})
	require.NoError(t, poolErr)

	repo, err := pgstore.New(pool, opts...)
	require.NoError(t, err)
	return repo
}

func newNotification(userID string, created time.Time) notifications.Notification {
	return notifications.Notification{
		ID:           uuid.NewString(),
		UserID:       userID,
		SenderID:     "alice",
		Type:         notifications.TypeComment,
		Priority:     notifications.PriorityNormal,
		Title:        "New comment",
		Message:      "alice commented on your note",
		TemplateData: map[string]string{"note": "hello"},
		Channels:     notifications.ChannelInApp | notifications.ChannelPush,
		CreatedAt:    created,
		ScheduledAt:  created,
		ExpiresAt:    created.Add(24 * time.Hour),
		Status:       notifications.StatusPending,
	}
}

func TestNew_NilPool(t *testing.T) {
	t.Parallel()

	_, err := pgstore.New(nil)
	assert.ErrorIs(t, err, pgstore.ErrNilPool)
}

func TestRepository_CreateGetUpdate(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	n := newNotification(uuid.NewString(), now)
	require.NoError(t, repo.Create(ctx, n))
	assert.ErrorIs(t, repo.Create(ctx, n), notifications.ErrDuplicateID)

	got, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.Type, got.Type)
	assert.Equal(t, n.Channels, got.Channels)
	assert.Equal(t, n.TemplateData, got.TemplateData)
	assert.True(t, n.ExpiresAt.Equal(got.ExpiresAt))
	assert.Nil(t, got.SentAt)

	got.DeliveryAttempts = 2
	got.FailureReason = "timeout"
	require.NoError(t, repo.Update(ctx, *got))

	again, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.DeliveryAttempts)
	assert.Equal(t, "timeout", again.FailureReason)

	moved := *again
	moved.UserID = "someone-else"
	assert.ErrorIs(t, repo.Update(ctx, moved), pgstore.ErrOwnerChanged)

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, notifications.ErrNotificationNotFound)
	assert.ErrorIs(t, repo.Update(ctx, newNotification("ghost", now)), notifications.ErrNotificationNotFound)
}

func TestRepository_UpdateStatus(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()

	n := newNotification(uuid.NewString(), time.Now().UTC())
	require.NoError(t, repo.Create(ctx, n))

	require.NoError(t, repo.UpdateStatus(ctx, n.ID, notifications.StatusSent, ""))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, n.ID, notifications.StatusCancelled, "late"), notifications.ErrInvalidTransition)

	got, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusSent, got.Status)
	assert.NotNil(t, got.SentAt)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.NewString(), notifications.StatusSent, ""), notifications.ErrNotificationNotFound)
}

func TestRepository_Bulk(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()

	user := uuid.NewString()
	now := time.Now().UTC()
	a, b := newNotification(user, now), newNotification(user, now.Add(time.Second))
	require.NoError(t, repo.BulkCreate(ctx, []notifications.Notification{a, b}))

	// One duplicate rolls back the whole batch.
	c := newNotification(user, now)
	assert.ErrorIs(t, repo.BulkCreate(ctx, []notifications.Notification{c, a}), notifications.ErrDuplicateID)
	_, err := repo.Get(ctx, c.ID)
	assert.ErrorIs(t, err, notifications.ErrNotificationNotFound)

	a.Status, b.Status = notifications.StatusCancelled, notifications.StatusCancelled
	ghost := newNotification(user, now)
	err = repo.BulkUpdate(ctx, []notifications.Notification{a, ghost, b})
	assert.ErrorIs(t, err, notifications.ErrNotificationNotFound)

	got, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusCancelled, got.Status)

	require.NoError(t, repo.BulkDelete(ctx, []string{a.ID, b.ID, ghost.ID}))
	list, err := repo.ListForUser(ctx, user, notifications.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRepository_Queues(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	repo := newRepo(t, pgstore.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	user := uuid.NewString()

	due := newNotification(user, now.Add(-time.Minute))
	later := newNotification(user, now.Add(-time.Minute))
	later.ScheduledAt = now.Add(time.Hour)
	expired := newNotification(user, now.Add(-2*time.Hour))
	expired.ExpiresAt = now.Add(-time.Hour)
	require.NoError(t, repo.BulkCreate(ctx, []notifications.Notification{due, later, expired}))

	ids := func(ns []notifications.Notification) []string {
		var out []string
		for _, n := range ns {
			if n.UserID == user {
				out = append(out, n.ID)
			}
		}
		return out
	}

	pending, err := repo.GetPending(ctx, 0)
	require.NoError(t, err)
	assert.Contains(t, ids(pending), due.ID)
	assert.NotContains(t, ids(pending), later.ID)
	assert.NotContains(t, ids(pending), expired.ID)

	scheduled, err := repo.GetScheduled(ctx, now.Add(2*time.Hour), 0)
	require.NoError(t, err)
	assert.Contains(t, ids(scheduled), later.ID)

	stale, err := repo.GetExpired(ctx, now, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{expired.ID}, ids(stale))

	list, err := repo.ListForUser(ctx, user, notifications.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 2, "expired pending notifications are hidden")
}

func TestRepository_ReadAndCounts(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()

	user := uuid.NewString()
	start := time.Now().UTC().Add(-time.Minute)
	var ids []string
	for i := range 3 {
		n := newNotification(user, start.Add(time.Duration(i)*time.Second))
		if i == 2 {
			n.Type = notifications.TypeFollow
		}
		require.NoError(t, repo.Create(ctx, n))
		require.NoError(t, repo.UpdateStatus(ctx, n.ID, notifications.StatusSent, ""))
		ids = append(ids, n.ID)
	}

	unread, err := repo.CountUnread(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	marked, err := repo.MarkAsRead(ctx, user, ids[0], ids[1], uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, 2, marked)

	marked, err = repo.MarkAsRead(ctx, "intruder", ids[2])
	require.NoError(t, err)
	assert.Zero(t, marked)

	onlyUnread, err := repo.ListForUser(ctx, user, notifications.ListOptions{OnlyUnread: true})
	require.NoError(t, err)
	require.Len(t, onlyUnread, 1)
	assert.Equal(t, ids[2], onlyUnread[0].ID)

	page, err := repo.ListForUser(ctx, user, notifications.ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID, "newest first")

	follows, err := repo.ListForUser(ctx, user, notifications.ListOptions{Types: []notifications.Type{notifications.TypeFollow}})
	require.NoError(t, err)
	require.Len(t, follows, 1)

	byType, err := repo.CountByType(ctx, start)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, byType[notifications.TypeFollow], 1)

	byStatus, err := repo.CountByStatus(ctx, start)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, byStatus[notifications.StatusRead], 2)
}

func TestRepository_Preferences(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()

	user := uuid.NewString()
	_, err := repo.GetPreferences(ctx, user)
	assert.ErrorIs(t, err, notifications.ErrPreferencesNotFound)

	p := notifications.DefaultPreferences(user)
	p.Channels = map[notifications.Type]notifications.Channel{notifications.TypeLike: notifications.ChannelInApp}
	p.Disabled = []notifications.Type{notifications.TypeRenote}
	p.BlockedSenders = []string{"spammer"}
	p.QuietHours = notifications.QuietHours{Enabled: true, Start: 22 * 60, End: 7 * 60, Timezone: "Europe/Berlin"}
	p.HourlyLimits = map[notifications.Type]int{notifications.TypeComment: 3}
	require.NoError(t, repo.SavePreferences(ctx, p))

	got, err := repo.GetPreferences(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, user, got.UserID)
	assert.Equal(t, p.Channels, got.Channels)
	assert.Equal(t, p.QuietHours, got.QuietHours)
	assert.True(t, got.SenderBlocked("spammer"))
	assert.False(t, got.TypeEnabled(notifications.TypeRenote))
	assert.False(t, got.UpdatedAt.IsZero())

	p.BlockedSenders = nil
	require.NoError(t, repo.SavePreferences(ctx, p))
	got, err = repo.GetPreferences(ctx, user)
	require.NoError(t, err)
	assert.False(t, got.SenderBlocked("spammer"))
}
