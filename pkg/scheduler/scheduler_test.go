package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/processor"
	"github.com/dmitrymomot/notifykit/pkg/scheduler"
)

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, n notifications.Notification) (string, error) {
	args := m.Called(ctx, n.ID)
	return n.ID, args.Error(0)
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func stored(id string, created, scheduled, expires time.Time) notifications.Notification {
	return notifications.Notification{
		ID:          id,
		UserID:      "u1",
		Type:        notifications.TypeFollow,
		Title:       "x",
		Status:      notifications.StatusPending,
		CreatedAt:   created,
		ScheduledAt: scheduled,
		ExpiresAt:   expires,
	}
}

func seed(t *testing.T, ns ...notifications.Notification) *notifications.MemoryRepository {
	t.Helper()
	repo := notifications.NewMemoryRepository(notifications.WithMemoryClock(func() time.Time { return base }))
	require.NoError(t, repo.BulkCreate(context.Background(), ns))
	return repo
}

func TestNew(t *testing.T) {
	t.Parallel()

	repo := notifications.NewMemoryRepository()
	sub := &mockSubmitter{}

	tests := []struct {
		name string
		cfg  scheduler.Config
		repo notifications.Repository
		sub  scheduler.Submitter
		err  error
	}{
		{"valid", scheduler.DefaultConfig(), repo, sub, nil},
		{"nil repository", scheduler.DefaultConfig(), nil, sub, scheduler.ErrNilRepository},
		{"nil submitter", scheduler.DefaultConfig(), repo, nil, scheduler.ErrNilSubmitter},
		{"bad spec", scheduler.Config{ReleaseSpec: "every now and then"}, repo, sub, scheduler.ErrInvalidSpec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := scheduler.New(tt.cfg, tt.repo, tt.sub)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := scheduler.New(scheduler.Config{Timezone: "Mars/Olympus"}, repo, sub)
	assert.Error(t, err)
}

func TestReleaseDue(t *testing.T) {
	t.Parallel()

	repo := seed(t,
		stored("parked-due", base.Add(-2*time.Hour), base.Add(-time.Minute), base.Add(time.Hour)),
		stored("parked-later", base.Add(-2*time.Hour), base.Add(time.Hour), base.Add(2*time.Hour)),
		stored("batched", base.Add(-time.Minute), base.Add(-time.Minute), base.Add(time.Hour)),
		stored("in-flight", base.Add(-2*time.Hour), base.Add(-time.Minute), base.Add(time.Hour)),
	)

	sub := &mockSubmitter{}
	sub.On("Submit", mock.Anything, "parked-due").Return(nil).Once()
	sub.On("Submit", mock.Anything, "in-flight").Return(processor.ErrAlreadyQueued).Once()

	s, err := scheduler.New(scheduler.DefaultConfig(), repo, sub, scheduler.WithClock(func() time.Time { return base }))
	require.NoError(t, err)

	n, err := s.ReleaseDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	sub.AssertExpectations(t)
}

func TestReleaseDue_QueueFull(t *testing.T) {
	t.Parallel()

	repo := seed(t,
		stored("a", base.Add(-3*time.Hour), base.Add(-time.Minute), base.Add(time.Hour)),
		stored("b", base.Add(-2*time.Hour), base.Add(-time.Minute), base.Add(time.Hour)),
	)

	sub := &mockSubmitter{}
	sub.On("Submit", mock.Anything, "a").Return(processor.ErrQueueFull).Once()

	s, err := scheduler.New(scheduler.DefaultConfig(), repo, sub, scheduler.WithClock(func() time.Time { return base }))
	require.NoError(t, err)

	n, err := s.ReleaseDue(context.Background())
	assert.ErrorIs(t, err, processor.ErrQueueFull)
	assert.Equal(t, 0, n)
	sub.AssertNotCalled(t, "Submit", mock.Anything, "b")
}

func TestRecoverPending(t *testing.T) {
	t.Parallel()

	repo := seed(t,
		stored("batched", base.Add(-time.Minute), base.Add(-time.Minute), base.Add(time.Hour)),
		stored("later", base.Add(-time.Minute), base.Add(time.Hour), base.Add(2*time.Hour)),
	)

	sub := &mockSubmitter{}
	sub.On("Submit", mock.Anything, "batched").Return(nil).Once()

	s, err := scheduler.New(scheduler.DefaultConfig(), repo, sub)
	require.NoError(t, err)

	n, err := s.RecoverPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	sub.AssertExpectations(t)
}

func TestExpireStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := seed(t,
		stored("expired", base.Add(-2*time.Hour), base.Add(-2*time.Hour), base.Add(-time.Minute)),
		stored("fresh", base.Add(-2*time.Hour), base.Add(-2*time.Hour), base.Add(time.Hour)),
	)

	s, err := scheduler.New(scheduler.DefaultConfig(), repo, &mockSubmitter{}, scheduler.WithClock(func() time.Time { return base }))
	require.NoError(t, err)

	n, err := s.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.Get(ctx, "expired")
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusCancelled, got.Status)
	assert.Equal(t, "expired", got.FailureReason)

	got, err = repo.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, notifications.StatusPending, got.Status)

	n, err = s.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduler_RunsJobs(t *testing.T) {
	t.Parallel()

	repo := seed(t,
		stored("expired", base.Add(-2*time.Hour), base.Add(-2*time.Hour), base.Add(-time.Minute)),
	)
	cfg := scheduler.DefaultConfig()
	cfg.ReleaseSpec = ""
	cfg.ExpireSpec = "@every 1s"

	s, err := scheduler.New(cfg, repo, &mockSubmitter{}, scheduler.WithClock(func() time.Time { return base }))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.ErrorIs(t, s.Start(ctx), scheduler.ErrAlreadyStarted)

	require.Eventually(t, func() bool {
		return s.Stats()["expire_stale"].Runs > 0
	}, 3*time.Second, 20*time.Millisecond)

	st := s.Stats()["expire_stale"]
	assert.Equal(t, int64(1), st.Affected)
	assert.Zero(t, st.Failures)
	_, ok := s.Stats()["release_due"]
	assert.False(t, ok)

	require.NoError(t, s.Stop(ctx))
	assert.ErrorIs(t, s.Stop(ctx), scheduler.ErrNotStarted)
}

type failingRepo struct {
	*notifications.MemoryRepository
}

func (failingRepo) GetExpired(context.Context, time.Time, int) ([]notifications.Notification, error) {
	return nil, errors.New("connection reset")
}

func TestExpireStale_RepositoryError(t *testing.T) {
	t.Parallel()

	s, err := scheduler.New(scheduler.DefaultConfig(), failingRepo{notifications.NewMemoryRepository()}, &mockSubmitter{})
	require.NoError(t, err)

	_, err = s.ExpireStale(context.Background())
	assert.ErrorContains(t, err, "connection reset")
}
