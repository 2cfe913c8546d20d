package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/processor"
)

// Submitter puts a notification back into the pipeline.
// *processor.Processor satisfies it.
type Submitter interface {
	Submit(ctx context.Context, n notifications.Notification) (string, error)
}

// JobStats describes the runs of one job.
type JobStats struct {
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	Affected  int64         `json:"affected"`
	LastRun   time.Time     `json:"last_run"`
	LastError string        `json:"last_error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) (int, error)
}

// Scheduler runs the periodic repository jobs: releasing parked
// notifications whose time has come and cancelling expired ones.
type Scheduler struct {
	cfg       Config
	repo      notifications.Repository
	submitter Submitter
	logger    *slog.Logger
	now       func() time.Time

	parser cron.Parser
	loc    *time.Location
	jobs   []job

	mu    sync.Mutex
	c     *cron.Cron
	ctx   context.Context
	stats map[string]JobStats
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for due and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New validates the schedules and creates a Scheduler.
func New(cfg Config, repo notifications.Repository, submitter Submitter, opts ...Option) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}
	if submitter == nil {
		return nil, ErrNilSubmitter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultConfig().JobTimeout
	}

	s := &Scheduler{
		cfg:       cfg,
		repo:      repo,
		submitter: submitter,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
		parser:    cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		stats:     make(map[string]JobStats),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("scheduler"))

	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("scheduler: load timezone %q: %w", tz, err)
		}
		loc = l
	}
	s.loc = loc

	s.jobs = []job{
		{name: "release_due", spec: cfg.ReleaseSpec, run: s.ReleaseDue},
		{name: "expire_stale", spec: cfg.ExpireSpec, run: s.ExpireStale},
	}
	for _, j := range s.jobs {
		if strings.TrimSpace(j.spec) == "" {
			continue
		}
		if _, err := s.parser.Parse(j.spec); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidSpec, j.name, err)
		}
	}
	return s, nil
}

// Start registers the jobs with cron and starts it. Jobs with an empty
// spec are disabled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return ErrAlreadyStarted
	}

	s.ctx = ctx
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, j := range s.jobs {
		if strings.TrimSpace(j.spec) == "" {
			continue
		}
		if _, err := s.c.AddFunc(j.spec, func() { s.execute(j) }); err != nil {
			s.c = nil
			return fmt.Errorf("%w: %s: %w", ErrInvalidSpec, j.name, err)
		}
	}
	s.c.Start()

	s.logger.Info("scheduler started",
		slog.String("tz", s.loc.String()),
		slog.Int("jobs", len(s.c.Entries())),
	)
	return nil
}

// Stop stops cron and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return ErrNotStarted
	}

	select {
	case <-c.Stop().Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the scheduler and returns a function suitable for errgroup.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
		defer cancel()
		return s.Stop(stopCtx)
	}
}

func (s *Scheduler) execute(j job) {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	started := time.Now()
	n, err := j.run(ctx)
	elapsed := time.Since(started)

	s.mu.Lock()
	st := s.stats[j.name]
	st.Runs++
	st.Affected += int64(n)
	st.LastRun = started
	st.Duration = elapsed
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
	s.stats[j.name] = st
	s.mu.Unlock()

	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "scheduled job failed",
			slog.String("job", j.name),
			logger.Duration(elapsed),
			logger.Error(err),
		)
		return
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "scheduled job finished",
		slog.String("job", j.name),
		slog.Int("affected", n),
		logger.Duration(elapsed),
	)
}

// Stats returns the run statistics keyed by job name.
func (s *Scheduler) Stats() map[string]JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]JobStats, len(s.stats))
	for k, v := range s.stats {
		out[k] = v
	}
	return out
}

// ReleaseDue resubmits parked notifications whose scheduled time has
// arrived. Only notifications parked for later are considered; those
// waiting in a batch keep ScheduledAt equal to CreatedAt. It stops early
// when the pipeline queue is full and returns how many were released.
func (s *Scheduler) ReleaseDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.GetScheduled(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("scheduler: load scheduled: %w", err)
	}

	released := 0
	for _, n := range due {
		if !n.ScheduledAt.After(n.CreatedAt) || !n.IsDue(now) {
			continue
		}
		if err := s.submit(ctx, n); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

// RecoverPending resubmits every due pending notification, including those
// that were waiting in a batch when the previous process died. Run it once
// at startup.
func (s *Scheduler) RecoverPending(ctx context.Context) (int, error) {
	pending, err := s.repo.GetPending(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("scheduler: load pending: %w", err)
	}

	recovered := 0
	for _, n := range pending {
		if err := s.submit(ctx, n); err != nil {
			return recovered, err
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.InfoContext(ctx, "recovered pending notifications", slog.Int("count", recovered))
	}
	return recovered, nil
}

// submit treats an item already in the pipeline as done and any other
// submit error as fatal for the run.
func (s *Scheduler) submit(ctx context.Context, n notifications.Notification) error {
	_, err := s.submitter.Submit(ctx, n)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, processor.ErrAlreadyQueued):
		return nil
	default:
		return fmt.Errorf("scheduler: submit %s: %w", n.ID, err)
	}
}

// ExpireStale cancels pending notifications that passed their expiry.
func (s *Scheduler) ExpireStale(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := s.repo.GetExpired(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("scheduler: load expired: %w", err)
	}

	updates := make([]notifications.Notification, 0, len(expired))
	for _, n := range expired {
		if err := n.Cancel("expired", now); err != nil {
			continue
		}
		updates = append(updates, n)
	}
	if len(updates) == 0 {
		return 0, nil
	}
	if err := s.repo.BulkUpdate(ctx, updates); err != nil {
		return 0, fmt.Errorf("scheduler: cancel expired: %w", err)
	}
	return len(updates), nil
}
