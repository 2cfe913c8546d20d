package notifications

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// MemoryRepository is an in-memory implementation of the Repository interface.
// Suitable for development and testing.
type MemoryRepository struct {
	notifications map[string]Notification // id -> notification
	byUser        map[string][]string     // userID -> ids in insertion order
	preferences   map[string]Preferences
	now           func() time.Time
	mu            sync.RWMutex
}

// MemoryRepositoryOption configures a MemoryRepository.
type MemoryRepositoryOption func(*MemoryRepository)

// WithMemoryClock overrides the clock used for read and status timestamps.
func WithMemoryClock(now func() time.Time) MemoryRepositoryOption {
	return func(r *MemoryRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewMemoryRepository creates a new in-memory notification repository.
func NewMemoryRepository(opts ...MemoryRepositoryOption) *MemoryRepository {
	r := &MemoryRepository{
		notifications: make(map[string]Notification),
		byUser:        make(map[string][]string),
		preferences:   make(map[string]Preferences),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MemoryRepository) Create(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.create(n)
}

// Must be called with lock held.
func (r *MemoryRepository) create(n Notification) error {
	if n.ID == "" {
		return errors.New("notification ID is required")
	}
	if n.UserID == "" {
		return ErrMissingUserID
	}
	if _, exists := r.notifications[n.ID]; exists {
		return ErrDuplicateID
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}

	r.notifications[n.ID] = n.Clone()
	r.byUser[n.UserID] = append(r.byUser[n.UserID], n.ID)
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(n)
}

// Must be called with lock held.
func (r *MemoryRepository) update(n Notification) error {
	existing, ok := r.notifications[n.ID]
	if !ok {
		return ErrNotificationNotFound
	}
	if existing.UserID != n.UserID {
		return errors.New("notification owner cannot change")
	}
	r.notifications[n.ID] = n.Clone()
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.notifications[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	// Return a copy to prevent external mutation of stored data
	out := n.Clone()
	return &out, nil
}

// BulkCreate stores all notifications or none of them.
func (r *MemoryRepository) BulkCreate(ctx context.Context, ns []Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(ns))
	for _, n := range ns {
		if _, dup := seen[n.ID]; dup {
			return ErrDuplicateID
		}
		if _, exists := r.notifications[n.ID]; exists {
			return ErrDuplicateID
		}
		seen[n.ID] = struct{}{}
	}
	for _, n := range ns {
		if err := r.create(n); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryRepository) BulkUpdate(ctx context.Context, ns []Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, n := range ns {
		if err := r.update(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *MemoryRepository) BulkDelete(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Create lookup map for O(1) ID checking instead of O(n) slice iteration
	idMap := make(map[string]struct{}, len(ids))
	touched := make(map[string]struct{})
	for _, id := range ids {
		n, ok := r.notifications[id]
		if !ok {
			continue
		}
		idMap[id] = struct{}{}
		touched[n.UserID] = struct{}{}
		delete(r.notifications, id)
	}

	for userID := range touched {
		r.byUser[userID] = slices.DeleteFunc(r.byUser[userID], func(id string) bool {
			_, ok := idMap[id]
			return ok
		})
	}
	return nil
}

func (r *MemoryRepository) MarkAsRead(ctx context.Context, userID string, ids ...string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	marked := 0
	for _, id := range ids {
		n, ok := r.notifications[id]
		if !ok || n.UserID != userID {
			continue
		}
		if err := n.MarkAsRead(now); err != nil {
			continue
		}
		r.notifications[id] = n
		marked++
	}
	return marked, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, status Status, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok {
		return ErrNotificationNotFound
	}
	if err := n.Transition(status, r.now()); err != nil {
		return err
	}
	if reason != "" {
		n.FailureReason = reason
	}
	r.notifications[id] = n
	return nil
}

func (r *MemoryRepository) GetPending(ctx context.Context, limit int) ([]Notification, error) {
	now := r.now()
	return r.filter(limit, func(n Notification) bool {
		return n.Status == StatusPending && n.IsDue(now) && !n.IsExpired(now)
	}), nil
}

func (r *MemoryRepository) GetScheduled(ctx context.Context, before time.Time, limit int) ([]Notification, error) {
	return r.filter(limit, func(n Notification) bool {
		return n.Status == StatusPending && !n.ScheduledAt.After(before) && !n.IsExpired(before)
	}), nil
}

func (r *MemoryRepository) GetExpired(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	return r.filter(limit, func(n Notification) bool {
		return n.Status == StatusPending && n.IsExpired(now)
	}), nil
}

// filter returns matching notifications ordered by creation time, oldest first.
func (r *MemoryRepository) filter(limit int, match func(Notification) bool) []Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Notification
	for _, n := range r.notifications {
		if match(n) {
			out = append(out, n.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Notification) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MemoryRepository) ListForUser(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	var filtered []Notification
	for _, id := range r.byUser[userID] {
		n := r.notifications[id]

		if n.IsExpired(now) && n.Status == StatusPending {
			continue
		}
		if opts.OnlyUnread && !unread(n) {
			continue
		}
		if len(opts.Types) > 0 && !slices.Contains(opts.Types, n.Type) {
			continue
		}
		if opts.Since != nil && n.CreatedAt.Before(*opts.Since) {
			continue
		}

		filtered = append(filtered, n.Clone())
	}

	// Newest first.
	slices.SortStableFunc(filtered, func(a, b Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	start := opts.Offset
	if start > len(filtered) {
		return []Notification{}, nil
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], nil
}

func (r *MemoryRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, id := range r.byUser[userID] {
		if unread(r.notifications[id]) {
			count++
		}
	}
	return count, nil
}

func unread(n Notification) bool {
	return n.Status == StatusSent || n.Status == StatusDelivered
}

func (r *MemoryRepository) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.preferences[userID]
	if !ok {
		return nil, ErrPreferencesNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) SavePreferences(ctx context.Context, p Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p.UpdatedAt = r.now()
	r.preferences[p.UserID] = p
	return nil
}

func (r *MemoryRepository) CountByStatus(ctx context.Context, since time.Time) (map[Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Status]int)
	for _, n := range r.notifications {
		if !n.CreatedAt.Before(since) {
			out[n.Status]++
		}
	}
	return out, nil
}

func (r *MemoryRepository) CountByType(ctx context.Context, since time.Time) (map[Type]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Type]int)
	for _, n := range r.notifications {
		if !n.CreatedAt.Before(since) {
			out[n.Type]++
		}
	}
	return out, nil
}

// Len returns the number of stored notifications.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.notifications)
}
