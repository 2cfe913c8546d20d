package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/pg"
)

const columns = `id, tracking_id, user_id, sender_id, type, priority, title, message,
	action_url, template_id, template_data, channels, disable_bundling, respect_quiet_hours, group_key,
	created_at, scheduled_at, expires_at, sent_at, delivered_at, read_at,
	status, delivery_attempts, failure_reason`

const insertSQL = `INSERT INTO notifications (` + columns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23, $24)`

// user_id ($3) is matched, not written: ownership never changes.
const updateSQL = `UPDATE notifications SET
	tracking_id = $2, sender_id = $4, type = $5, priority = $6, title = $7, message = $8,
	action_url = $9, template_id = $10, template_data = $11, channels = $12,
	disable_bundling = $13, respect_quiet_hours = $14, group_key = $15,
	created_at = $16, scheduled_at = $17, expires_at = $18,
	sent_at = $19, delivered_at = $20, read_at = $21,
	status = $22, delivery_attempts = $23, failure_reason = $24
	WHERE id = $1 AND user_id = $3`

// Statuses a user has received but not read.
var unreadStatuses = []string{string(notifications.StatusSent), string(notifications.StatusDelivered)}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository stores notifications and preferences in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ notifications.Repository = (*Repository)(nil)

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the clock used for read and status timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a repository over pool. The schema must already be migrated.
func New(pool *pgxpool.Pool, opts ...Option) (*Repository, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	r := &Repository{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func args(n notifications.Notification) []any {
	return []any{
		n.ID, n.TrackingID, n.UserID, n.SenderID, string(n.Type), int16(n.Priority),
		n.Title, n.Message, n.ActionURL, n.TemplateID, n.TemplateData, int16(n.Channels),
		n.DisableBundling, n.RespectQuietHours, n.GroupKey,
		n.CreatedAt, n.ScheduledAt, nullTime(n.ExpiresAt), n.SentAt, n.DeliveredAt, n.ReadAt,
		string(n.Status), n.DeliveryAttempts, n.FailureReason,
	}
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scan(row pgx.CollectableRow) (notifications.Notification, error) {
	var (
		n                  notifications.Notification
		typ, status        string
		priority, channels int16
		expiresAt          *time.Time
	)
	err := row.Scan(
		&n.ID, &n.TrackingID, &n.UserID, &n.SenderID, &typ, &priority, &n.Title, &n.Message,
		&n.ActionURL, &n.TemplateID, &n.TemplateData, &channels, &n.DisableBundling, &n.RespectQuietHours, &n.GroupKey,
		&n.CreatedAt, &n.ScheduledAt, &expiresAt, &n.SentAt, &n.DeliveredAt, &n.ReadAt,
		&status, &n.DeliveryAttempts, &n.FailureReason,
	)
	if err != nil {
		return notifications.Notification{}, err
	}
	n.Type = notifications.Type(typ)
	n.Status = notifications.Status(status)
	n.Priority = notifications.Priority(priority)
	n.Channels = notifications.Channel(channels)
	if expiresAt != nil {
		n.ExpiresAt = *expiresAt
	}
	return n, nil
}

func (r *Repository) prepare(n *notifications.Notification) error {
	if n.ID == "" {
		return ErrMissingID
	}
	if n.UserID == "" {
		return notifications.ErrMissingUserID
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}
	if n.ScheduledAt.IsZero() {
		n.ScheduledAt = n.CreatedAt
	}
	if n.Status == "" {
		n.Status = notifications.StatusPending
	}
	return nil
}

func (r *Repository) Create(ctx context.Context, n notifications.Notification) error {
	if err := r.prepare(&n); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, insertSQL, args(n)...); err != nil {
		if pg.IsDuplicateKeyError(err) {
			return notifications.ErrDuplicateID
		}
		return fmt.Errorf("pgstore: create %s: %w", n.ID, err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, n notifications.Notification) error {
	return r.update(ctx, r.pool, n)
}

func (r *Repository) update(ctx context.Context, q querier, n notifications.Notification) error {
	tag, err := q.Exec(ctx, updateSQL, args(n)...)
	if err != nil {
		return fmt.Errorf("pgstore: update %s: %w", n.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrMoved(ctx, q, n)
	}
	return nil
}

// missingOrMoved explains a zero-row update: the id is unknown or the
// caller tried to hand the notification to another user.
func (r *Repository) missingOrMoved(ctx context.Context, q querier, n notifications.Notification) error {
	rows, err := q.Query(ctx, `SELECT user_id FROM notifications WHERE id = $1`, n.ID)
	if err != nil {
		return fmt.Errorf("pgstore: update %s: %w", n.ID, err)
	}
	owner, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[string])
	if pg.IsNotFoundError(err) {
		return fmt.Errorf("%w: %s", notifications.ErrNotificationNotFound, n.ID)
	}
	if err != nil {
		return fmt.Errorf("pgstore: update %s: %w", n.ID, err)
	}
	if owner != n.UserID {
		return ErrOwnerChanged
	}
	return fmt.Errorf("%w: %s", notifications.ErrNotificationNotFound, n.ID)
}

func (r *Repository) Get(ctx context.Context, id string) (*notifications.Notification, error) {
	return r.get(ctx, r.pool, id, false)
}

func (r *Repository) get(ctx context.Context, q querier, id string, lock bool) (*notifications.Notification, error) {
	sql := `SELECT ` + columns + ` FROM notifications WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("pgstore: get %s: %w", id, err)
	}
	n, err := pgx.CollectExactlyOneRow(rows, scan)
	if pg.IsNotFoundError(err) {
		return nil, notifications.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get %s: %w", id, err)
	}
	return &n, nil
}

// BulkCreate stores all notifications in one transaction or none of them.
func (r *Repository) BulkCreate(ctx context.Context, ns []notifications.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, n := range ns {
		if err := r.prepare(&n); err != nil {
			return err
		}
		batch.Queue(insertSQL, args(n)...)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for range ns {
			if _, err := br.Exec(); err != nil {
				if pg.IsDuplicateKeyError(err) {
					return notifications.ErrDuplicateID
				}
				return fmt.Errorf("pgstore: bulk create: %w", err)
			}
		}
		return br.Close()
	})
}

// BulkUpdate writes every notification it can and joins the failures.
func (r *Repository) BulkUpdate(ctx context.Context, ns []notifications.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, n := range ns {
		batch.Queue(updateSQL, args(n)...)
	}

	br := r.pool.SendBatch(ctx, batch)
	var errs []error
	for _, n := range ns {
		tag, err := br.Exec()
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("pgstore: update %s: %w", n.ID, err))
		case tag.RowsAffected() == 0:
			errs = append(errs, fmt.Errorf("%w: %s", notifications.ErrNotificationNotFound, n.ID))
		}
	}
	if err := br.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Repository) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("pgstore: bulk delete: %w", err)
	}
	return nil
}

func (r *Repository) MarkAsRead(ctx context.Context, userID string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `UPDATE notifications
		SET status = $4, read_at = $3
		WHERE user_id = $1 AND id = ANY($2) AND status = ANY($5)`,
		userID, ids, r.now(), string(notifications.StatusRead), unreadStatuses)
	if err != nil {
		return 0, fmt.Errorf("pgstore: mark as read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpdateStatus applies the status state machine under a row lock.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status notifications.Status, reason string) error {
	var err error
	for range 3 {
		err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			n, err := r.get(ctx, tx, id, true)
			if err != nil {
				return err
			}
			if err := n.Transition(status, r.now()); err != nil {
				return err
			}
			if reason != "" {
				n.FailureReason = reason
			}
			return r.update(ctx, tx, *n)
		})
		if !pg.IsSerializationError(err) {
			return err
		}
	}
	return err
}

func (r *Repository) GetPending(ctx context.Context, limit int) ([]notifications.Notification, error) {
	return r.list(ctx, `status = 'pending' AND scheduled_at <= $1
		AND (expires_at IS NULL OR expires_at > $1)`, limit, r.now())
}

func (r *Repository) GetScheduled(ctx context.Context, before time.Time, limit int) ([]notifications.Notification, error) {
	return r.list(ctx, `status = 'pending' AND scheduled_at <= $1
		AND (expires_at IS NULL OR expires_at > $1)`, limit, before)
}

func (r *Repository) GetExpired(ctx context.Context, now time.Time, limit int) ([]notifications.Notification, error) {
	return r.list(ctx, `status = 'pending' AND expires_at IS NOT NULL AND expires_at <= $1`, limit, now)
}

// list runs a pending-queue query ordered oldest first. at is bound to $1
// and the limit to $2; a zero limit returns every row.
func (r *Repository) list(ctx context.Context, where string, limit int, at time.Time) ([]notifications.Notification, error) {
	sql := `SELECT ` + columns + ` FROM notifications WHERE ` + where +
		` ORDER BY created_at, id LIMIT NULLIF($2::int, 0)`
	rows, err := r.pool.Query(ctx, sql, at, limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list: %w", err)
	}
	return out, nil
}

// ListForUser returns the user's notifications newest first. Pending
// notifications that expired are hidden.
func (r *Repository) ListForUser(ctx context.Context, userID string, opts notifications.ListOptions) ([]notifications.Notification, error) {
	var (
		where  = []string{"user_id = $1", "NOT (status = 'pending' AND expires_at IS NOT NULL AND expires_at <= $2)"}
		params = []any{userID, r.now()}
	)
	bind := func(v any) string {
		params = append(params, v)
		return "$" + strconv.Itoa(len(params))
	}

	if opts.OnlyUnread {
		where = append(where, "status = ANY("+bind(unreadStatuses)+")")
	}
	if len(opts.Types) > 0 {
		types := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			types[i] = string(t)
		}
		where = append(where, "type = ANY("+bind(types)+")")
	}
	if opts.Since != nil {
		where = append(where, "created_at >= "+bind(*opts.Since))
	}

	sql := `SELECT ` + columns + ` FROM notifications WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC` +
		` LIMIT NULLIF(` + bind(opts.Limit) + `::int, 0) OFFSET ` + bind(max(opts.Offset, 0))

	rows, err := r.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list for user: %w", err)
	}
	out, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list for user: %w", err)
	}
	if out == nil {
		out = []notifications.Notification{}
	}
	return out, nil
}

func (r *Repository) CountUnread(ctx context.Context, userID string) (int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND status = ANY($2)`,
		userID, unreadStatuses)
	if err != nil {
		return 0, fmt.Errorf("pgstore: count unread: %w", err)
	}
	n, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("pgstore: count unread: %w", err)
	}
	return int(n), nil
}

func (r *Repository) GetPreferences(ctx context.Context, userID string) (*notifications.Preferences, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT data, updated_at FROM notification_preferences WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: get preferences: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (notifications.Preferences, error) {
		var (
			p         notifications.Preferences
			updatedAt time.Time
		)
		if err := row.Scan(&p, &updatedAt); err != nil {
			return p, err
		}
		p.UserID = userID
		p.UpdatedAt = updatedAt
		return p, nil
	})
	if pg.IsNotFoundError(err) {
		return nil, notifications.ErrPreferencesNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get preferences: %w", err)
	}
	return &p, nil
}

func (r *Repository) SavePreferences(ctx context.Context, p notifications.Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.UpdatedAt = r.now()
	_, err := r.pool.Exec(ctx, `INSERT INTO notification_preferences (user_id, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		p.UserID, p, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: save preferences: %w", err)
	}
	return nil
}

func (r *Repository) CountByStatus(ctx context.Context, since time.Time) (map[notifications.Status]int, error) {
	counts, err := r.countBy(ctx, "status", since)
	if err != nil {
		return nil, err
	}
	out := make(map[notifications.Status]int, len(counts))
	for k, v := range counts {
		out[notifications.Status(k)] = v
	}
	return out, nil
}

func (r *Repository) CountByType(ctx context.Context, since time.Time) (map[notifications.Type]int, error) {
	counts, err := r.countBy(ctx, "type", since)
	if err != nil {
		return nil, err
	}
	out := make(map[notifications.Type]int, len(counts))
	for k, v := range counts {
		out[notifications.Type(k)] = v
	}
	return out, nil
}

// countBy groups rows created since the given time by column, which is
// always a constant chosen by the caller.
func (r *Repository) countBy(ctx context.Context, column string, since time.Time) (map[string]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+column+`, count(*) FROM notifications WHERE created_at >= $1 GROUP BY `+column, since)
	if err != nil {
		return nil, fmt.Errorf("pgstore: count by %s: %w", column, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("pgstore: count by %s: %w", column, err)
		}
		out[key] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: count by %s: %w", column, err)
	}
	return out, nil
}
