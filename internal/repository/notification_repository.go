package repository

import (
	"context"

	"github.com/examprep/examprep-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationRepository handles notification data access.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// InsertBatch writes notifications in a single COPY.
func (r *NotificationRepository) InsertBatch(ctx context.Context, ns []model.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"notifications"},
		[]string{"user_id", "event_type", "channel", "subject", "body", "created_at"},
		pgx.CopyFromSlice(len(ns), func(i int) ([]any, error) {
			n := ns[i]
			return []any{n.UserID, n.EventType, n.Channel, n.Subject, n.Body, n.CreatedAt}, nil
		}),
	)
	return err
}

// ListByUser returns a user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID, limit int) ([]model.Notification, error) {
	return r.list(ctx,
		`SELECT id, user_id, event_type, channel, subject, body, created_at, read_at
		 FROM notifications WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`, userID, limit)
}

// ListRecent returns the latest notifications across all users.
func (r *NotificationRepository) ListRecent(ctx context.Context, limit int) ([]model.Notification, error) {
	return r.list(ctx,
		`SELECT id, user_id, event_type, channel, subject, body, created_at, read_at
		 FROM notifications
		 ORDER BY created_at DESC LIMIT $1`, limit)
}

// MarkRead stamps a user's notification as read. Already-read rows keep their timestamp.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID int, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, NOW()) WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) list(ctx context.Context, query string, args ...any) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.EventType, &n.Channel, &n.Subject, &n.Body,
			&n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
