package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// InsertNotification appends an entry to the persisted notification feed.
func (s *Store) InsertNotification(ctx context.Context, n *Notification) (int64, error) {
	if n == nil {
		return 0, fmt.Errorf("notification is nil")
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO notifications (owner, event_type, title, body, run_id, match_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.Owner,
		n.EventType,
		n.Title,
		nullableString(n.Body),
		nullableInt64(n.RunID),
		nullableInt64(n.MatchID),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// ListNotifications returns feed entries newest first. A non-empty owner
// restricts the feed to that owner's entries; unreadOnly drops entries that
// have already been marked read.
func (s *Store) ListNotifications(ctx context.Context, owner string, unreadOnly bool, limit int) ([]*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications`
	var (
		conditions []string
		args       []any
	)
	if owner != "" {
		conditions = append(conditions, `owner = ?`)
		args = append(args, owner)
	}
	if unreadOnly {
		conditions = append(conditions, `read_at IS NULL`)
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationsRead stamps read_at on the given entries, or on every
// unread entry when no ids are provided.
func (s *Store) MarkNotificationsRead(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.execWithRetry(ctx, `UPDATE notifications SET read_at = ? WHERE read_at IS NULL`, now)
		if err != nil {
			return 0, fmt.Errorf("mark notifications read: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, now)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE notifications SET read_at = ? WHERE id IN (`+placeholders+`) AND read_at IS NULL`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("mark selected notifications read: %w", err)
	}
	return res.RowsAffected()
}
