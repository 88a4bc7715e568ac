package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mr1hm/go-disaster-notify/internal/models"
)

const notificationColumns = `id, user_id, disaster_id, channel, title, body, is_sent, created_at, sent_at`

func (q queries) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO notifications (user_id, disaster_id, channel, title, body, is_sent, created_at, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.UserID, n.DisasterID, string(n.Channel), n.Title, n.Body, boolToInt(n.IsSent),
		formatTime(n.CreatedAt), formatNullTime(n.SentAt),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	if n.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

func (q queries) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotificationRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	return &n, nil
}

// MarkSent flips is_sent once; a second call reports false.
func (q queries) MarkSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE notifications SET is_sent = 1, sent_at = ? WHERE id = ? AND is_sent = 0`,
		formatTime(at), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark notification sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (q queries) ListNotifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotificationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNotificationRow(s scanner) (models.Notification, error) {
	var (
		n         models.Notification
		channel   string
		isSent    int
		createdAt string
		sentAt    sql.NullString
	)
	err := s.Scan(&n.ID, &n.UserID, &n.DisasterID, &channel, &n.Title, &n.Body, &isSent, &createdAt, &sentAt)
	if err != nil {
		return models.Notification{}, err
	}
	n.Channel = models.Channel(channel)
	n.IsSent = isSent == 1
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Notification{}, err
	}
	if n.SentAt, err = parseNullTime(sentAt); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}
