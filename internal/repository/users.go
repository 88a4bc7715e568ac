package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mr1hm/go-disaster-notify/internal/models"
)

// UpsertUser replaces the contact points of u.ID. Empty fields clear the
// stored value.
func (q queries) UpsertUser(ctx context.Context, u *models.User) error {
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	}
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO users (id, email, phone, device_token, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     email = excluded.email,
		     phone = excluded.phone,
		     device_token = excluded.device_token,
		     updated_at = excluded.updated_at`,
		u.ID, u.Email, u.Phone, u.DeviceToken, formatTime(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (q queries) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var (
		u         models.User
		updatedAt string
	)
	err := q.q.QueryRowContext(ctx,
		`SELECT id, email, phone, device_token, updated_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.Phone, &u.DeviceToken, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
