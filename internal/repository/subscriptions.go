package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mr1hm/go-disaster-notify/internal/models"
)

// AddRegionSubscription returns the existing subscription when the user
// already follows the region.
func (q queries) AddRegionSubscription(ctx context.Context, userID, regionID int64) (*models.RegionSubscription, error) {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO region_subscriptions (user_id, region_id) VALUES (?, ?)
		 ON CONFLICT (user_id, region_id) DO NOTHING`,
		userID, regionID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert region subscription: %w", err)
	}

	sub := &models.RegionSubscription{UserID: userID, RegionID: regionID}
	err = q.q.QueryRowContext(ctx,
		`SELECT id FROM region_subscriptions WHERE user_id = ? AND region_id = ?`,
		userID, regionID,
	).Scan(&sub.ID)
	if err != nil {
		return nil, fmt.Errorf("select region subscription: %w", err)
	}
	return sub, nil
}

func (q queries) ListRegionSubscriptions(ctx context.Context, userID int64) ([]models.RegionSubscription, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, user_id, region_id FROM region_subscriptions WHERE user_id = ? ORDER BY id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query region subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []models.RegionSubscription
	for rows.Next() {
		var s models.RegionSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.RegionID); err != nil {
			return nil, fmt.Errorf("scan region subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// DeleteRegionSubscription removes the row only if it belongs to userID.
func (q queries) DeleteRegionSubscription(ctx context.Context, id, userID int64) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`DELETE FROM region_subscriptions WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("delete region subscription: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (q queries) AddTypeSubscription(ctx context.Context, userID int64, disasterType string) (*models.DisasterTypeSubscription, error) {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO disaster_type_subscriptions (user_id, disaster_type) VALUES (?, ?)
		 ON CONFLICT (user_id, disaster_type) DO NOTHING`,
		userID, disasterType,
	)
	if err != nil {
		return nil, fmt.Errorf("insert type subscription: %w", err)
	}

	sub := &models.DisasterTypeSubscription{UserID: userID, DisasterType: disasterType}
	err = q.q.QueryRowContext(ctx,
		`SELECT id FROM disaster_type_subscriptions WHERE user_id = ? AND disaster_type = ?`,
		userID, disasterType,
	).Scan(&sub.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select type subscription: %w", err)
	}
	return sub, nil
}

func (q queries) ListTypeSubscriptions(ctx context.Context, userID int64) ([]models.DisasterTypeSubscription, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, user_id, disaster_type FROM disaster_type_subscriptions WHERE user_id = ? ORDER BY id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query type subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []models.DisasterTypeSubscription
	for rows.Next() {
		var s models.DisasterTypeSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.DisasterType); err != nil {
			return nil, fmt.Errorf("scan type subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (q queries) DeleteTypeSubscription(ctx context.Context, id, userID int64) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`DELETE FROM disaster_type_subscriptions WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("delete type subscription: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RegionSubscribers returns the distinct users following any of regionIDs.
func (q queries) RegionSubscribers(ctx context.Context, regionIDs []int64) ([]int64, error) {
	if len(regionIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(regionIDs))
	for i, id := range regionIDs {
		args[i] = id
	}

	rows, err := q.q.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM region_subscriptions
		 WHERE region_id IN (`+placeholders(len(regionIDs))+`) ORDER BY user_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query region subscribers: %w", err)
	}
	return scanIDs(rows)
}

func (q queries) TypeSubscribers(ctx context.Context, disasterType string) ([]int64, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM disaster_type_subscriptions
		 WHERE disaster_type = ? ORDER BY user_id`,
		disasterType,
	)
	if err != nil {
		return nil, fmt.Errorf("query type subscribers: %w", err)
	}
	return scanIDs(rows)
}
