package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/go-disaster-notify/internal/models"
)

const disasterColumns = `d.id, d.type, d.severity_level, d.message, d.active, d.start_time, d.end_time, d.updated_at, d.raw_region_text`

// InsertDisaster stores d unless its dedup key is already present. It
// reports whether a row was written; on insert d.ID is populated.
func (q queries) InsertDisaster(ctx context.Context, d *models.Disaster) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO disasters (type, severity_level, message, active, start_time, end_time, updated_at, raw_region_text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (start_time, raw_region_text) DO NOTHING`,
		d.Type, d.SeverityLevel, d.Message, boolToInt(d.Active),
		formatTime(d.StartTime), formatNullTime(d.EndTime), formatTime(d.UpdatedAt), d.RawRegionText,
	)
	if err != nil {
		return false, fmt.Errorf("insert disaster: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if d.ID, err = res.LastInsertId(); err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	return true, nil
}

func (q queries) DisasterExists(ctx context.Context, key models.DedupKey) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM disasters WHERE start_time = ? AND raw_region_text = ?)`,
		formatTime(key.StartTime), key.RawRegionText,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check disaster exists: %w", err)
	}
	return exists, nil
}

// LinkRegion is idempotent: linking an existing pair reports false.
func (q queries) LinkRegion(ctx context.Context, disasterID, regionID int64) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO disaster_regions (disaster_id, region_id) VALUES (?, ?)
		 ON CONFLICT (disaster_id, region_id) DO NOTHING`,
		disasterID, regionID,
	)
	if err != nil {
		return false, fmt.Errorf("link region: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// GetDisaster returns the disaster with its linked regions loaded.
func (q queries) GetDisaster(ctx context.Context, id int64) (*models.Disaster, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+disasterColumns+` FROM disasters d WHERE d.id = ?`, id)
	d, err := scanDisasterRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan disaster: %w", err)
	}

	if d.Regions, err = q.LinkedRegions(ctx, d.ID); err != nil {
		return nil, err
	}
	return &d, nil
}

// disasterWhere builds the FROM and WHERE parts shared by filtered
// listings and counts. Limit and Offset are not applied.
func disasterWhere(opts Filter) (string, []any) {
	var (
		conds []string
		args  []any
		from  = `disasters d`
	)
	if opts.RegionID != nil {
		from += ` JOIN disaster_regions dr ON dr.disaster_id = d.id`
		conds = append(conds, "dr.region_id = ?")
		args = append(args, *opts.RegionID)
	}
	if opts.ActiveOnly {
		conds = append(conds, "d.active = 1")
	}
	if opts.Type != nil {
		conds = append(conds, "d.type = ?")
		args = append(args, *opts.Type)
	}
	if opts.Since != nil {
		conds = append(conds, "d.start_time >= ?")
		args = append(args, formatTime(*opts.Since))
	}

	if len(conds) > 0 {
		from += ` WHERE ` + strings.Join(conds, " AND ")
	}
	return from, args
}

func (q queries) ListDisasters(ctx context.Context, opts Filter) ([]models.Disaster, error) {
	from, args := disasterWhere(opts)
	query := `SELECT ` + disasterColumns + ` FROM ` + from
	query += ` ORDER BY d.start_time DESC, d.id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query disasters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var disasters []models.Disaster
	for rows.Next() {
		d, err := scanDisasterRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan disaster: %w", err)
		}
		disasters = append(disasters, d)
	}
	return disasters, rows.Err()
}

// CountDisastersByType counts every disaster matching opts per type,
// ignoring Limit and Offset.
func (q queries) CountDisastersByType(ctx context.Context, opts Filter) (map[string]int, error) {
	from, args := disasterWhere(opts)
	rows, err := q.q.QueryContext(ctx, `SELECT d.type, COUNT(*) FROM `+from+` GROUP BY d.type`, args...)
	if err != nil {
		return nil, fmt.Errorf("count disasters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan disaster count: %w", err)
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

func (q queries) LinkedRegions(ctx context.Context, disasterID int64) ([]models.Region, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT r.id, r.province, r.city_county, r.town
		 FROM regions r JOIN disaster_regions dr ON dr.region_id = r.id
		 WHERE dr.disaster_id = ? ORDER BY r.id`, disasterID,
	)
	if err != nil {
		return nil, fmt.Errorf("query linked regions: %w", err)
	}
	return scanRegions(rows)
}

// DeactivateStartedBefore flips active disasters that started before
// cutoff. Inactive rows are never touched.
func (q queries) DeactivateStartedBefore(ctx context.Context, cutoff, now time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE disasters SET active = 0, end_time = COALESCE(end_time, ?), updated_at = ?
		 WHERE active = 1 AND start_time < ?`,
		formatTime(now), formatTime(now), formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate disasters: %w", err)
	}
	return res.RowsAffected()
}

func scanDisasterRow(s scanner) (models.Disaster, error) {
	var (
		d         models.Disaster
		active    int
		startTime string
		endTime   sql.NullString
		updatedAt string
	)
	err := s.Scan(&d.ID, &d.Type, &d.SeverityLevel, &d.Message, &active,
		&startTime, &endTime, &updatedAt, &d.RawRegionText)
	if err != nil {
		return models.Disaster{}, err
	}
	d.Active = active == 1
	if d.StartTime, err = parseTime(startTime); err != nil {
		return models.Disaster{}, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.Disaster{}, err
	}
	if d.EndTime, err = parseNullTime(endTime); err != nil {
		return models.Disaster{}, err
	}
	return d, nil
}
