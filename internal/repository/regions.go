package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mr1hm/go-disaster-notify/internal/models"
)

const regionColumns = `id, province, city_county, town`

// InsertRegion adds r unless an identical triple exists. It reports
// whether a row was written; on insert r.ID is populated.
func (q queries) InsertRegion(ctx context.Context, r *models.Region) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO regions (province, city_county, town) VALUES (?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		r.Province, nullString(r.CityCounty), nullString(r.Town),
	)
	if err != nil {
		return false, fmt.Errorf("insert region: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	return true, nil
}

func (q queries) GetRegion(ctx context.Context, id int64) (*models.Region, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+regionColumns+` FROM regions WHERE id = ?`, id)
	return scanRegion(row)
}

func (q queries) FindRegionExact(ctx context.Context, key models.RegionKey) (*models.Region, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+regionColumns+` FROM regions
		 WHERE province = ?
		   AND COALESCE(city_county, '') = ?
		   AND COALESCE(town, '') = ?
		 ORDER BY id LIMIT 1`,
		key.Province, key.CityCounty, key.Town,
	)
	return scanRegion(row)
}

func (q queries) FindRegionPrefix(ctx context.Context, key models.RegionKey) (*models.Region, error) {
	conds := []string{"province = ?"}
	args := []any{key.Province}
	if key.CityCounty != "" {
		conds = append(conds, "city_county = ?")
		args = append(args, key.CityCounty)
		if key.Town != "" {
			conds = append(conds, "town = ?")
			args = append(args, key.Town)
		}
	}

	row := q.q.QueryRowContext(ctx,
		`SELECT `+regionColumns+` FROM regions WHERE `+strings.Join(conds, " AND ")+` ORDER BY id LIMIT 1`,
		args...,
	)
	return scanRegion(row)
}

func (q queries) ListRegions(ctx context.Context, province string, limit int) ([]models.Region, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + regionColumns + ` FROM regions`
	var args []any
	if province != "" {
		query += ` WHERE province = ?`
		args = append(args, province)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query regions: %w", err)
	}
	return scanRegions(rows)
}

func (q queries) CountRegions(ctx context.Context) (int64, error) {
	var n int64
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM regions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count regions: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRegionRow(s scanner) (models.Region, error) {
	var (
		r          models.Region
		cityCounty sql.NullString
		town       sql.NullString
	)
	if err := s.Scan(&r.ID, &r.Province, &cityCounty, &town); err != nil {
		return models.Region{}, err
	}
	r.CityCounty = cityCounty.String
	r.Town = town.String
	return r, nil
}

func scanRegion(row *sql.Row) (*models.Region, error) {
	r, err := scanRegionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan region: %w", err)
	}
	return &r, nil
}

func scanRegions(rows *sql.Rows) ([]models.Region, error) {
	defer func() { _ = rows.Close() }()
	var regions []models.Region
	for rows.Next() {
		r, err := scanRegionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}
