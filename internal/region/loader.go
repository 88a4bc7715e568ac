package region

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/mr1hm/go-disaster-notify/internal/models"
	"github.com/mr1hm/go-disaster-notify/internal/repository"
)

// Accepted header spellings, per column.
var columnAliases = [3][]string{
	{"province", "시도명"},
	{"city_county", "시군구명"},
	{"town", "읍면동명"},
}

// Loader bulk-loads the region reference dataset.
type Loader struct {
	store repository.Store
}

func NewLoader(store repository.Store) *Loader {
	return &Loader{store: store}
}

// LoadCSV inserts every row of r in one transaction. Blank cells become
// NULL and rows already present are skipped, so loading the same file
// twice is a no-op. It returns the number of rows written.
func (l *Loader) LoadCSV(ctx context.Context, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	cols, err := headerIndex(header)
	if err != nil {
		return 0, err
	}

	var inserted int
	err = l.store.WithTx(ctx, func(tx repository.Repository) error {
		for line := 2; ; line++ {
			record, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}

			reg, ok := regionFromRecord(record, cols)
			if !ok {
				slog.Debug("skipping region row without province", "line", line)
				continue
			}
			added, err := tx.InsertRegion(ctx, &reg)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			if added {
				inserted++
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func headerIndex(header []string) ([3]int, error) {
	idx := [3]int{-1, -1, -1}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for col, aliases := range columnAliases {
			for _, a := range aliases {
				if h == a {
					idx[col] = i
				}
			}
		}
	}
	for col, i := range idx {
		if i < 0 {
			return idx, fmt.Errorf("region csv: missing column %q", columnAliases[col][0])
		}
	}
	return idx, nil
}

func regionFromRecord(record []string, cols [3]int) (models.Region, bool) {
	cell := func(i int) string {
		if i >= len(record) {
			return ""
		}
		return norm.NFC.String(strings.TrimSpace(record[i]))
	}
	r := models.Region{
		Province:   cell(cols[0]),
		CityCounty: cell(cols[1]),
		Town:       cell(cols[2]),
	}
	// A town without its city-county cannot be addressed by the resolver.
	if r.Province == "" || (r.CityCounty == "" && r.Town != "") {
		return models.Region{}, false
	}
	return r, true
}
