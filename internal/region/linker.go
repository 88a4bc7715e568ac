package region

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mr1hm/go-disaster-notify/internal/models"
	"github.com/mr1hm/go-disaster-notify/internal/repository"
)

// LinkStore is what the linker needs from the store. Inside ingest it is
// the record's transaction.
type LinkStore interface {
	FindRegionExact(ctx context.Context, key models.RegionKey) (*models.Region, error)
	LinkRegion(ctx context.Context, disasterID, regionID int64) (bool, error)
}

type Linker struct{}

func NewLinker() *Linker {
	return &Linker{}
}

// Link attaches disasterID to the region row of every key. Empty key
// levels only match NULL columns. Keys without a row are logged and
// skipped; already-linked pairs are left alone. The returned IDs are the
// regions the disaster is linked to after the call, in key order.
func (l *Linker) Link(ctx context.Context, store LinkStore, disasterID int64, keys []models.RegionKey) ([]int64, error) {
	ids := make([]int64, 0, len(keys))
	seen := make(map[int64]struct{}, len(keys))

	for _, key := range keys {
		r, err := store.FindRegionExact(ctx, key)
		if errors.Is(err, repository.ErrNotFound) {
			slog.Warn("no region row for resolved key", "disaster_id", disasterID, "region", key.String())
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find region %q: %w", key.String(), err)
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}

		if _, err := store.LinkRegion(ctx, disasterID, r.ID); err != nil {
			return nil, fmt.Errorf("link region %d: %w", r.ID, err)
		}
		seen[r.ID] = struct{}{}
		ids = append(ids, r.ID)
	}
	return ids, nil
}
