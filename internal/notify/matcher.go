package notify

import (
	"context"
	"fmt"
	"slices"

	"github.com/mr1hm/go-disaster-notify/internal/models"
)

// MatchStore is the read side the matcher needs.
type MatchStore interface {
	LinkedRegions(ctx context.Context, disasterID int64) ([]models.Region, error)
	RegionSubscribers(ctx context.Context, regionIDs []int64) ([]int64, error)
	TypeSubscribers(ctx context.Context, disasterType string) ([]int64, error)
}

type Matcher struct {
	store MatchStore
}

func NewMatcher(store MatchStore) *Matcher {
	return &Matcher{store: store}
}

// Match returns, in ascending order, the users subscribed to at least one
// region linked to d and to d's type. Regions already loaded on d are
// used as is. A disaster with no linked regions matches nobody.
func (m *Matcher) Match(ctx context.Context, d *models.Disaster) ([]int64, error) {
	regionIDs := d.RegionIDs()
	if len(regionIDs) == 0 {
		regions, err := m.store.LinkedRegions(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("linked regions: %w", err)
		}
		regionIDs = models.RegionIDs(regions)
	}
	if len(regionIDs) == 0 {
		return nil, nil
	}

	byRegion, err := m.store.RegionSubscribers(ctx, regionIDs)
	if err != nil {
		return nil, fmt.Errorf("region subscribers: %w", err)
	}
	if len(byRegion) == 0 {
		return nil, nil
	}
	byType, err := m.store.TypeSubscribers(ctx, d.Type)
	if err != nil {
		return nil, fmt.Errorf("type subscribers: %w", err)
	}

	return intersect(byRegion, byType), nil
}

func intersect(a, b []int64) []int64 {
	in := make(map[int64]struct{}, len(b))
	for _, id := range b {
		in[id] = struct{}{}
	}

	var out []int64
	for _, id := range a {
		if _, ok := in[id]; ok {
			out = append(out, id)
			delete(in, id)
		}
	}
	slices.Sort(out)
	return out
}
