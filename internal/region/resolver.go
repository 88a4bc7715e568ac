package region

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/mr1hm/go-disaster-notify/internal/models"
	"github.com/mr1hm/go-disaster-notify/internal/repository"
)

// Whole-province markers accepted as the second token, e.g. "부산광역시 전체".
var wholeProvinceMarkers = []string{"전체", "ALL"}

// Finder is the read side of the region table used during resolution.
type Finder interface {
	FindRegionExact(ctx context.Context, key models.RegionKey) (*models.Region, error)
	FindRegionPrefix(ctx context.Context, key models.RegionKey) (*models.Region, error)
}

// Resolver maps free-text region fragments onto the deepest matching
// level of the province / city-county / town hierarchy.
type Resolver struct {
	finder Finder
}

func NewResolver(finder Finder) *Resolver {
	return &Resolver{finder: finder}
}

// Resolve returns the deepest key matching text. The bool is false when
// no level of the hierarchy matched.
func (r *Resolver) Resolve(ctx context.Context, text string) (models.RegionKey, bool, error) {
	tokens := strings.Fields(norm.NFC.String(text))
	if len(tokens) == 0 {
		return models.RegionKey{}, false, nil
	}

	if len(tokens) == 2 && isWholeProvince(tokens[1]) {
		key := models.RegionKey{Province: tokens[0]}
		ok, err := r.exists(ctx, r.finder.FindRegionExact, key)
		if err != nil || ok {
			return key, ok, err
		}
	}

	// Deepest first: (P,C,T) exact, then (P,C,*), then (P,*,*).
	candidates := make([]models.RegionKey, 0, 3)
	if len(tokens) >= 3 {
		candidates = append(candidates, models.RegionKey{Province: tokens[0], CityCounty: tokens[1], Town: tokens[2]})
	}
	if len(tokens) >= 2 {
		candidates = append(candidates, models.RegionKey{Province: tokens[0], CityCounty: tokens[1]})
	}
	candidates = append(candidates, models.RegionKey{Province: tokens[0]})

	for _, key := range candidates {
		find := r.finder.FindRegionPrefix
		if key.Depth() == 3 {
			find = r.finder.FindRegionExact
		}
		ok, err := r.exists(ctx, find, key)
		if err != nil {
			return models.RegionKey{}, false, err
		}
		if ok {
			return key, true, nil
		}
	}
	return models.RegionKey{}, false, nil
}

// ResolveAll splits raw on commas and resolves every fragment on its own.
// Keys are deduplicated in order of first appearance; fragments that
// matched nothing are returned separately.
func (r *Resolver) ResolveAll(ctx context.Context, raw string) ([]models.RegionKey, []string, error) {
	var (
		keys       []models.RegionKey
		unresolved []string
		seen       = make(map[models.RegionKey]struct{})
	)
	for _, fragment := range strings.Split(raw, ",") {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}
		key, ok, err := r.Resolve(ctx, fragment)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve %q: %w", fragment, err)
		}
		if !ok {
			slog.Warn("region fragment unresolved", "fragment", fragment)
			unresolved = append(unresolved, fragment)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys, unresolved, nil
}

func (r *Resolver) exists(
	ctx context.Context,
	find func(context.Context, models.RegionKey) (*models.Region, error),
	key models.RegionKey,
) (bool, error) {
	_, err := find(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func isWholeProvince(token string) bool {
	for _, m := range wholeProvinceMarkers {
		if strings.EqualFold(token, m) {
			return true
		}
	}
	return false
}
