package models

import "strings"

// Region is one node of the province / city-county / town hierarchy.
// Empty CityCounty or Town means the row covers the whole parent level.
type Region struct {
	ID         int64
	Province   string
	CityCounty string
	Town       string
}

func (r Region) Key() RegionKey {
	return RegionKey{
		Province:   r.Province,
		CityCounty: r.CityCounty,
		Town:       r.Town,
	}
}

// RegionKey is a resolved (province, city_county, town) triple. Trailing
// empty levels are unconstrained.
type RegionKey struct {
	Province   string
	CityCounty string
	Town       string
}

func (k RegionKey) Depth() int {
	switch {
	case k.Province == "":
		return 0
	case k.CityCounty == "":
		return 1
	case k.Town == "":
		return 2
	default:
		return 3
	}
}

func (k RegionKey) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{k.Province, k.CityCounty, k.Town} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
