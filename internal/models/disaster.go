package models

import "time"

const (
	DefaultDisasterType  = "기타"
	DefaultSeverityLevel = "알수없음"
)

type Disaster struct {
	ID            int64
	Type          string // feed category, e.g. "폭염" or "Heatwave"
	SeverityLevel string // feed label, e.g. "안전안내"
	Message       string
	Active        bool
	StartTime     time.Time // when the alert was issued, second precision
	EndTime       *time.Time
	UpdatedAt     time.Time
	RawRegionText string // affected-region string exactly as delivered by the feed

	Regions []Region // linked regions, loaded on demand
}

// DedupKey identifies an event across feed deliveries.
type DedupKey struct {
	StartTime     time.Time
	RawRegionText string
}

func (d *Disaster) DedupKey() DedupKey {
	return DedupKey{
		StartTime:     d.StartTime,
		RawRegionText: d.RawRegionText,
	}
}

func (d *Disaster) RegionIDs() []int64 {
	return RegionIDs(d.Regions)
}

func RegionIDs(regions []Region) []int64 {
	ids := make([]int64, 0, len(regions))
	for _, r := range regions {
		ids = append(ids, r.ID)
	}
	return ids
}
