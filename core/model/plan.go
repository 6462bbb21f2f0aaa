package model

import (
	"math"
	"sort"
)

// SitePlan maps every segment to the tier built there. TierNone means no station.
type SitePlan map[SegmentID]Tier

// Stations returns the segments hosting a station in ascending order.
func (p SitePlan) Stations() []SegmentID {
	ids := make([]SegmentID, 0, len(p))
	for id, t := range p {
		if t != TierNone {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Cost sums the build cost of the plan over the given segments.
func (p SitePlan) Cost(segments []Segment) float64 {
	var total float64
	for _, s := range segments {
		total += s.Cost(p[s.ID])
	}
	return total
}

// CoverageMap maps a segment to the stations within the service radius and
// their shortest-path distance. Segments without a station in range are absent.
type CoverageMap map[SegmentID]map[SegmentID]float64

// Nearest returns the closest station to seg. Equal distances resolve to the
// lower station id so that routing is reproducible.
func (c CoverageMap) Nearest(seg SegmentID) (SegmentID, float64, bool) {
	stations, ok := c[seg]
	if !ok || len(stations) == 0 {
		return 0, 0, false
	}
	var best SegmentID
	bestDist := math.Inf(1)
	found := false
	for id, d := range stations {
		if !found || d < bestDist || (d == bestDist && id < best) {
			best, bestDist, found = id, d, true
		}
	}
	return best, bestDist, true
}

// NoData is the sentinel used in Results when nothing was observed.
const NoData = -1.0

// Results holds the three output maps of a simulation run.
type Results struct {
	// Coverage is keyed by segment: charged/(charged+not charged) or NoData.
	Coverage map[SegmentID]float64 `json:"coverage"`
	// Utilization is keyed by station segment, within [0,1].
	Utilization map[SegmentID]float64 `json:"utilization"`
	// AverageWait is keyed by station segment in minutes or NoData.
	AverageWait map[SegmentID]float64 `json:"average_wait"`
}
