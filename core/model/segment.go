package model

import (
	"fmt"
	"math"
)

// SegmentID identifies a highway section (LHRS).
type SegmentID int64

// Segment is one row of the corridor table.
type Segment struct {
	ID        SegmentID `json:"id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Length    float64   `json:"length_km"`
	AADT      int       `json:"aadt"`      // annual average daily traffic
	TruckPct  float64   `json:"truck_pct"` // share of trucks in percent
	// Costs holds the build cost of a small, medium and large station.
	Costs [3]float64 `json:"costs"`
}

// Cost returns the build cost of tier t on this segment. TierNone costs nothing.
func (s Segment) Cost(t Tier) float64 {
	if t < TierSmall || t > TierLarge {
		return 0
	}
	return s.Costs[t-1]
}

// Validate rejects rows that would feed NaN or negative values into the
// demand model or the objective.
func (s Segment) Validate() error {
	if !finite(s.Length) || s.Length < 0 {
		return fmt.Errorf("%w: segment %d: invalid length %v", ErrMalformedSegment, s.ID, s.Length)
	}
	if s.AADT < 0 {
		return fmt.Errorf("%w: segment %d: negative AADT %d", ErrMalformedSegment, s.ID, s.AADT)
	}
	if !finite(s.TruckPct) || s.TruckPct < 0 || s.TruckPct > 100 {
		return fmt.Errorf("%w: segment %d: truck percentage %v outside [0,100]", ErrMalformedSegment, s.ID, s.TruckPct)
	}
	if !finite(s.Latitude) || !finite(s.Longitude) {
		return fmt.Errorf("%w: segment %d: invalid position", ErrMalformedSegment, s.ID)
	}
	for i, c := range s.Costs {
		if !finite(c) || c < 0 {
			return fmt.Errorf("%w: segment %d: invalid %s cost %v", ErrMalformedSegment, s.ID, Tier(i+1), c)
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
