// Package demand converts traffic counts into the daily number of electric
// vehicles needing a mid-trip charge on each segment.
package demand

import (
	"fmt"
	"sort"

	"github.com/kilianp07/evcorridor/core/model"
)

const (
	// EVShare is the fraction of passenger traffic that is electric.
	EVShare = 0.033
	// ChargeShare is the fraction of electric vehicles needing a mid-trip charge.
	ChargeShare = 0.02072
)

// yearScalars is the piecewise EV adoption growth relative to 2024.
var yearScalars = map[int]float64{
	2024: 1.0,
	2029: 4.12,
	2034: 7.24,
	2039: 10.36,
	2044: 13.48,
	2049: 16.6,
}

// Years returns the supported forecast years in ascending order.
func Years() []int {
	ys := make([]int, 0, len(yearScalars))
	for y := range yearScalars {
		ys = append(ys, y)
	}
	sort.Ints(ys)
	return ys
}

// YearScalar returns the demand multiplier for year.
func YearScalar(year int) (float64, error) {
	s, ok := yearScalars[year]
	if !ok {
		return 0, fmt.Errorf("%w: %d (supported %v)", model.ErrInvalidYear, year, Years())
	}
	return s, nil
}

// Rate returns the vehicles per day needing a charge on seg in year.
func Rate(seg model.Segment, year int) (float64, error) {
	scalar, err := YearScalar(year)
	if err != nil {
		return 0, err
	}
	if err := seg.Validate(); err != nil {
		return 0, err
	}
	return base(seg) * scalar, nil
}

// Rates computes the demand of every segment for year. Nothing is cached so a
// change of year always yields fresh values.
func Rates(segments []model.Segment, year int) (map[model.SegmentID]float64, error) {
	scalar, err := YearScalar(year)
	if err != nil {
		return nil, err
	}
	out := make(map[model.SegmentID]float64, len(segments))
	for _, s := range segments {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		out[s.ID] = base(s) * scalar
	}
	return out, nil
}

func base(s model.Segment) float64 {
	return float64(s.AADT) * (1 - s.TruckPct/100) * EVShare * ChargeShare
}
