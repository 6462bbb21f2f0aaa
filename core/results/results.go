// Package results turns raw simulation counters into coverage, utilization
// and average wait per segment and station.
package results

import (
	"fmt"

	"github.com/kilianp07/evcorridor/core/model"
	"github.com/kilianp07/evcorridor/core/sim"
)

// Aggregate computes the three result maps. Values are not rounded.
func Aggregate(c *sim.Counters) (model.Results, error) {
	if c == nil || c.Horizon <= 0 {
		return model.Results{}, fmt.Errorf("%w: no simulation has completed", model.ErrPrematureQuery)
	}
	r := model.Results{
		Coverage:    make(map[model.SegmentID]float64, len(c.Segments)),
		Utilization: make(map[model.SegmentID]float64, len(c.Stations)),
		AverageWait: make(map[model.SegmentID]float64, len(c.Stations)),
	}
	for _, seg := range c.Segments {
		r.Coverage[seg] = Coverage(c.Charged[seg], c.NotCharged[seg])
	}
	for id, st := range c.Stations {
		r.Utilization[id] = Utilization(st, c.Horizon)
		r.AverageWait[id] = AverageWait(st)
	}
	return r, nil
}

// Coverage is charged/(charged+notCharged), or model.NoData when no car was seen.
func Coverage(charged, notCharged int) float64 {
	total := charged + notCharged
	if total == 0 {
		return model.NoData
	}
	return float64(charged) / float64(total)
}

// Utilization is the share of port minutes spent charging, clamped to [0,1].
func Utilization(st sim.StationStats, horizon int) float64 {
	if st.Ports <= 0 || horizon <= 0 {
		return 0
	}
	u := float64(st.BusyMinutes) / float64(horizon*st.Ports)
	switch {
	case u > 1:
		return 1
	case u < 0:
		return 0
	}
	return u
}

// AverageWait is the mean queueing time in minutes of served cars, or
// model.NoData when the station served nobody.
func AverageWait(st sim.StationStats) float64 {
	if st.Served == 0 {
		return model.NoData
	}
	return float64(st.WaitMinutes) / float64(st.Served)
}

// Summary holds corridor-wide totals of a run.
type Summary struct {
	Generated  int `json:"generated"`
	Charged    int `json:"charged"`
	NotCharged int `json:"not_charged"`
	Balked     int `json:"balked"`
	// MeanCoverage averages coverage over segments that saw traffic, or
	// model.NoData when none did.
	MeanCoverage    float64 `json:"mean_coverage"`
	MeanUtilization float64 `json:"mean_utilization"`
	Stations        int     `json:"stations"`
}

// Summarize computes corridor totals from counters and their aggregate.
func Summarize(c *sim.Counters, r model.Results) (Summary, error) {
	if c == nil || c.Horizon <= 0 {
		return Summary{}, fmt.Errorf("%w: no simulation has completed", model.ErrPrematureQuery)
	}
	s := Summary{MeanCoverage: model.NoData, Stations: len(c.Stations)}
	for _, seg := range c.Segments {
		s.Generated += c.Generated[seg]
		s.Charged += c.Charged[seg]
		s.NotCharged += c.NotCharged[seg]
		s.Balked += c.Balked[seg]
	}
	var sum float64
	var n int
	for _, v := range r.Coverage {
		if v == model.NoData {
			continue
		}
		sum += v
		n++
	}
	if n > 0 {
		s.MeanCoverage = sum / float64(n)
	}
	if len(r.Utilization) > 0 {
		var u float64
		for _, v := range r.Utilization {
			u += v
		}
		s.MeanUtilization = u / float64(len(r.Utilization))
	}
	return s, nil
}
