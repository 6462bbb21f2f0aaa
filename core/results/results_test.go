package results

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evcorridor/core/model"
	"github.com/kilianp07/evcorridor/core/sim"
)

func TestAggregateBeforeRun(t *testing.T) {
	if _, err := Aggregate(nil); !errors.Is(err, model.ErrPrematureQuery) {
		t.Fatalf("expected ErrPrematureQuery, got %v", err)
	}
	if _, err := Aggregate(&sim.Counters{}); !errors.Is(err, model.ErrPrematureQuery) {
		t.Fatalf("expected ErrPrematureQuery for empty counters, got %v", err)
	}
	if _, err := Summarize(nil, model.Results{}); !errors.Is(err, model.ErrPrematureQuery) {
		t.Fatalf("expected ErrPrematureQuery from Summarize, got %v", err)
	}
}

func TestAggregateCounters(t *testing.T) {
	c := &sim.Counters{
		Horizon:    100,
		Segments:   []model.SegmentID{1, 2, 3, 4},
		Generated:  map[model.SegmentID]int{1: 4, 3: 2, 4: 1},
		Charged:    map[model.SegmentID]int{1: 3, 3: 0},
		NotCharged: map[model.SegmentID]int{1: 1, 3: 2},
		Balked:     map[model.SegmentID]int{1: 1},
		Stations: map[model.SegmentID]sim.StationStats{
			1: {Ports: 2, BusyMinutes: 50, WaitMinutes: 9, Served: 3},
			3: {Ports: 2, BusyMinutes: 500},
		},
	}
	r, err := Aggregate(c)
	require.NoError(t, err)

	assert.Equal(t, 0.75, r.Coverage[1])
	assert.Equal(t, model.NoData, r.Coverage[2])
	// demand seen but never served is zero, not missing
	assert.Equal(t, 0.0, r.Coverage[3])
	assert.Equal(t, model.NoData, r.Coverage[4])

	assert.Equal(t, 0.25, r.Utilization[1])
	assert.Equal(t, 1.0, r.Utilization[3])
	assert.Equal(t, 3.0, r.AverageWait[1])
	assert.Equal(t, model.NoData, r.AverageWait[3])

	s, err := Summarize(c, r)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Generated)
	assert.Equal(t, 3, s.Charged)
	assert.Equal(t, 3, s.NotCharged)
	assert.Equal(t, 1, s.Balked)
	assert.InDelta(t, 0.375, s.MeanCoverage, 1e-9)
	assert.InDelta(t, 0.625, s.MeanUtilization, 1e-9)
	assert.Equal(t, 2, s.Stations)
}

func TestBoundsOnSimulatedRun(t *testing.T) {
	s, err := sim.New(sim.Config{Seed: 3})
	require.NoError(t, err)
	c, err := s.Run(context.Background(), sim.Input{
		Plan:     model.SitePlan{2: model.TierSmall, 5: model.TierLarge},
		Coverage: model.CoverageMap{1: {2: 10, 5: 5}, 2: {2: 0}, 3: {2: 5}, 5: {5: 0}},
		Rates:    map[model.SegmentID]float64{1: 120, 2: 80, 3: 60, 4: 30, 5: 200},
	})
	require.NoError(t, err)
	r, err := Aggregate(c)
	require.NoError(t, err)

	for seg, v := range r.Coverage {
		if v != model.NoData && (v < 0 || v > 1) {
			t.Fatalf("coverage of %d out of bounds: %v", seg, v)
		}
	}
	for st, v := range r.Utilization {
		if v < 0 || v > 1 {
			t.Fatalf("utilization of %d out of bounds: %v", st, v)
		}
	}
	// segment 4 has no station in range
	assert.Equal(t, 0.0, r.Coverage[4])
	assert.Len(t, r.Utilization, 2)
}
