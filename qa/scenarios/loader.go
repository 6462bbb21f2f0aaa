// Package scenarios runs YAML planning scenarios with expected outcomes
// against the planner. They serve as regression checks for the optimizer
// and simulator on small corridors.
package scenarios

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/evcorridor/core/model"
	"github.com/kilianp07/evcorridor/pkg/dataset"
)

// SegmentDef is an inline corridor segment.
type SegmentDef struct {
	ID       int64      `yaml:"id"`
	Length   float64    `yaml:"length"`
	AADT     int        `yaml:"aadt"`
	TruckPct float64    `yaml:"truck_pct,omitempty"`
	Costs    [3]float64 `yaml:"costs"`
}

func (s SegmentDef) toModel() model.Segment {
	return model.Segment{
		ID:       model.SegmentID(s.ID),
		Length:   s.Length,
		AADT:     s.AADT,
		TruckPct: s.TruckPct,
		Costs:    s.Costs,
	}
}

// Expected lists the checks applied to the outcome. Unset fields are not checked.
type Expected struct {
	Infeasible      bool             `yaml:"infeasible,omitempty"`
	Stations        map[int64]string `yaml:"stations,omitempty"`
	StationCount    *int             `yaml:"station_count,omitempty"`
	MinServed       float64          `yaml:"min_served,omitempty"`
	MaxSpent        *float64         `yaml:"max_spent,omitempty"`
	MinMeanCoverage float64          `yaml:"min_mean_coverage,omitempty"`
	MaxBalked       *int             `yaml:"max_balked,omitempty"`
}

// Scenario is one YAML scenario file.
type Scenario struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Segments    []SegmentDef `yaml:"segments,omitempty"`
	// Dataset is a segment CSV, relative to the scenario file.
	Dataset       string           `yaml:"dataset,omitempty"`
	Year          int              `yaml:"year"`
	Budget        float64          `yaml:"budget"`
	Pins          map[int64]string `yaml:"pins,omitempty"`
	Existing      map[int64]int    `yaml:"existing,omitempty"`
	CountExisting bool             `yaml:"count_existing,omitempty"`
	RadiusKm      float64          `yaml:"radius_km,omitempty"`
	Seed          uint64           `yaml:"seed,omitempty"`
	Simulate      bool             `yaml:"simulate,omitempty"`
	Expected      Expected         `yaml:"expected"`

	dir string
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = filepath.Base(path)
	}
	if len(sc.Segments) == 0 && sc.Dataset == "" {
		return nil, fmt.Errorf("%s: scenario needs segments or a dataset", path)
	}
	sc.dir = filepath.Dir(path)
	return &sc, nil
}

// corridor returns the segments and installed ports of the scenario.
func (sc *Scenario) corridor() ([]model.Segment, map[model.SegmentID]int, error) {
	existing := make(map[model.SegmentID]int, len(sc.Existing))
	for id, n := range sc.Existing {
		existing[model.SegmentID(id)] = n
	}
	if sc.Dataset != "" {
		path := sc.Dataset
		if !filepath.IsAbs(path) {
			path = filepath.Join(sc.dir, path)
		}
		table, err := dataset.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		for id, n := range table.Existing {
			if _, ok := existing[id]; !ok {
				existing[id] = n
			}
		}
		return table.Segments, existing, nil
	}
	segs := make([]model.Segment, len(sc.Segments))
	for i, s := range sc.Segments {
		segs[i] = s.toModel()
	}
	return segs, existing, nil
}

func parseTiers(in map[int64]string) (map[model.SegmentID]model.Tier, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[model.SegmentID]model.Tier, len(in))
	for id, s := range in {
		t, err := model.ParseTier(s)
		if err != nil {
			return nil, err
		}
		out[model.SegmentID(id)] = t
	}
	return out, nil
}
