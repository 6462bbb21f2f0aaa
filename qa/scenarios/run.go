package scenarios

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kilianp07/evcorridor/app"
	"github.com/kilianp07/evcorridor/config"
	"github.com/kilianp07/evcorridor/core/model"
)

// Report is the outcome of one scenario. Passed is true when Failures is empty.
type Report struct {
	Name     string
	Failures []string
}

// Passed reports whether every expectation held.
func (r Report) Passed() bool { return len(r.Failures) == 0 }

func (r *Report) failf(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// Run plans, and simulates when asked, the scenario and checks its
// expectations. The error is reserved for scenarios that cannot be set up.
func Run(ctx context.Context, sc *Scenario) (Report, error) {
	rep := Report{Name: sc.Name}
	segs, existing, err := sc.corridor()
	if err != nil {
		return rep, err
	}
	pins, err := parseTiers(sc.Pins)
	if err != nil {
		return rep, err
	}
	want, err := parseTiers(sc.Expected.Stations)
	if err != nil {
		return rep, err
	}

	cfg := &config.Config{}
	cfg.Optimizer.RadiusKm = sc.RadiusKm
	cfg.Simulation.Seed = sc.Seed
	if cfg.Simulation.Seed == 0 {
		cfg.Simulation.Seed = 1
	}
	cfg.SetDefaults()
	p, err := app.New(segs, cfg, app.WithExisting(existing))
	if err != nil {
		return rep, err
	}
	defer func() { _ = p.Close() }()

	req := app.Scenario{Year: sc.Year, Budget: sc.Budget, Pins: pins, CountExisting: sc.CountExisting}
	var out *app.Outcome
	if sc.Simulate {
		out, err = p.Simulate(ctx, req)
	} else {
		out, err = p.Optimize(ctx, req)
	}
	switch {
	case sc.Expected.Infeasible && errors.Is(err, model.ErrInfeasible):
		return rep, nil
	case sc.Expected.Infeasible && err == nil:
		rep.failf("expected an infeasible plan, got %d stations", len(out.Plan.Stations()))
		return rep, nil
	case err != nil:
		rep.failf("unexpected error: %v", err)
		return rep, nil
	}
	check(&rep, sc.Expected, want, segs, out)
	return rep, nil
}

func check(rep *Report, exp Expected, want map[model.SegmentID]model.Tier, segs []model.Segment, out *app.Outcome) {
	ids := make([]model.SegmentID, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if got := out.Plan[id]; got != want[id] {
			rep.failf("segment %d: tier %s, want %s", id, got, want[id])
		}
	}
	if exp.StationCount != nil {
		if n := len(out.Plan.Stations()); n != *exp.StationCount {
			rep.failf("%d stations, want %d", n, *exp.StationCount)
		}
	}
	if sol := out.Solution; sol != nil && sol.Served < exp.MinServed {
		rep.failf("served %.2f vehicles, want at least %.2f", sol.Served, exp.MinServed)
	}
	if exp.MaxSpent != nil {
		if spent := out.Plan.Cost(segs); spent > *exp.MaxSpent {
			rep.failf("spent %.2f, want at most %.2f", spent, *exp.MaxSpent)
		}
	}
	if out.Counters == nil {
		return
	}
	if out.Summary.MeanCoverage < exp.MinMeanCoverage {
		rep.failf("mean coverage %.2f, want at least %.2f", out.Summary.MeanCoverage, exp.MinMeanCoverage)
	}
	if exp.MaxBalked != nil && out.Summary.Balked > *exp.MaxBalked {
		rep.failf("%d cars balked, want at most %d", out.Summary.Balked, *exp.MaxBalked)
	}
}
