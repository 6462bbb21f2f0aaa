// Package optimizer selects charging station sites and tiers along the
// corridor with a binary integer program.
//
// For every segment i and tier c a variable x[i][c] decides whether tier c is
// built at i. For every pair (i, j) whose shortest-path distance is within the
// service radius a variable y[i][j] decides whether the demand of j is served
// by the station at i. Pairs beyond the radius get no variable at all, so an
// out-of-range assignment is infeasible rather than penalised.
//
// A fresh model is built and solved on every call. A greedy plan is offered
// to backends that accept a start, so a search stopped by its node or time
// limit still returns a plan. Among equally good plans the one returned
// depends on the solver's exploration order.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kilianp07/evcorridor/core/demand"
	"github.com/kilianp07/evcorridor/core/logger"
	"github.com/kilianp07/evcorridor/core/model"
	"github.com/kilianp07/evcorridor/core/network"
	"github.com/kilianp07/evcorridor/core/solver"
)

// Request carries the planner inputs of one optimisation.
type Request struct {
	Year   int
	Budget float64
	// Pins forces segments to a tier. TierNone entries are ignored.
	Pins map[model.SegmentID]model.Tier
	// Existing holds physical port counts of stations already on the corridor.
	Existing map[model.SegmentID]int
	// CountExisting credits existing stations into the plan and budget.
	CountExisting bool
}

// Solution is the outcome of a successful optimisation.
type Solution struct {
	Plan     model.SitePlan
	Coverage model.CoverageMap
	// Assignments maps each served segment to the station serving it.
	Assignments map[model.SegmentID]model.SegmentID
	Demand      map[model.SegmentID]float64
	// Fixed lists the tier forced on each pinned or existing segment.
	Fixed  map[model.SegmentID]model.Tier
	Served float64
	// Objective is the solver's objective value, equal to Served up to tolerance.
	Objective float64
	Budget    float64
	Credit    float64
	Spent     float64
	Status    solver.Status
	Nodes     int
}

// Load returns the demand assigned to each station.
func (s *Solution) Load() map[model.SegmentID]float64 {
	out := make(map[model.SegmentID]float64)
	for seg, st := range s.Assignments {
		out[st] += s.Demand[seg]
	}
	return out
}

// Optimizer builds and solves the site-selection model.
type Optimizer struct {
	net      *network.Network
	segments []model.Segment
	index    map[model.SegmentID]model.Segment
	cfg      Config
	log      logger.Logger
	newModel func() solver.Model
}

// Option customises an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Optimizer) {
		if l != nil {
			o.log = l
		}
	}
}

// WithBackend replaces the MILP backend.
func WithBackend(f func() solver.Model) Option {
	return func(o *Optimizer) { o.newModel = f }
}

// New returns an optimizer over the corridor built from segments.
func New(net *network.Network, segments []model.Segment, cfg Config, opts ...Option) (*Optimizer, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("optimizer config: %w", err)
	}
	idx := make(map[model.SegmentID]model.Segment, len(segments))
	for _, s := range segments {
		if !net.Has(s.ID) {
			return nil, fmt.Errorf("%w: segment %d missing from network", model.ErrInvalidInput, s.ID)
		}
		idx[s.ID] = s
	}
	o := &Optimizer{net: net, segments: segments, index: idx, cfg: cfg, log: logger.NopLogger{}}
	o.newModel = func() solver.Model {
		return solver.NewBranchAndBound(solver.Options{
			NodeLimit: cfg.NodeLimit,
			TimeLimit: time.Duration(cfg.TimeLimitSeconds) * time.Second,
		})
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Radius returns the service radius in km.
func (o *Optimizer) Radius() float64 { return o.cfg.RadiusKm }

type assignVar struct {
	station, segment model.SegmentID
	v                solver.Var
}

// Plan solves the model for req. It returns model.ErrInfeasible when the
// pins, existing stations and budget cannot be satisfied together.
func (o *Optimizer) Plan(ctx context.Context, req Request) (*Solution, error) {
	if math.IsNaN(req.Budget) || math.IsInf(req.Budget, 0) || req.Budget < 0 {
		return nil, fmt.Errorf("%w: budget %v", model.ErrInvalidInput, req.Budget)
	}
	rates, err := demand.Rates(o.segments, req.Year)
	if err != nil {
		return nil, err
	}
	fixed, credit, err := o.fixedTiers(req)
	if err != nil {
		return nil, err
	}
	available := req.Budget + credit
	var fixedCost float64
	for id, t := range fixed {
		fixedCost += o.index[id].Cost(t)
	}
	if fixedCost > available+eps*max(1, available) {
		o.log.Warnf("site selection infeasible: fixed stations cost %.2f of %.2f", fixedCost, available)
		return nil, fmt.Errorf("%w: budget %.2f cannot cover %d fixed stations costing %.2f", model.ErrInfeasible, available, len(fixed), fixedCost)
	}

	m := o.newModel()
	x := make(map[model.SegmentID][]solver.Var, len(o.segments))
	for _, s := range o.segments {
		vars := make([]solver.Var, len(model.Tiers))
		for k, t := range model.Tiers {
			vars[k] = m.AddBinary(fmt.Sprintf("x[%d,%s]", s.ID, t))
		}
		x[s.ID] = vars
	}
	pairs := o.net.Pairs(o.cfg.RadiusKm)
	var ys []assignVar
	for _, p := range pairs {
		if rates[p.Segment] <= 0 {
			continue
		}
		ys = append(ys, assignVar{station: p.Station, segment: p.Segment, v: m.AddBinary(fmt.Sprintf("y[%d,%d]", p.Station, p.Segment))})
	}

	// at most one tier per segment
	for _, s := range o.segments {
		terms := make([]solver.Term, 0, len(model.Tiers))
		for _, v := range x[s.ID] {
			terms = append(terms, solver.Term{Var: v, Coef: 1})
		}
		m.AddConstraint(terms, solver.LessEq, 1)
	}

	// assigned demand within the capacity of the chosen tier
	byStation := make(map[model.SegmentID][]solver.Term)
	bySegment := make(map[model.SegmentID][]solver.Term)
	var objective []solver.Term
	for _, y := range ys {
		d := rates[y.segment]
		byStation[y.station] = append(byStation[y.station], solver.Term{Var: y.v, Coef: d})
		bySegment[y.segment] = append(bySegment[y.segment], solver.Term{Var: y.v, Coef: 1})
		objective = append(objective, solver.Term{Var: y.v, Coef: d})
	}
	for _, s := range o.segments {
		terms := byStation[s.ID]
		if len(terms) == 0 {
			continue
		}
		for k, t := range model.Tiers {
			terms = append(terms, solver.Term{Var: x[s.ID][k], Coef: -o.cfg.capacity(t)})
		}
		m.AddConstraint(terms, solver.LessEq, 0)
	}

	// only a built station serves
	for _, y := range ys {
		terms := []solver.Term{{Var: y.v, Coef: 1}}
		for _, v := range x[y.station] {
			terms = append(terms, solver.Term{Var: v, Coef: -1})
		}
		m.AddConstraint(terms, solver.LessEq, 0)
	}

	// a segment's demand is served once
	for _, s := range o.segments {
		if terms := bySegment[s.ID]; len(terms) > 1 {
			m.AddConstraint(terms, solver.LessEq, 1)
		}
	}

	// budget
	var budget []solver.Term
	for _, s := range o.segments {
		for k, t := range model.Tiers {
			if c := s.Cost(t); c != 0 {
				budget = append(budget, solver.Term{Var: x[s.ID][k], Coef: c})
			}
		}
	}
	if len(budget) > 0 {
		m.AddConstraint(budget, solver.LessEq, available)
	}

	// pinned and existing stations
	for _, id := range sortedIDs(fixed) {
		t := fixed[id]
		m.AddConstraint([]solver.Term{{Var: x[id][t-1], Coef: 1}}, solver.Equal, 1)
	}

	m.SetObjective(objective, true)
	if st, ok := m.(solver.Starter); ok {
		plan, assigned := newGreedy(o, rates, pairs, fixed, available).run()
		start := make([]float64, m.NumVars())
		for id, t := range plan {
			if t != model.TierNone {
				start[x[id][t-1]] = 1
			}
		}
		for _, y := range ys {
			if assigned[y.segment] == y.station {
				start[y.v] = 1
			}
		}
		if err := st.SetStart(start); err != nil {
			o.log.Warnf("greedy start rejected: %v", err)
		}
	}
	o.log.Debugf("site selection model: %d variables, %d assignment pairs, budget %.2f (credit %.2f)", m.NumVars(), len(ys), available, credit)

	status, err := m.Optimize(ctx)
	if err != nil {
		if errors.Is(err, solver.ErrInfeasible) {
			o.log.Warnf("site selection infeasible with budget %.2f and %d fixed stations", available, len(fixed))
			return nil, fmt.Errorf("%w: budget %.2f cannot cover %d fixed stations", model.ErrInfeasible, available, len(fixed))
		}
		return nil, fmt.Errorf("site selection: %w", err)
	}

	sol := &Solution{
		Plan:        make(model.SitePlan, len(o.segments)),
		Assignments: make(map[model.SegmentID]model.SegmentID),
		Demand:      rates,
		Fixed:       fixed,
		Budget:      available,
		Credit:      credit,
		Status:      status,
		Objective:   m.ObjectiveValue(),
	}
	if n, ok := m.(interface{ Nodes() int }); ok {
		sol.Nodes = n.Nodes()
	}
	for _, s := range o.segments {
		sol.Plan[s.ID] = model.TierNone
		for k, t := range model.Tiers {
			if m.Value(x[s.ID][k]) > 0.5 {
				sol.Plan[s.ID] = t
				break
			}
		}
	}
	for _, y := range ys {
		if m.Value(y.v) > 0.5 {
			sol.Assignments[y.segment] = y.station
			sol.Served += rates[y.segment]
		}
	}
	sol.Spent = sol.Plan.Cost(o.segments)
	sol.Coverage = o.net.Within(sol.Plan, o.cfg.RadiusKm)
	o.log.Infof("site selection %s: %d stations, served %.2f vehicles/day, spent %.2f of %.2f", status, len(sol.Plan.Stations()), sol.Served, sol.Spent, available)
	return sol, nil
}

// fixedTiers resolves pins and counted existing stations into forced tiers
// and the budget credit of existing stations. Port counts of a pin and an
// existing station on the same segment are added before mapping to a tier.
func (o *Optimizer) fixedTiers(req Request) (map[model.SegmentID]model.Tier, float64, error) {
	fixed := make(map[model.SegmentID]model.Tier)
	var credit float64
	for id, t := range req.Pins {
		if _, ok := o.index[id]; !ok {
			return nil, 0, fmt.Errorf("%w: pin on unknown segment %d", model.ErrInvalidInput, id)
		}
		if !t.Valid() {
			return nil, 0, fmt.Errorf("%w: pin on segment %d has invalid tier %d", model.ErrInvalidInput, id, int(t))
		}
	}
	for id, ports := range req.Existing {
		if _, ok := o.index[id]; !ok {
			return nil, 0, fmt.Errorf("%w: existing station on unknown segment %d", model.ErrInvalidInput, id)
		}
		if ports < 0 {
			return nil, 0, fmt.Errorf("%w: segment %d has %d existing ports", model.ErrInvalidInput, id, ports)
		}
	}
	for id, t := range req.Pins {
		if t == model.TierNone {
			continue
		}
		ports := t.Ports()
		if req.CountExisting {
			ports += req.Existing[id]
		}
		fixed[id] = model.TierForPorts(ports)
	}
	if req.CountExisting {
		for id, ports := range req.Existing {
			existing := model.TierForPorts(ports)
			if existing == model.TierNone {
				continue
			}
			credit += o.index[id].Cost(existing)
			if _, pinned := fixed[id]; !pinned {
				fixed[id] = existing
			}
		}
	}
	return fixed, credit, nil
}

func sortedIDs[T any](m map[model.SegmentID]T) []model.SegmentID {
	ids := make([]model.SegmentID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
