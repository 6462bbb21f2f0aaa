package optimizer

import (
	"sort"

	"github.com/kilianp07/evcorridor/core/model"
	"github.com/kilianp07/evcorridor/core/network"
)

const eps = 1e-9

// greedy builds a feasible plan to start the search from. Fixed tiers are
// kept, then the tier upgrade with the most newly served demand per unit of
// cost is applied until no affordable upgrade serves more.
type greedy struct {
	o         *Optimizer
	rates     map[model.SegmentID]float64
	order     []model.SegmentID
	stations  map[model.SegmentID][]model.SegmentID
	fixed     map[model.SegmentID]model.Tier
	available float64
}

func newGreedy(o *Optimizer, rates map[model.SegmentID]float64, pairs []network.Pair, fixed map[model.SegmentID]model.Tier, available float64) *greedy {
	g := &greedy{o: o, rates: rates, stations: make(map[model.SegmentID][]model.SegmentID), fixed: fixed, available: available}
	for _, p := range pairs {
		if rates[p.Segment] > 0 {
			g.stations[p.Segment] = append(g.stations[p.Segment], p.Station)
		}
	}
	for seg, st := range g.stations {
		sort.Slice(st, func(i, j int) bool { return st[i] < st[j] })
		g.order = append(g.order, seg)
	}
	// larger demand first, lower id on ties
	sort.Slice(g.order, func(i, j int) bool {
		a, b := g.order[i], g.order[j]
		if rates[a] != rates[b] {
			return rates[a] > rates[b]
		}
		return a < b
	})
	return g
}

// run returns the plan and the station assigned to every served segment.
func (g *greedy) run() (model.SitePlan, map[model.SegmentID]model.SegmentID) {
	plan := make(model.SitePlan, len(g.o.segments))
	var spent float64
	for _, s := range g.o.segments {
		plan[s.ID] = model.TierNone
		if t, ok := g.fixed[s.ID]; ok {
			plan[s.ID] = t
			spent += s.Cost(t)
		}
	}
	_, served := g.assign(plan)

	for {
		var (
			bestSeg  model.SegmentID
			bestTier model.Tier
			bestGain float64
			bestCost float64
			found    bool
		)
		for _, s := range g.o.segments {
			if _, ok := g.fixed[s.ID]; ok {
				continue
			}
			cur := plan[s.ID]
			for _, t := range model.Tiers {
				if t <= cur {
					continue
				}
				delta := s.Cost(t) - s.Cost(cur)
				if spent+delta > g.available+eps*max(1, g.available) {
					continue
				}
				plan[s.ID] = t
				_, v := g.assign(plan)
				plan[s.ID] = cur
				gain := v - served
				if gain <= eps {
					continue
				}
				if !found || better(gain, delta, bestGain, bestCost) {
					bestSeg, bestTier, bestGain, bestCost, found = s.ID, t, gain, delta, true
				}
			}
		}
		if !found {
			break
		}
		plan[bestSeg] = bestTier
		spent += bestCost
		served += bestGain
	}
	assignments, _ := g.assign(plan)
	return plan, assignments
}

// better compares gain per cost, treating free upgrades as best.
func better(gain, cost, bestGain, bestCost float64) bool {
	switch {
	case cost <= 0 && bestCost <= 0:
		return gain > bestGain
	case cost <= 0:
		return true
	case bestCost <= 0:
		return false
	}
	return gain/cost > bestGain/bestCost+eps
}

// assign serves segments by decreasing demand, each from the in-range
// station whose remaining capacity fits it most tightly.
func (g *greedy) assign(plan model.SitePlan) (map[model.SegmentID]model.SegmentID, float64) {
	left := make(map[model.SegmentID]float64)
	for id, t := range plan {
		if t != model.TierNone {
			left[id] = g.o.cfg.capacity(t)
		}
	}
	out := make(map[model.SegmentID]model.SegmentID)
	var served float64
	for _, seg := range g.order {
		d := g.rates[seg]
		pick := model.SegmentID(-1)
		for _, st := range g.stations[seg] {
			rem, ok := left[st]
			if !ok || rem+eps < d {
				continue
			}
			if pick < 0 || rem < left[pick] {
				pick = st
			}
		}
		if pick < 0 {
			continue
		}
		left[pick] -= d
		out[seg] = pick
		served += d
	}
	return out, served
}
