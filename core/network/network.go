package network

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kilianp07/evcorridor/core/model"
)

// Network is an immutable corridor graph with a lazily filled distance cache.
type Network struct {
	g     *simple.WeightedUndirectedGraph
	order []model.SegmentID

	mu    sync.Mutex
	cache map[model.SegmentID]map[model.SegmentID]float64
}

// Option configures Build.
type Option func(*buildOpts)

type buildOpts struct {
	maxLink float64
}

// WithMaxLink leaves consecutive rows unlinked when their averaged distance
// exceeds km. It is used to split tables that concatenate separate corridors.
func WithMaxLink(km float64) Option {
	return func(o *buildOpts) { o.maxLink = km }
}

// Build validates the ordered segment table and links consecutive rows.
func Build(segments []model.Segment, opts ...Option) (*Network, error) {
	bo := buildOpts{maxLink: math.Inf(1)}
	for _, o := range opts {
		o(&bo)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: empty segment table", model.ErrInvalidInput)
	}
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	order := make([]model.SegmentID, 0, len(segments))
	for _, s := range segments {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if g.Node(int64(s.ID)) != nil {
			return nil, fmt.Errorf("%w: duplicate segment %d", model.ErrMalformedSegment, s.ID)
		}
		g.AddNode(simple.Node(s.ID))
		order = append(order, s.ID)
	}
	for i := 0; i+1 < len(segments); i++ {
		cur, next := segments[i], segments[i+1]
		w := (cur.Length + next.Length) / 2
		if w > bo.maxLink {
			continue
		}
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(cur.ID), simple.Node(next.ID), w))
	}
	return &Network{g: g, order: order, cache: make(map[model.SegmentID]map[model.SegmentID]float64)}, nil
}

// Segments returns the segment ids in input order.
func (n *Network) Segments() []model.SegmentID {
	out := make([]model.SegmentID, len(n.order))
	copy(out, n.order)
	return out
}

// Has reports whether id is a known segment.
func (n *Network) Has(id model.SegmentID) bool { return n.g.Node(int64(id)) != nil }

// ShortestPaths returns the distance from source to every reachable segment,
// source included. The returned map is shared with the cache and must not be
// modified.
func (n *Network) ShortestPaths(source model.SegmentID) map[model.SegmentID]float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if d, ok := n.cache[source]; ok {
		return d
	}
	dist := make(map[model.SegmentID]float64)
	if n.Has(source) {
		tree := path.DijkstraFrom(simple.Node(source), n.g)
		for _, id := range n.order {
			w := tree.WeightTo(int64(id))
			if math.IsInf(w, 1) {
				continue
			}
			dist[id] = w
		}
	}
	n.cache[source] = dist
	return dist
}

// Distance returns the shortest-path distance between a and b. The boolean is
// false when b cannot be reached from a.
func (n *Network) Distance(a, b model.SegmentID) (float64, bool) {
	d, ok := n.ShortestPaths(a)[b]
	return d, ok
}

// Matrix computes the all-pairs distance matrix, one Dijkstra per segment.
func (n *Network) Matrix() map[model.SegmentID]map[model.SegmentID]float64 {
	out := make(map[model.SegmentID]map[model.SegmentID]float64, len(n.order))
	for _, id := range n.order {
		out[id] = n.ShortestPaths(id)
	}
	return out
}

// Disconnected returns the segments that cannot reach any other segment.
// A single-segment corridor has no disconnected segment.
func (n *Network) Disconnected() []model.SegmentID {
	if len(n.order) < 2 {
		return nil
	}
	var out []model.SegmentID
	for _, id := range n.order {
		if len(n.ShortestPaths(id)) <= 1 {
			out = append(out, id)
		}
	}
	return out
}

// CheckConnected returns ErrDisconnectedSegment naming the first isolated
// segment, if any. Routing does not require it; it exists for diagnostics.
func (n *Network) CheckConnected() error {
	if d := n.Disconnected(); len(d) > 0 {
		return fmt.Errorf("%w: %v", model.ErrDisconnectedSegment, d)
	}
	return nil
}

// Within builds the coverage map of plan: for each segment, every built
// station whose shortest-path distance is at most radius.
func (n *Network) Within(plan model.SitePlan, radius float64) model.CoverageMap {
	cov := make(model.CoverageMap)
	stations := plan.Stations()
	for _, st := range stations {
		if !n.Has(st) {
			continue
		}
		for seg, d := range n.ShortestPaths(st) {
			if d > radius {
				continue
			}
			m, ok := cov[seg]
			if !ok {
				m = make(map[model.SegmentID]float64)
				cov[seg] = m
			}
			m[st] = d
		}
	}
	return cov
}

// Pairs lists every ordered (station candidate, segment) pair within radius,
// sorted by candidate then segment. Distances are symmetric on an undirected
// graph so the candidate is used as Dijkstra source.
func (n *Network) Pairs(radius float64) []Pair {
	var out []Pair
	for _, i := range n.order {
		dist := n.ShortestPaths(i)
		targets := make([]model.SegmentID, 0, len(dist))
		for j, d := range dist {
			if d <= radius {
				targets = append(targets, j)
			}
		}
		sort.Slice(targets, func(a, b int) bool { return targets[a] < targets[b] })
		for _, j := range targets {
			out = append(out, Pair{Station: i, Segment: j, Distance: dist[j]})
		}
	}
	return out
}

// Pair is a candidate station and a segment it can serve.
type Pair struct {
	Station  model.SegmentID
	Segment  model.SegmentID
	Distance float64
}
