package solver

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Options tunes the branch and bound search.
type Options struct {
	// NodeLimit caps the number of solved relaxations. Zero means unlimited.
	NodeLimit int
	// TimeLimit caps the search time. Zero means unlimited.
	TimeLimit time.Duration
	// Gap is the relative optimality gap under which open nodes are pruned.
	Gap float64
	// Tol is the primal feasibility tolerance of the simplex.
	Tol float64
	// IntTol is the distance from 0 or 1 under which a value counts as integral.
	IntTol float64
	// MaxIter caps the simplex pivots of one relaxation. Zero derives the cap
	// from the model size.
	MaxIter int
}

func (o *Options) setDefaults() {
	if o.Gap == 0 {
		o.Gap = 1e-6
	}
	if o.Tol == 0 {
		o.Tol = 1e-7
	}
	if o.IntTol == 0 {
		o.IntTol = 1e-6
	}
}

type constraint struct {
	terms []Term
	sense Sense
	rhs   float64
}

// BranchAndBound solves binary programs by best-bound branch and bound over
// LP relaxations. Each relaxation is solved by a bounded dual simplex warm
// started from the parent basis.
type BranchAndBound struct {
	opts     Options
	names    []string
	cons     []constraint
	obj      []Term
	maximize bool
	start    []float64

	sol    []float64
	objVal float64
	nodes  int
	bound  float64
}

// NewBranchAndBound returns an empty model.
func NewBranchAndBound(opts Options) *BranchAndBound {
	opts.setDefaults()
	return &BranchAndBound{opts: opts}
}

// AddBinary adds a 0/1 variable.
func (b *BranchAndBound) AddBinary(name string) Var {
	b.names = append(b.names, name)
	return Var(len(b.names) - 1)
}

// NumVars returns the number of variables.
func (b *BranchAndBound) NumVars() int { return len(b.names) }

// Name returns the label given to v.
func (b *BranchAndBound) Name(v Var) string { return b.names[v] }

// AddConstraint adds Σ terms (sense) rhs.
func (b *BranchAndBound) AddConstraint(terms []Term, sense Sense, rhs float64) {
	cp := make([]Term, len(terms))
	copy(cp, terms)
	b.cons = append(b.cons, constraint{terms: cp, sense: sense, rhs: rhs})
}

// SetObjective replaces the objective.
func (b *BranchAndBound) SetObjective(terms []Term, maximize bool) {
	b.obj = append(b.obj[:0], terms...)
	b.maximize = maximize
}

// SetStart offers a starting solution. Optimize uses it as the first
// incumbent when it is binary and satisfies every constraint, and ignores it
// otherwise.
func (b *BranchAndBound) SetStart(values []float64) error {
	if len(values) != len(b.names) {
		return fmt.Errorf("solver: start has %d values for %d variables", len(values), len(b.names))
	}
	b.start = append([]float64(nil), values...)
	return nil
}

// Value returns the value of v in the best solution, 0 before Optimize.
func (b *BranchAndBound) Value(v Var) float64 {
	if int(v) >= len(b.sol) || v < 0 {
		return 0
	}
	return b.sol[v]
}

// ObjectiveValue returns the objective of the best solution.
func (b *BranchAndBound) ObjectiveValue() float64 { return b.objVal }

// Nodes returns how many relaxations the last Optimize solved.
func (b *BranchAndBound) Nodes() int { return b.nodes }

// Bound returns the best objective bound proven by the last Optimize. It
// equals ObjectiveValue when the status is optimal.
func (b *BranchAndBound) Bound() float64 { return b.bound }

// pending is an open node: its bounds and the basis of its parent.
type pending struct {
	lb, ub []float64
	basis  []int
	upper  []bool
	// bound is the parent relaxation value in maximisation sense.
	bound float64
}

type openNodes []*pending

func (h openNodes) Len() int           { return len(h) }
func (h openNodes) Less(i, j int) bool { return h[i].bound > h[j].bound }
func (h openNodes) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *openNodes) Push(x any)        { *h = append(*h, x.(*pending)) }

func (h *openNodes) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h openNodes) top() float64 { return h[0].bound }

// search is the state of one Optimize call.
type search struct {
	b          *BranchAndBound
	p          *relaxation
	best       []float64
	bestScore  float64
	incomplete bool
}

// Optimize runs the search. The context is checked inside every relaxation,
// so cancellation and the time limit stop the search within a few pivots.
// When a limit or a context deadline stops the search the best solution found
// so far is kept and the status reports the limit. Cancellation returns the
// context error.
func (b *BranchAndBound) Optimize(ctx context.Context) (Status, error) {
	for i, c := range b.cons {
		for _, t := range c.terms {
			if int(t.Var) < 0 || int(t.Var) >= len(b.names) {
				return StatusUnknown, fmt.Errorf("solver: constraint %d references unknown variable %d", i, t.Var)
			}
		}
	}
	for _, t := range b.obj {
		if int(t.Var) < 0 || int(t.Var) >= len(b.names) {
			return StatusUnknown, fmt.Errorf("solver: objective references unknown variable %d", t.Var)
		}
	}
	b.sol, b.objVal, b.nodes, b.bound = nil, 0, 0, 0
	if err := ctx.Err(); err != nil {
		return StatusUnknown, err
	}
	if b.opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.TimeLimit)
		defer cancel()
	}

	p, lb, ub, err := b.presolve()
	if err != nil {
		return StatusInfeasible, err
	}
	s := &search{b: b, p: p, bestScore: math.Inf(-1)}
	if b.start != nil && b.feasible(b.start, lb, ub) {
		s.best, s.bestScore = append([]float64(nil), b.start...), b.score(b.start)
	}

	stop := StatusOptimal
	bound := math.Inf(-1)
	if p.m == 0 {
		s.trivial(lb, ub)
	} else {
		stop, bound, err = s.run(ctx, lb, ub)
		if err != nil {
			return StatusUnknown, err
		}
	}

	if s.best == nil {
		switch {
		case stop == StatusTimeLimit:
			return stop, fmt.Errorf("%w: %w", ErrNoSolution, context.DeadlineExceeded)
		case stop != StatusOptimal:
			return stop, ErrNoSolution
		case s.incomplete:
			return StatusUnknown, ErrNoSolution
		}
		return StatusInfeasible, ErrInfeasible
	}
	b.sol = s.best
	b.objVal = b.eval(s.best)
	b.bound = b.objVal
	if stop != StatusOptimal || s.incomplete {
		b.bound = b.unscore(math.Max(bound, s.bestScore))
	}
	switch {
	case stop != StatusOptimal:
		return stop, nil
	case s.incomplete:
		return StatusFeasible, nil
	}
	return StatusOptimal, nil
}

// run explores the tree. It dives into one child of every branched node and
// queues the other; when a dive ends the open node with the best bound is
// refactored from its parent basis. It returns the stop reason and the best
// bound among unexplored nodes.
func (s *search) run(ctx context.Context, lb, ub []float64) (Status, float64, error) {
	b, p := s.b, s.p
	maxIter := b.opts.MaxIter
	if maxIter <= 0 {
		maxIter = 20*(p.m+p.cols()) + 1000
	}
	tb, err := slackTableau(p, lb, ub)
	if err != nil {
		return StatusUnknown, 0, err
	}
	var open openNodes
	openBound := func(cur float64) float64 {
		v := cur
		if open.Len() > 0 {
			v = math.Max(v, open.top())
		}
		return v
	}
	curBound := math.Inf(1)

	for tb != nil || open.Len() > 0 {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return StatusUnknown, 0, err
			}
			return StatusTimeLimit, openBound(curBound), nil
		}
		if b.opts.NodeLimit > 0 && b.nodes >= b.opts.NodeLimit {
			return StatusNodeLimit, openBound(curBound), nil
		}
		if tb == nil {
			nd := heap.Pop(&open).(*pending)
			if s.prune(nd.bound) {
				continue
			}
			if tb, err = factorTableau(p, nd.basis, nd.upper, nd.lb, nd.ub); err != nil {
				s.incomplete = true
				tb = nil
				continue
			}
			curBound = nd.bound
		} else if tb.pivots >= refactorEvery {
			if fresh, err := factorTableau(p, tb.basis, tb.upper, tb.lb[:p.n], tb.ub[:p.n]); err == nil {
				tb = fresh
			}
		}

		b.nodes++
		err = tb.solve(ctx, maxIter, b.opts.Tol)
		switch {
		case errors.Is(err, errLPInfeasible):
			tb, curBound = nil, math.Inf(-1)
			continue
		case errors.Is(err, context.Canceled):
			return StatusUnknown, 0, err
		case errors.Is(err, context.DeadlineExceeded):
			return StatusTimeLimit, openBound(curBound), nil
		case err != nil:
			// numerical trouble: the subtree is dropped and optimality is
			// no longer proven
			s.incomplete = true
			tb, curBound = nil, math.Inf(-1)
			continue
		}

		x := tb.structural()
		score := -tb.objective()
		curBound = score
		if s.prune(score) {
			tb, curBound = nil, math.Inf(-1)
			continue
		}
		j := b.mostFractional(x)
		if j < 0 {
			for i := range x {
				x[i] = math.Round(x[i])
			}
			if b.feasible(x, tb.lb[:p.n], tb.ub[:p.n]) {
				if sc := b.score(x); sc > s.bestScore {
					s.best, s.bestScore = x, sc
				}
			} else {
				s.incomplete = true
			}
			tb, curBound = nil, math.Inf(-1)
			continue
		}

		// queue one child with the parent basis and dive into the other
		up := x[j] >= 0.5
		other := &pending{
			lb:    append([]float64(nil), tb.lb[:p.n]...),
			ub:    append([]float64(nil), tb.ub[:p.n]...),
			basis: append([]int(nil), tb.basis...),
			upper: append([]bool(nil), tb.upper...),
			bound: score,
		}
		if up {
			other.ub[j] = 0
			tb.setBound(j, 1, 1)
		} else {
			other.lb[j] = 1
			tb.setBound(j, 0, 0)
		}
		heap.Push(&open, other)
	}
	return StatusOptimal, math.Inf(-1), nil
}

// trivial solves a model without constraint rows: every variable sits on the
// bound its objective coefficient prefers.
func (s *search) trivial(lb, ub []float64) {
	x := make([]float64, s.p.n)
	for j := range x {
		x[j] = lb[j]
		if s.p.cost[j] < 0 {
			x[j] = ub[j]
		}
	}
	if sc := s.b.score(x); s.best == nil || sc > s.bestScore {
		s.best, s.bestScore = x, sc
	}
}

// prune reports whether a node with the given bound cannot beat the
// incumbent by more than the gap.
func (s *search) prune(bound float64) bool {
	if s.best == nil {
		return false
	}
	return bound <= s.bestScore+1e-9+s.b.opts.Gap*math.Abs(s.bestScore)
}

// presolve builds the LP relaxation. Single-variable equality rows become
// bounds and constant rows are checked and dropped.
func (b *BranchAndBound) presolve() (*relaxation, []float64, []float64, error) {
	n := len(b.names)
	lb := make([]float64, n)
	ub := make([]float64, n)
	for i := range ub {
		ub[i] = 1
	}
	tol := b.opts.IntTol

	type row struct {
		coef map[int]float64
		rhs  float64
		eq   bool
	}
	var rows []row
	for _, c := range b.cons {
		r := row{coef: make(map[int]float64, len(c.terms)), rhs: c.rhs, eq: c.sense == Equal}
		for _, t := range c.terms {
			r.coef[int(t.Var)] += t.Coef
		}
		for v, cf := range r.coef {
			if cf == 0 {
				delete(r.coef, v)
			}
		}
		if c.sense == GreaterEq {
			for v := range r.coef {
				r.coef[v] = -r.coef[v]
			}
			r.rhs = -r.rhs
		}
		switch {
		case len(r.coef) == 0:
			if (r.eq && math.Abs(r.rhs) > tol) || (!r.eq && r.rhs < -tol) {
				return nil, nil, nil, ErrInfeasible
			}
		case len(r.coef) == 1 && r.eq:
			for v, cf := range r.coef {
				val := r.rhs / cf
				switch {
				case math.Abs(val) <= tol && lb[v] == 0:
					ub[v] = 0
				case math.Abs(val-1) <= tol && ub[v] == 1:
					lb[v] = 1
				default:
					return nil, nil, nil, ErrInfeasible
				}
			}
		default:
			rows = append(rows, r)
		}
	}

	m := len(rows)
	p := &relaxation{m: m, n: n, b: make([]float64, m), cost: make([]float64, n+m), lb: make([]float64, n+m), ub: make([]float64, n+m)}
	sign := -1.0
	if !b.maximize {
		sign = 1
	}
	for _, t := range b.obj {
		p.cost[t.Var] += sign * t.Coef
	}
	copy(p.lb, lb)
	copy(p.ub, ub)
	if m == 0 {
		return p, lb, ub, nil
	}
	p.a = mat.NewDense(m, n+m, nil)
	for i, r := range rows {
		for v, cf := range r.coef {
			p.a.Set(i, v, cf)
		}
		p.a.Set(i, n+i, 1)
		p.b[i] = r.rhs
		if !r.eq {
			p.ub[n+i] = math.Inf(1)
		}
	}
	return p, lb, ub, nil
}

// feasible checks that x is binary, within bounds and satisfies every
// constraint.
func (b *BranchAndBound) feasible(x, lb, ub []float64) bool {
	for j, v := range x {
		if (v != 0 && v != 1) || v < lb[j] || v > ub[j] {
			return false
		}
	}
	for _, c := range b.cons {
		var act float64
		for _, t := range c.terms {
			act += t.Coef * x[t.Var]
		}
		tol := 1e-6 * math.Max(1, math.Abs(c.rhs))
		switch c.sense {
		case LessEq:
			if act > c.rhs+tol {
				return false
			}
		case GreaterEq:
			if act < c.rhs-tol {
				return false
			}
		case Equal:
			if math.Abs(act-c.rhs) > tol {
				return false
			}
		}
	}
	return true
}

func (b *BranchAndBound) eval(x []float64) float64 {
	var v float64
	for _, t := range b.obj {
		v += t.Coef * x[t.Var]
	}
	return v
}

// score is the objective in maximisation sense.
func (b *BranchAndBound) score(x []float64) float64 {
	if b.maximize {
		return b.eval(x)
	}
	return -b.eval(x)
}

// unscore maps a maximisation-sense value back to the objective.
func (b *BranchAndBound) unscore(v float64) float64 {
	if b.maximize {
		return v
	}
	return -v
}

func (b *BranchAndBound) mostFractional(x []float64) int {
	idx := -1
	bestDist := math.Inf(1)
	for i, v := range x {
		frac := v - math.Floor(v)
		if frac <= b.opts.IntTol || frac >= 1-b.opts.IntTol {
			continue
		}
		if d := math.Abs(frac - 0.5); d < bestDist {
			idx, bestDist = i, d
		}
	}
	return idx
}
