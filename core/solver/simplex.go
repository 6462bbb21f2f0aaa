package solver

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	errLPInfeasible = errors.New("solver: relaxation is infeasible")
	errIterLimit    = errors.New("solver: simplex iteration limit reached")
	errNumeric      = errors.New("solver: numerically unstable basis")
)

const (
	pivotTol = 1e-9
	dualTol  = 1e-9
	// after this many pivots without dual progress the pricing switches to
	// the smallest-index rule
	degenerateRun = 50
	// pivots on one tableau before it is rebuilt from its basis
	refactorEvery = 200
)

// relaxation is a bounded LP in computational form:
//
//	minimise cost·x  subject to  A x = b,  lb ≤ x ≤ ub
//
// The last m columns of A are the identity and hold one logical variable per
// row, ranging over [0, +Inf) for ≤ rows and fixed at 0 for = rows. The first
// n columns are the structural variables.
type relaxation struct {
	m, n   int
	a      *mat.Dense
	b      []float64
	cost   []float64
	lb, ub []float64
}

func (p *relaxation) cols() int { return p.n + p.m }

// bounds returns full column bounds with the given structural bounds.
func (p *relaxation) bounds(lb, ub []float64) ([]float64, []float64) {
	l := make([]float64, p.cols())
	u := make([]float64, p.cols())
	copy(l, lb)
	copy(u, ub)
	copy(l[p.n:], p.lb[p.n:])
	copy(u[p.n:], p.ub[p.n:])
	return l, u
}

// tableau is a basis of a relaxation together with B⁻¹A, the primal values
// and the reduced costs of every column.
type tableau struct {
	p      *relaxation
	t      *mat.Dense
	basis  []int
	row    []int
	upper  []bool
	x      []float64
	d      []float64
	lb, ub []float64
	pivots int
}

// slackTableau starts from the all-logical basis.
func slackTableau(p *relaxation, lb, ub []float64) (*tableau, error) {
	basis := make([]int, p.m)
	for i := range basis {
		basis[i] = p.n + i
	}
	tb := &tableau{p: p, t: mat.DenseCopyOf(p.a), basis: basis, upper: make([]bool, p.cols())}
	tb.lb, tb.ub = p.bounds(lb, ub)
	tb.d = append([]float64(nil), p.cost...)
	if err := tb.place(); err != nil {
		return nil, err
	}
	return tb, nil
}

// factorTableau rebuilds the tableau of basis with an LU factorisation of
// the basis matrix. upper gives the bound each nonbasic column sat at.
func factorTableau(p *relaxation, basis []int, upper []bool, lb, ub []float64) (*tableau, error) {
	m := p.m
	bm := mat.NewDense(m, m, nil)
	for i, j := range basis {
		for k := 0; k < m; k++ {
			bm.Set(k, i, p.a.At(k, j))
		}
	}
	var lu mat.LU
	lu.Factorize(bm)
	if c := lu.Cond(); math.IsInf(c, 1) || c > 1e12 {
		return nil, errNumeric
	}
	var t mat.Dense
	if err := lu.SolveTo(&t, false, p.a); err != nil {
		return nil, errNumeric
	}
	tb := &tableau{p: p, t: &t, basis: append([]int(nil), basis...), upper: append([]bool(nil), upper...)}
	tb.lb, tb.ub = p.bounds(lb, ub)
	tb.d = make([]float64, p.cols())
	for j := range tb.d {
		v := p.cost[j]
		for i, bj := range tb.basis {
			if cb := p.cost[bj]; cb != 0 {
				v -= cb * t.At(i, j)
			}
		}
		tb.d[j] = v
	}
	if err := tb.place(); err != nil {
		return nil, err
	}
	return tb, nil
}

// place puts every nonbasic column on the bound its reduced cost asks for
// and computes the basic values. The result is dual feasible.
func (tb *tableau) place() error {
	p := tb.p
	tb.row = make([]int, p.cols())
	for j := range tb.row {
		tb.row[j] = -1
	}
	for i, j := range tb.basis {
		tb.row[j] = i
	}
	tb.x = make([]float64, p.cols())
	for j := range tb.x {
		if tb.row[j] >= 0 {
			tb.upper[j] = false
			continue
		}
		switch {
		case tb.lb[j] == tb.ub[j]:
			tb.upper[j] = false
		case tb.d[j] < -dualTol:
			if math.IsInf(tb.ub[j], 1) {
				return errNumeric
			}
			tb.upper[j] = true
		case tb.d[j] > dualTol || math.IsInf(tb.ub[j], 1):
			tb.upper[j] = false
		}
		if tb.upper[j] {
			tb.x[j] = tb.ub[j]
		} else {
			tb.x[j] = tb.lb[j]
		}
	}
	// x_B = B⁻¹b - B⁻¹N x_N
	beta := tb.beta()
	for i, bj := range tb.basis {
		v := beta[i]
		r := tb.t.RawRowView(i)
		for j, xj := range tb.x {
			if xj != 0 && tb.row[j] < 0 {
				v -= r[j] * xj
			}
		}
		tb.x[bj] = v
	}
	return nil
}

// beta returns B⁻¹b. The logical columns of the tableau hold B⁻¹.
func (tb *tableau) beta() []float64 {
	p := tb.p
	out := make([]float64, p.m)
	for i := range out {
		r := tb.t.RawRowView(i)
		out[i] = floats.Dot(r[p.n:], p.b)
	}
	return out
}

// structural returns the structural values clamped to their bounds.
func (tb *tableau) structural() []float64 {
	out := make([]float64, tb.p.n)
	for j := range out {
		out[j] = math.Min(tb.ub[j], math.Max(tb.lb[j], tb.x[j]))
	}
	return out
}

// objective is cost·x of the current basis.
func (tb *tableau) objective() float64 {
	return floats.Dot(tb.p.cost, tb.x)
}

// setBound changes the bounds of structural column j. A nonbasic column is
// moved to its new bound and the basic values follow.
func (tb *tableau) setBound(j int, lb, ub float64) {
	tb.lb[j], tb.ub[j] = lb, ub
	if tb.row[j] >= 0 {
		return
	}
	nv := lb
	if tb.upper[j] && lb != ub {
		nv = ub
	}
	if delta := nv - tb.x[j]; delta != 0 {
		for i, bj := range tb.basis {
			tb.x[bj] -= tb.t.At(i, j) * delta
		}
		tb.x[j] = nv
	}
	if lb == ub {
		tb.upper[j] = false
	}
}

// solve runs the bounded dual simplex until the basis is primal feasible.
// The context is checked every few pivots and the iteration count is
// capped, so a relaxation always returns.
func (tb *tableau) solve(ctx context.Context, maxIter int, primalTol float64) error {
	bland := false
	stalled := 0
	for it := 0; ; it++ {
		if it%16 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if it >= maxIter {
			return errIterLimit
		}
		r, toUpper := tb.leaving(bland, primalTol)
		if r < 0 {
			return nil
		}
		q, ratio := tb.entering(r, toUpper, bland)
		if q < 0 {
			return errLPInfeasible
		}
		tb.pivot(r, q, toUpper)
		if ratio <= dualTol {
			stalled++
			if stalled >= degenerateRun {
				bland = true
			}
		} else {
			stalled = 0
		}
	}
}

// leaving picks the basic row with the largest bound violation, or the
// violated basic column of smallest index under the smallest-index rule.
func (tb *tableau) leaving(bland bool, tol float64) (int, bool) {
	r, toUpper := -1, false
	worst := 0.0
	for i, j := range tb.basis {
		var viol float64
		up := false
		if v := tb.lb[j] - tb.x[j]; v > tol {
			viol = v
		} else if v := tb.x[j] - tb.ub[j]; v > tol {
			viol, up = v, true
		} else {
			continue
		}
		if bland {
			if r < 0 || j < tb.basis[r] {
				r, toUpper = i, up
			}
			continue
		}
		if viol > worst {
			r, toUpper, worst = i, up, viol
		}
	}
	return r, toUpper
}

// entering runs the dual ratio test on row r.
func (tb *tableau) entering(r int, toUpper, bland bool) (int, float64) {
	alpha := tb.t.RawRowView(r)
	q := -1
	best := math.Inf(1)
	bestAbs := 0.0
	for j, a := range alpha {
		if tb.row[j] >= 0 || tb.lb[j] == tb.ub[j] || math.Abs(a) < pivotTol {
			continue
		}
		// the leaving value must move back towards its violated bound
		increases := !tb.upper[j]
		if toUpper == increases {
			if a <= 0 {
				continue
			}
		} else if a >= 0 {
			continue
		}
		ratio := math.Abs(tb.d[j] / a)
		switch {
		case ratio < best-1e-12:
			q, best, bestAbs = j, ratio, math.Abs(a)
		case ratio <= best+1e-12 && !bland && math.Abs(a) > bestAbs:
			q, bestAbs = j, math.Abs(a)
		}
	}
	return q, best
}

// pivot brings column q into the basis in row r. The leaving column ends on
// the bound it violated.
func (tb *tableau) pivot(r, q int, toUpper bool) {
	leave := tb.basis[r]
	bound := tb.lb[leave]
	if toUpper {
		bound = tb.ub[leave]
	}
	alpha := tb.t.RawRowView(r)
	aq := alpha[q]

	step := (tb.x[leave] - bound) / aq
	for i, bj := range tb.basis {
		tb.x[bj] -= tb.t.At(i, q) * step
	}
	tb.x[q] += step
	tb.x[leave] = bound

	theta := tb.d[q] / aq
	floats.AddScaled(tb.d, -theta, alpha)
	tb.d[q] = 0

	floats.Scale(1/aq, alpha)
	for i := 0; i < tb.p.m; i++ {
		if i == r {
			continue
		}
		if f := tb.t.At(i, q); f != 0 {
			floats.AddScaled(tb.t.RawRowView(i), -f, alpha)
		}
	}

	tb.basis[r] = q
	tb.row[q] = r
	tb.row[leave] = -1
	tb.upper[leave] = toUpper
	tb.upper[q] = false
	tb.pivots++
}
