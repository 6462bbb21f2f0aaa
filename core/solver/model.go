package solver

import (
	"context"
	"errors"
)

// Var is a handle to a decision variable.
type Var int

// Sense is the direction of a linear constraint.
type Sense int

const (
	LessEq Sense = iota
	Equal
	GreaterEq
)

// Term is one coefficient of a linear expression.
type Term struct {
	Var  Var
	Coef float64
}

// Status reports the outcome of Optimize.
type Status int

const (
	StatusUnknown Status = iota
	StatusOptimal
	StatusInfeasible
	// StatusNodeLimit means the search stopped early; the best solution found
	// so far is available but optimality is not proven.
	StatusNodeLimit
	// StatusTimeLimit is StatusNodeLimit for the time limit.
	StatusTimeLimit
	// StatusFeasible means the search finished but skipped a subtree it could
	// not solve, so the solution is not proven optimal.
	StatusFeasible
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusNodeLimit:
		return "node_limit"
	case StatusTimeLimit:
		return "time_limit"
	case StatusFeasible:
		return "feasible"
	default:
		return "unknown"
	}
}

var (
	// ErrInfeasible is returned by Optimize when no integer solution exists.
	ErrInfeasible = errors.New("solver: problem is infeasible")
	// ErrNoSolution is returned when the search stopped before any integer
	// solution was found.
	ErrNoSolution = errors.New("solver: search stopped before finding a solution")
)

// Model is the interface the site-selection model is written against. Any
// MILP backend exposing these operations can be substituted.
type Model interface {
	AddBinary(name string) Var
	AddConstraint(terms []Term, sense Sense, rhs float64)
	SetObjective(terms []Term, maximize bool)
	Optimize(ctx context.Context) (Status, error)
	Value(v Var) float64
	ObjectiveValue() float64
	NumVars() int
}

// Starter is implemented by backends that accept a starting solution, one
// value per variable in AddBinary order.
type Starter interface {
	SetStart(values []float64) error
}
