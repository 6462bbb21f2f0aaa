// Package solver provides a small solver-agnostic interface for binary
// integer programs and a pure-Go backend.
//
// Variables are typed handles returned by AddBinary; callers keep their own
// typed indexes (for example a [segment][tier] table) and never recover
// indices from variable names. Names are labels for diagnostics only.
//
// The default backend, BranchAndBound, explores LP relaxations best bound
// first, diving into one child of every branched node. Relaxations are solved
// by a bounded dual simplex on gonum matrices that is warm started from the
// parent basis, checks the context while pivoting and caps its iterations.
// Node and time limits stop the search with the best solution found so far.
// Ties between equally good solutions are resolved by exploration order and
// must not be relied upon.
package solver
