package model

import "errors"

var (
	// ErrInvalidYear is returned when a forecast year is not in the supported set.
	ErrInvalidYear = errors.New("unsupported forecast year")

	// ErrInfeasible is returned when the site-selection model has no feasible plan,
	// e.g. when pinned stations cost more than the available budget.
	ErrInfeasible = errors.New("site selection infeasible")

	// ErrPrematureQuery is returned when results are requested before any
	// simulation has completed.
	ErrPrematureQuery = errors.New("simulation results requested before a run")

	// ErrDisconnectedSegment flags a segment without a path to any other segment.
	ErrDisconnectedSegment = errors.New("segment disconnected from corridor")

	// ErrMalformedSegment is returned for segment rows with missing or invalid fields.
	ErrMalformedSegment = errors.New("malformed segment")

	// ErrInvalidInput covers invalid request parameters such as a negative budget
	// or a pin on an unknown segment.
	ErrInvalidInput = errors.New("invalid input")
)
