package vdot

import "errors"

// Sentinel errors for fitness-index conversions.
var (
	ErrInvalidEffort   = errors.New("distance and time must be positive")
	ErrIndexOutOfRange = errors.New("fitness index out of range")
	ErrNoConvergence   = errors.New("time search did not converge")
)
