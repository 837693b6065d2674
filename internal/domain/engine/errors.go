package engine

import "errors"

// ErrMissingAsOf is returned when evidence carries no as-of instant.
var ErrMissingAsOf = errors.New("evidence has no as-of time")
