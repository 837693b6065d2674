package segment

import "errors"

// Sentinel errors for best-segment search.
var (
	ErrInsufficientPoints = errors.New("insufficient stream points")
	ErrMismatchedStreams  = errors.New("stream arrays have different lengths")
	ErrNoQualifyingWindow = errors.New("no qualifying window")
	ErrWindowRejected     = errors.New("window rejected")
)
