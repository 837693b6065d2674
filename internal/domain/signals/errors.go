package signals

import "errors"

// Sentinel errors reported for failed generators.
var (
	ErrGeneratorPanic   = errors.New("signal generator panicked")
	ErrGeneratorTimeout = errors.New("signal generator timed out")
)
