package normalize

import "errors"

// ErrUnknownEffortLevel is returned for effort levels outside the known set.
var ErrUnknownEffortLevel = errors.New("unknown effort level")
