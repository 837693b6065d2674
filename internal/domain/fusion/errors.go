package fusion

import "errors"

// ErrNoSignals is returned when there is nothing to fuse.
var ErrNoSignals = errors.New("no signals to fuse")
