package load

import "errors"

// ErrInvalidWindow is returned when a window ends before it starts.
var ErrInvalidWindow = errors.New("window end precedes start")
