package baseline

import "errors"

// ErrUnknownTier is returned when a tier has no smoothing fraction.
var ErrUnknownTier = errors.New("unknown confidence tier")
