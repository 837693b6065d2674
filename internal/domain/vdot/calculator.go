// Package vdot converts between race performances and the fitness index
// (VDOT) using the Daniels/Gilbert regressions.
package vdot

import (
	"fmt"
	"math"
)

// Valid index domain for stored or surfaced values.
const (
	MinIndex = 15.0
	MaxIndex = 85.0
)

// Regression constants. These are part of the published model, not tuning.
const (
	fractionBase   = 0.8
	fractionA      = 0.1894393
	fractionARate  = -0.012778
	fractionB      = 0.2989558
	fractionBRate  = -0.1932605
	costIntercept  = -4.60
	costLinear     = 0.182258
	costQuadratic  = 0.000104
	metersPerMile  = 1609.344
	maxIterations  = 50
	indexTolerance = 1e-4
)

// Distance is a standard racing distance.
type Distance struct {
	Name   string  `json:"name"`
	Meters float64 `json:"meters"`
}

// StandardDistances are the distances predictions are produced for.
var StandardDistances = []Distance{
	{Name: "mile", Meters: 1609.344},
	{Name: "5k", Meters: 5000},
	{Name: "10k", Meters: 10000},
	{Name: "15k", Meters: 15000},
	{Name: "half_marathon", Meters: 21097.5},
	{Name: "marathon", Meters: 42195},
}

// SustainedFraction is the share of aerobic capacity a runner can hold for
// the given number of minutes.
func SustainedFraction(minutes float64) float64 {
	return fractionBase +
		fractionA*math.Exp(fractionARate*minutes) +
		fractionB*math.Exp(fractionBRate*minutes)
}

// OxygenCost returns the oxygen cost (ml/kg/min) of running at v m/min.
func OxygenCost(metersPerMinute float64) float64 {
	return costIntercept + costLinear*metersPerMinute + costQuadratic*metersPerMinute*metersPerMinute
}

// VelocityForCost inverts OxygenCost with the positive quadratic root.
func VelocityForCost(cost float64) float64 {
	disc := costLinear*costLinear + 4*costQuadratic*(cost-costIntercept)
	if disc < 0 {
		return 0
	}
	return (-costLinear + math.Sqrt(disc)) / (2 * costQuadratic)
}

// ToIndex returns the fitness index implied by covering distanceMeters in
// seconds. The result is not range-checked; callers apply Validate.
func ToIndex(distanceMeters, seconds float64) (float64, error) {
	if !positive(distanceMeters) || !positive(seconds) {
		return 0, fmt.Errorf("%w: distance=%v time=%v", ErrInvalidEffort, distanceMeters, seconds)
	}
	minutes := seconds / 60
	return OxygenCost(distanceMeters/minutes) / SustainedFraction(minutes), nil
}

// ToTime returns the finish time in seconds that corresponds to index over
// distanceMeters. It bisects on [d/10, 2d] seconds.
func ToTime(index, distanceMeters float64) (float64, error) {
	if err := Validate(index); err != nil {
		return 0, err
	}
	if !positive(distanceMeters) {
		return 0, fmt.Errorf("%w: distance=%v", ErrInvalidEffort, distanceMeters)
	}

	lo, hi := distanceMeters/10, distanceMeters*2
	for range maxIterations {
		mid := (lo + hi) / 2
		got, err := ToIndex(distanceMeters, mid)
		if err != nil {
			return 0, err
		}
		diff := got - index
		if math.Abs(diff) < indexTolerance {
			return mid, nil
		}
		// Slower times imply lower indices.
		if diff > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}

	mid := (lo + hi) / 2
	if got, _ := ToIndex(distanceMeters, mid); math.Abs(got-index) > 0.1 {
		return 0, fmt.Errorf("%w: index=%.2f distance=%.0f", ErrNoConvergence, index, distanceMeters)
	}
	return mid, nil
}

// Validate reports ErrIndexOutOfRange unless index lies in [MinIndex, MaxIndex].
func Validate(index float64) error {
	return ValidateRange(index, MinIndex, MaxIndex)
}

// ValidateRange reports ErrIndexOutOfRange unless index lies in [lo, hi].
func ValidateRange(index, lo, hi float64) error {
	if math.IsNaN(index) || index < lo || index > hi {
		return fmt.Errorf("%w: %.2f not in [%.0f, %.0f]", ErrIndexOutOfRange, index, lo, hi)
	}
	return nil
}

// Clamp limits index to [MinIndex, MaxIndex].
func Clamp(index float64) float64 {
	return math.Max(MinIndex, math.Min(MaxIndex, index))
}

// Label names the performance band of an index.
func Label(index float64) string {
	switch {
	case index < 30:
		return "novice"
	case index < 40:
		return "recreational"
	case index < 50:
		return "intermediate"
	case index < 60:
		return "advanced"
	case index < 70:
		return "competitive"
	default:
		return "elite"
	}
}

// PaceSecondsPerMile converts a velocity in m/min into seconds per mile.
func PaceSecondsPerMile(metersPerMinute float64) float64 {
	if metersPerMinute <= 0 {
		return 0
	}
	return metersPerMile / metersPerMinute * 60
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
