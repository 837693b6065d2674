package vdot

// Fractions of the index targeted by each training zone.
const (
	easyLowFraction    = 0.59
	easyHighFraction   = 0.74
	marathonFraction   = 0.80
	steadyFraction     = 0.83
	thresholdFraction  = 0.86
	intervalFraction   = 0.98
	repetitionFraction = 1.05
)

// PaceRange is a span of paces in seconds per mile; Fast < Slow.
type PaceRange struct {
	Fast float64 `json:"fast_seconds_per_mile"`
	Slow float64 `json:"slow_seconds_per_mile"`
}

// PaceZones are training paces in seconds per mile.
type PaceZones struct {
	Index      float64   `json:"fitness_index"`
	Easy       PaceRange `json:"easy"`
	Marathon   float64   `json:"marathon"`
	Steady     float64   `json:"steady"`
	Threshold  float64   `json:"threshold"`
	Interval   float64   `json:"interval"`
	Repetition float64   `json:"repetition"`
}

// ToPaceZones derives training paces from an index. The index must already
// be inside [MinIndex, MaxIndex].
func ToPaceZones(index float64) (PaceZones, error) {
	if err := Validate(index); err != nil {
		return PaceZones{}, err
	}
	return PaceZones{
		Index: index,
		Easy: PaceRange{
			Fast: PaceAtFraction(index, easyHighFraction),
			Slow: PaceAtFraction(index, easyLowFraction),
		},
		Marathon:   PaceAtFraction(index, marathonFraction),
		Steady:     PaceAtFraction(index, steadyFraction),
		Threshold:  PaceAtFraction(index, thresholdFraction),
		Interval:   PaceAtFraction(index, intervalFraction),
		Repetition: PaceAtFraction(index, repetitionFraction),
	}, nil
}

// PaceAtFraction returns the pace in seconds per mile whose oxygen cost is
// fraction × index.
func PaceAtFraction(index, fraction float64) float64 {
	return PaceSecondsPerMile(VelocityForCost(index * fraction))
}

// ThresholdPace is the threshold-zone pace for index in seconds per mile.
func ThresholdPace(index float64) float64 {
	return PaceAtFraction(index, thresholdFraction)
}
