// Package coeffs holds every empirically tuned number the engine uses.
//
// The values are a reference baseline, not physiological truths. Keeping
// them in one struct lets a deployment swap them through configuration
// without touching the algorithms.
package coeffs

import (
	"errors"
	"fmt"
)

// ErrInvalidCoefficients is returned by Validate.
var ErrInvalidCoefficients = errors.New("invalid coefficients")

// Weather controls the heat/humidity pace penalty.
type Weather struct {
	ComfortTempF        float64 `koanf:"comfort_temp_f"`
	SecPerMilePerDegree float64 `koanf:"sec_per_mile_per_degree"`
	HumidityPivotPct    float64 `koanf:"humidity_pivot_pct"`
	DefaultHumidityPct  float64 `koanf:"default_humidity_pct"`
}

// Elevation controls the climbing pace penalty.
type Elevation struct {
	SecPerMilePer100FtPerMile float64 `koanf:"sec_per_mile_per_100ft_per_mile"`
}

// Normalizer groups the effort-normalization constants.
type Normalizer struct {
	Weather           Weather            `koanf:"weather"`
	Elevation         Elevation          `koanf:"elevation"`
	AdjustmentFloor   float64            `koanf:"adjustment_floor"`
	OverallFloor      float64            `koanf:"overall_floor"`
	EffortMultipliers map[string]float64 `koanf:"effort_multipliers"`
	EffortConfidence  map[string]float64 `koanf:"effort_confidence"`
	MissingContext    float64            `koanf:"missing_context_penalty"`
	HighThreshold     float64            `koanf:"high_threshold"`
	MediumThreshold   float64            `koanf:"medium_threshold"`
	TierWeights       map[string]float64 `koanf:"tier_weights"`
}

// Load groups the training-load constants.
type Load struct {
	ChronicDays          float64            `koanf:"chronic_days"`
	AcuteDays            float64            `koanf:"acute_days"`
	TRIMPFactor          float64            `koanf:"trimp_factor"`
	TRIMPMaleB           float64            `koanf:"trimp_male_b"`
	TRIMPFemaleB         float64            `koanf:"trimp_female_b"`
	PaceLoadPerMinute    float64            `koanf:"pace_load_per_minute"`
	IntensityMin         float64            `koanf:"intensity_min"`
	IntensityMax         float64            `koanf:"intensity_max"`
	TypeFactors          map[string]float64 `koanf:"type_factors"`
	RampWindowDays       int                `koanf:"ramp_window_days"`
	RampSafe             float64            `koanf:"ramp_safe"`
	RampCaution          float64            `koanf:"ramp_caution"`
	OptimalLow           float64            `koanf:"optimal_low"`
	OptimalHigh          float64            `koanf:"optimal_high"`
	LowConfidenceDays    int                `koanf:"low_confidence_days"`
	MediumConfidenceDays int                `koanf:"medium_confidence_days"`
}

// Segment groups the best-segment search constants.
type Segment struct {
	MinDistanceMiles float64 `koanf:"min_distance_miles"`
	MaxDistanceMiles float64 `koanf:"max_distance_miles"`
	StartStep        int     `koanf:"start_step"`
	EndStep          int     `koanf:"end_step"`
	MinSpan          int     `koanf:"min_span"`
	MinDuration      float64 `koanf:"min_duration_seconds"`
	MaxDuration      float64 `koanf:"max_duration_seconds"`
	MinPace          float64 `koanf:"min_pace"`
	MaxPace          float64 `koanf:"max_pace"`
	MinGPSIntegrity  float64 `koanf:"min_gps_integrity"`
	QualityFloor     float64 `koanf:"quality_floor"`
	MaxIndex         float64 `koanf:"max_index"`
}

// Signal holds the trust weight and evidence window for one generator.
type Signal struct {
	Weight       float64 `koanf:"weight"`
	LookbackDays int     `koanf:"lookback_days"`
	MinEvidence  int     `koanf:"min_evidence"`
}

// Signals groups the generator settings by signal name.
type Signals struct {
	Race            Signal  `koanf:"race"`
	BestEffort      Signal  `koanf:"best_effort"`
	HRCapacity      Signal  `koanf:"hr_capacity"`
	EfficiencyTrend Signal  `koanf:"efficiency_trend"`
	PaceProgression Signal  `koanf:"pace_progression"`
	TrainingPace    Signal  `koanf:"training_pace"`
	EasyFraction    float64 `koanf:"easy_fraction"`
	LapQuality      float64 `koanf:"lap_quality"`
}

// Fusion groups the blending and tiering constants.
type Fusion struct {
	AgreementScale  float64 `koanf:"agreement_scale"`
	ConfidenceShare float64 `koanf:"confidence_share"`
	HighScore       float64 `koanf:"high_score"`
	MediumScore     float64 `koanf:"medium_score"`
	HighMinSignals  int     `koanf:"high_min_signals"`
	LowAgreement    float64 `koanf:"low_agreement"`
	MinBand         float64 `koanf:"min_band"`
	MaxBand         float64 `koanf:"max_band"`
}

// Baseline groups the asymmetric smoothing fractions, keyed by tier.
type Baseline struct {
	Improve map[string]float64 `koanf:"improve"`
	Decline map[string]float64 `koanf:"decline"`
}

// Coefficients is the full tuning set.
type Coefficients struct {
	Normalizer Normalizer `koanf:"normalizer"`
	Load       Load       `koanf:"load"`
	Segment    Segment    `koanf:"segment"`
	Signals    Signals    `koanf:"signals"`
	Fusion     Fusion     `koanf:"fusion"`
	Baseline   Baseline   `koanf:"baseline"`
}

// Default returns the reference coefficient set.
func Default() Coefficients {
	return Coefficients{
		Normalizer: Normalizer{
			Weather: Weather{
				ComfortTempF:        60,
				SecPerMilePerDegree: 0.8,
				HumidityPivotPct:    50,
				DefaultHumidityPct:  50,
			},
			Elevation:       Elevation{SecPerMilePer100FtPerMile: 12},
			AdjustmentFloor: 0.85,
			OverallFloor:    0.82,
			EffortMultipliers: map[string]float64{
				"all_out":  1.00,
				"hard":     0.98,
				"moderate": 0.96,
				"easy":     0.93,
			},
			EffortConfidence: map[string]float64{
				"all_out":  1.00,
				"hard":     0.85,
				"moderate": 0.70,
				"easy":     0.55,
			},
			MissingContext:  0.05,
			HighThreshold:   0.85,
			MediumThreshold: 0.65,
			TierWeights: map[string]float64{
				"high":   1.0,
				"medium": 0.85,
				"low":    0.7,
			},
		},
		Load: Load{
			ChronicDays:       42,
			AcuteDays:         7,
			TRIMPFactor:       0.64,
			TRIMPMaleB:        1.92,
			TRIMPFemaleB:      1.67,
			PaceLoadPerMinute: 1.67,
			IntensityMin:      0.5,
			IntensityMax:      1.2,
			TypeFactors: map[string]float64{
				"recovery":  0.7,
				"easy":      1.0,
				"long":      1.1,
				"steady":    1.3,
				"tempo":     1.6,
				"threshold": 1.7,
				"interval":  1.9,
				"race":      2.0,
				"cross":     0.6,
				"other":     1.0,
			},
			RampWindowDays:       28,
			RampSafe:             5,
			RampCaution:          8,
			OptimalLow:           0.8,
			OptimalHigh:          1.2,
			LowConfidenceDays:    7,
			MediumConfidenceDays: 28,
		},
		Segment: Segment{
			MinDistanceMiles: 0.4,
			MaxDistanceMiles: 3.2,
			StartStep:        3,
			EndStep:          2,
			MinSpan:          6,
			MinDuration:      140,
			MaxDuration:      2100,
			MinPace:          180,
			MaxPace:          1200,
			MinGPSIntegrity:  0.45,
			QualityFloor:     0.5,
			MaxIndex:         90,
		},
		Signals: Signals{
			Race:            Signal{Weight: 1.00, LookbackDays: 365, MinEvidence: 1},
			BestEffort:      Signal{Weight: 0.85, LookbackDays: 120, MinEvidence: 1},
			HRCapacity:      Signal{Weight: 0.60, LookbackDays: 60, MinEvidence: 3},
			EfficiencyTrend: Signal{Weight: 0.45, LookbackDays: 84, MinEvidence: 3},
			PaceProgression: Signal{Weight: 0.55, LookbackDays: 90, MinEvidence: 4},
			TrainingPace:    Signal{Weight: 0.50, LookbackDays: 42, MinEvidence: 5},
			EasyFraction:    0.66,
			LapQuality:      0.6,
		},
		Fusion: Fusion{
			AgreementScale:  3,
			ConfidenceShare: 0.6,
			HighScore:       0.75,
			MediumScore:     0.55,
			HighMinSignals:  3,
			LowAgreement:    0.4,
			MinBand:         0.5,
			MaxBand:         4,
		},
		Baseline: Baseline{
			Improve: map[string]float64{"low": 0.60, "medium": 0.75, "high": 0.85},
			Decline: map[string]float64{"low": 0.20, "medium": 0.30, "high": 0.40},
		},
	}
}

// Validate checks the invariants the algorithms rely on.
func (c Coefficients) Validate() error {
	switch {
	case c.Load.ChronicDays <= c.Load.AcuteDays || c.Load.AcuteDays <= 0:
		return fmt.Errorf("%w: chronic_days must exceed acute_days > 0", ErrInvalidCoefficients)
	case c.Normalizer.OverallFloor <= 0 || c.Normalizer.OverallFloor > c.Normalizer.AdjustmentFloor:
		return fmt.Errorf("%w: overall_floor must be in (0, adjustment_floor]", ErrInvalidCoefficients)
	case c.Segment.MinDistanceMiles <= 0 || c.Segment.MaxDistanceMiles <= c.Segment.MinDistanceMiles:
		return fmt.Errorf("%w: segment distance bounds", ErrInvalidCoefficients)
	case c.Segment.StartStep < 1 || c.Segment.EndStep < 1 || c.Segment.MinSpan < 1:
		return fmt.Errorf("%w: segment strides must be positive", ErrInvalidCoefficients)
	case c.Fusion.AgreementScale <= 0:
		return fmt.Errorf("%w: agreement_scale must be positive", ErrInvalidCoefficients)
	}
	for _, tier := range []string{"low", "medium", "high"} {
		up, down := c.Baseline.Improve[tier], c.Baseline.Decline[tier]
		if up <= 0 || up >= 1 || down <= 0 || down >= 1 {
			return fmt.Errorf("%w: baseline fractions for %s must lie in (0,1)", ErrInvalidCoefficients, tier)
		}
		if down >= up {
			return fmt.Errorf("%w: decline fraction for %s must be below the improve fraction", ErrInvalidCoefficients, tier)
		}
	}
	return nil
}
