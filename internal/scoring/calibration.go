package scoring

import "fmt"

// Calibration holds every tunable constant of the scorer. It is loaded from
// configuration; DefaultCalibration reproduces the reference tuning.
type Calibration struct {
	SigmoidCenter float64 `mapstructure:"sigmoid_center" json:"sigmoid_center"`
	SigmoidSlope  float64 `mapstructure:"sigmoid_slope" json:"sigmoid_slope"`
	PriceWeight   float64 `mapstructure:"price_weight" json:"price_weight"`

	Tier1Points float64 `mapstructure:"tier1_points" json:"tier1_points"`
	Tier2Points float64 `mapstructure:"tier2_points" json:"tier2_points"`

	FreshHours      float64 `mapstructure:"fresh_hours" json:"fresh_hours"`
	FreshBonus      float64 `mapstructure:"fresh_bonus" json:"fresh_bonus"`
	StaleHours      float64 `mapstructure:"stale_hours" json:"stale_hours"`
	StalePenalty    float64 `mapstructure:"stale_penalty" json:"stale_penalty"`
	VelocityBandMin float64 `mapstructure:"velocity_band_min" json:"velocity_band_min"`
	VelocityBandMax float64 `mapstructure:"velocity_band_max" json:"velocity_band_max"`
	VelocityBonus   float64 `mapstructure:"velocity_bonus" json:"velocity_bonus"`

	CriticalZ     float64 `mapstructure:"critical_z" json:"critical_z"`
	OutlierCap    float64 `mapstructure:"outlier_cap" json:"outlier_cap"`
	PanicVelocity float64 `mapstructure:"panic_velocity" json:"panic_velocity"`

	// StrongPrice is shared by the brand mismatch rule and the "excellent"
	// explanation; FairPrice drives the "reasonable" explanation.
	StrongPrice     float64 `mapstructure:"strong_price" json:"strong_price"`
	FairPrice       float64 `mapstructure:"fair_price" json:"fair_price"`
	MismatchPenalty float64 `mapstructure:"mismatch_penalty" json:"mismatch_penalty"`

	HiddenGemMin   int `mapstructure:"hidden_gem_min" json:"hidden_gem_min"`
	SpeculativeMin int `mapstructure:"speculative_min" json:"speculative_min"`
	GoodDealMin    int `mapstructure:"good_deal_min" json:"good_deal_min"`
	ToxicBelow     int `mapstructure:"toxic_below" json:"toxic_below"`
}

// DefaultCalibration returns the reference constants.
func DefaultCalibration() Calibration {
	return Calibration{
		SigmoidCenter: 2.0,
		SigmoidSlope:  2.5,
		PriceWeight:   50,

		Tier1Points: 30,
		Tier2Points: 15,

		FreshHours:      24,
		FreshBonus:      10,
		StaleHours:      720,
		StalePenalty:    10,
		VelocityBandMin: 0.001,
		VelocityBandMax: 0.05,
		VelocityBonus:   10,

		CriticalZ:     -4.5,
		OutlierCap:    40,
		PanicVelocity: 0.10,

		StrongPrice:     40,
		FairPrice:       25,
		MismatchPenalty: 20,

		HiddenGemMin:   85,
		SpeculativeMin: 80,
		GoodDealMin:    70,
		ToxicBelow:     40,
	}
}

// Validate rejects calibrations that would make scoring meaningless.
func (c Calibration) Validate() error {
	switch {
	case c.SigmoidSlope <= 0:
		return fmt.Errorf("calibration: sigmoid_slope must be positive")
	case c.PriceWeight <= 0:
		return fmt.Errorf("calibration: price_weight must be positive")
	case c.FreshHours >= c.StaleHours:
		return fmt.Errorf("calibration: fresh_hours must be below stale_hours")
	case c.VelocityBandMin >= c.VelocityBandMax:
		return fmt.Errorf("calibration: velocity band is empty")
	case c.VelocityBandMax > c.PanicVelocity:
		return fmt.Errorf("calibration: velocity band overlaps panic_velocity")
	case c.FairPrice >= c.StrongPrice:
		return fmt.Errorf("calibration: fair_price must be below strong_price")
	case c.CriticalZ >= 0:
		return fmt.Errorf("calibration: critical_z must be negative")
	case c.GoodDealMin > c.SpeculativeMin || c.SpeculativeMin > c.HiddenGemMin:
		return fmt.Errorf("calibration: label thresholds must satisfy good_deal <= speculative <= hidden_gem")
	}
	return nil
}
