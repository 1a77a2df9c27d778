package scoring

import (
	"math"

	"listing-radar/internal/taxonomy"
)

// Flag names a risk detected on a listing.
type Flag string

const (
	FlagExtremeOutlier Flag = "EXTREME_OUTLIER"
	FlagPanicSell      Flag = "PANIC_SELL"
	FlagBrandMismatch  Flag = "BRAND_MISMATCH"
)

// RiskRule is one entry of the ordered risk table. Adjust, when set, is
// applied to the running total after the rule triggers.
type RiskRule struct {
	Flag      Flag
	Triggered func(in Input, comp Components) bool
	Adjust    func(total float64) float64
}

func riskRules(cal Calibration) []RiskRule {
	return []RiskRule{
		{
			Flag: FlagExtremeOutlier,
			Triggered: func(in Input, _ Components) bool {
				return in.Z < cal.CriticalZ
			},
			Adjust: func(total float64) float64 {
				return math.Min(total, cal.OutlierCap)
			},
		},
		{
			Flag: FlagPanicSell,
			Triggered: func(in Input, _ Components) bool {
				return in.Velocity > cal.PanicVelocity
			},
		},
		{
			Flag: FlagBrandMismatch,
			Triggered: func(in Input, comp Components) bool {
				return in.Tier == taxonomy.TierUnknown && comp.Price > cal.StrongPrice
			},
			Adjust: func(total float64) float64 {
				return total - cal.MismatchPenalty
			},
		},
	}
}

// RiskRules exposes the risk table in evaluation order.
func (s *Scorer) RiskRules() []RiskRule {
	out := make([]RiskRule, len(s.risks))
	copy(out, s.risks)
	return out
}

// HasFlag reports whether flags contains f.
func HasFlag(flags []Flag, f Flag) bool {
	for _, candidate := range flags {
		if candidate == f {
			return true
		}
	}
	return false
}
