package scoring

import (
	"math"

	"listing-radar/internal/taxonomy"
)

// maxExpArg is the largest argument math.Exp accepts without overflowing.
var maxExpArg = math.Log(math.MaxFloat64)

// Input carries the signals the scorer combines.
type Input struct {
	Z             float64
	Tier          taxonomy.Tier
	HoursOnMarket float64
	Velocity      float64
}

// Components are the pre-penalty parts of a score.
type Components struct {
	Price     float64 `json:"price"`
	Brand     float64 `json:"brand"`
	Freshness float64 `json:"freshness"`
}

// Total sums the components.
func (c Components) Total() float64 {
	return c.Price + c.Brand + c.Freshness
}

// Outcome is the full result of scoring one listing.
type Outcome struct {
	Score       int        `json:"score"`
	Label       Label      `json:"label"`
	Flags       []Flag     `json:"flags"`
	Components  Components `json:"components"`
	Explanation string     `json:"explanation"`
}

// Scorer turns signals into a bounded score, risk flags and a label.
type Scorer struct {
	cal    Calibration
	risks  []RiskRule
	labels []LabelRule
}

// NewScorer builds a Scorer around a calibration.
func NewScorer(cal Calibration) *Scorer {
	return &Scorer{
		cal:    cal,
		risks:  riskRules(cal),
		labels: labelRules(cal),
	}
}

// Calibration returns the constants in use.
func (s *Scorer) Calibration() Calibration {
	return s.cal
}

// PriceComponent maps a modified z-score onto [0, PriceWeight] with a
// logistic curve over -z. Overflow clamps instead of failing.
func (s *Scorer) PriceComponent(z float64) float64 {
	if math.IsNaN(z) {
		return 0
	}
	x := -z
	arg := -s.cal.SigmoidSlope * (x - s.cal.SigmoidCenter)
	if arg > maxExpArg || math.IsInf(x, 0) {
		if x > s.cal.SigmoidCenter {
			return s.cal.PriceWeight
		}
		return 0
	}
	return s.cal.PriceWeight / (1 + math.Exp(arg))
}

// BrandComponent rewards established brands.
func (s *Scorer) BrandComponent(tier taxonomy.Tier) float64 {
	switch tier {
	case taxonomy.Tier1:
		return s.cal.Tier1Points
	case taxonomy.Tier2:
		return s.cal.Tier2Points
	default:
		return 0
	}
}

// FreshnessComponent rewards new listings and moderate, steady price decay.
func (s *Scorer) FreshnessComponent(hours, velocity float64) float64 {
	var points float64
	switch {
	case hours < s.cal.FreshHours:
		points += s.cal.FreshBonus
	case hours > s.cal.StaleHours:
		points -= s.cal.StalePenalty
	}
	if velocity > s.cal.VelocityBandMin && velocity < s.cal.VelocityBandMax {
		points += s.cal.VelocityBonus
	}
	return points
}

// Components computes the three score parts for in.
func (s *Scorer) Components(in Input) Components {
	return Components{
		Price:     s.PriceComponent(in.Z),
		Brand:     s.BrandComponent(in.Tier),
		Freshness: s.FreshnessComponent(in.HoursOnMarket, in.Velocity),
	}
}

// Score runs the full pipeline: components, risk rules, clamp, label, explanation.
func (s *Scorer) Score(in Input) Outcome {
	comp := s.Components(in)
	total := comp.Total()

	flags := make([]Flag, 0, len(s.risks))
	for _, rule := range s.risks {
		if !rule.Triggered(in, comp) {
			continue
		}
		flags = append(flags, rule.Flag)
		if rule.Adjust != nil {
			total = rule.Adjust(total)
		}
	}

	score := int(math.Max(0, math.Min(100, total)))
	return Outcome{
		Score:       score,
		Label:       s.Label(score, flags),
		Flags:       flags,
		Components:  comp,
		Explanation: s.Explain(comp, in.Tier, flags),
	}
}
