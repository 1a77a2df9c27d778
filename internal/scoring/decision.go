package scoring

// Label is the final verdict for a listing.
type Label string

const (
	LabelHiddenGem   Label = "Hidden Gem"
	LabelSpeculative Label = "Speculative"
	LabelGoodDeal    Label = "Good Deal"
	LabelToxic       Label = "Toxic"
	LabelNeutral     Label = "Neutral"
)

// Labels lists every label from most to least attractive.
var Labels = []Label{LabelHiddenGem, LabelSpeculative, LabelGoodDeal, LabelNeutral, LabelToxic}

// LabelRule is one row of the decision table.
type LabelRule struct {
	Label   Label
	Matches func(score int, flagged bool) bool
}

func labelRules(cal Calibration) []LabelRule {
	return []LabelRule{
		{LabelHiddenGem, func(score int, flagged bool) bool { return score >= cal.HiddenGemMin && !flagged }},
		{LabelSpeculative, func(score int, flagged bool) bool { return score >= cal.SpeculativeMin && flagged }},
		{LabelGoodDeal, func(score int, _ bool) bool { return score >= cal.GoodDealMin }},
		{LabelToxic, func(score int, flagged bool) bool { return score < cal.ToxicBelow && flagged }},
		{LabelNeutral, func(int, bool) bool { return true }},
	}
}

// DecisionTable exposes the label rules in priority order.
func (s *Scorer) DecisionTable() []LabelRule {
	out := make([]LabelRule, len(s.labels))
	copy(out, s.labels)
	return out
}

// Label returns the first label whose rule matches.
func (s *Scorer) Label(score int, flags []Flag) Label {
	flagged := len(flags) > 0
	for _, rule := range s.labels {
		if rule.Matches(score, flagged) {
			return rule.Label
		}
	}
	return LabelNeutral
}

// Actionable reports whether a label is worth surfacing to a buyer.
func (l Label) Actionable() bool {
	switch l {
	case LabelHiddenGem, LabelGoodDeal, LabelSpeculative:
		return true
	}
	return false
}
