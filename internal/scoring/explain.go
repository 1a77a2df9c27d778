package scoring

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"listing-radar/internal/taxonomy"
)

// Explain renders a one-sentence justification from the same signals and
// thresholds used for scoring. It returns "" when nothing is notable.
func (s *Scorer) Explain(comp Components, tier taxonomy.Tier, flags []Flag) string {
	reasons := make([]string, 0, 3)

	switch {
	case comp.Price > s.cal.StrongPrice:
		reasons = append(reasons, "price is excellent")
	case comp.Price > s.cal.FairPrice:
		reasons = append(reasons, "price is reasonable")
	}

	switch tier {
	case taxonomy.Tier1:
		reasons = append(reasons, "premium brand")
	case taxonomy.TierUnknown:
		reasons = append(reasons, "unverified brand")
	}

	if HasFlag(flags, FlagPanicSell) {
		reasons = append(reasons, "abrupt price drop")
	}

	if len(reasons) == 0 {
		return ""
	}
	sentence := strings.Join(reasons, ", ")
	r, size := utf8.DecodeRuneInString(sentence)
	return string(unicode.ToUpper(r)) + sentence[size:] + "."
}
