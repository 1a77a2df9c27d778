package api

import (
	"sort"

	"github.com/samber/lo"

	"listing-radar/internal/scoring"
	"listing-radar/internal/storage"
)

// Market moods by average velocity in percent per hour.
const (
	MoodHot    = "hot"
	MoodActive = "active"
	MoodCalm   = "calm"
)

const unscored = "Unscored"

// Pulse is the headline view of the active market.
type Pulse struct {
	Active         int            `json:"active"`
	HiddenGems     int            `json:"hidden_gems"`
	GoodDeals      int            `json:"good_deals"`
	Speculative    int            `json:"speculative"`
	Labels         map[string]int `json:"labels"`
	AvgVelocityPct float64        `json:"avg_velocity_pct"`
	Mood           string         `json:"mood"`
	Categories     []string       `json:"categories"`
	Brands         []string       `json:"brands"`
}

// BuildPulse aggregates label counts, mean velocity and filter values.
func BuildPulse(listings []storage.Listing) Pulse {
	labels := lo.CountValuesBy(listings, func(l storage.Listing) string {
		if l.Evaluation == nil {
			return unscored
		}
		return l.Evaluation.Label
	})

	var avg float64
	if len(listings) > 0 {
		avg = lo.SumBy(listings, func(l storage.Listing) float64 { return l.Velocity }) / float64(len(listings)) * 100
	}

	return Pulse{
		Active:         len(listings),
		HiddenGems:     labels[string(scoring.LabelHiddenGem)],
		GoodDeals:      labels[string(scoring.LabelGoodDeal)],
		Speculative:    labels[string(scoring.LabelSpeculative)],
		Labels:         labels,
		AvgVelocityPct: avg,
		Mood:           Mood(avg),
		Categories:     distinct(listings, func(l storage.Listing) string { return l.Category }),
		Brands:         distinct(listings, func(l storage.Listing) string { return l.Brand }),
	}
}

// Mood classifies the market by average velocity in percent per hour.
func Mood(avgVelocityPct float64) string {
	switch {
	case avgVelocityPct > 1.0:
		return MoodHot
	case avgVelocityPct > 0.5:
		return MoodActive
	default:
		return MoodCalm
	}
}

func distinct(listings []storage.Listing, key func(storage.Listing) string) []string {
	out := lo.Uniq(lo.Map(listings, func(l storage.Listing, _ int) string { return key(l) }))
	sort.Strings(out)
	return out
}
