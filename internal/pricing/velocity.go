package pricing

import (
	"math"
	"time"
)

// MinHoursOnMarket floors elapsed time so velocity stays finite.
const MinHoursOnMarket = 0.1

// History is the prior state of a tracked listing needed for velocity.
type History struct {
	FirstSeen    time.Time
	InitialPrice float64
}

// Velocity is the lifetime-average price decay of a listing. PerHour is
// positive when the price is falling.
type Velocity struct {
	HoursOnMarket float64
	PerHour       float64
	Defined       bool
}

// ComputeVelocity derives velocity from prior history. A nil history is a
// first sighting: zero hours and an undefined zero velocity.
func ComputeVelocity(history *History, current float64, now time.Time) Velocity {
	if history == nil {
		return Velocity{}
	}
	hours := math.Max(MinHoursOnMarket, now.Sub(history.FirstSeen).Hours())

	v := Velocity{HoursOnMarket: hours, Defined: true}
	if history.InitialPrice > 0 {
		v.PerHour = ((history.InitialPrice - current) / history.InitialPrice) / hours
	}
	return v
}
