package stats

import (
	"math"
	"sort"
)

const (
	// MADEpsilon replaces a zero median absolute deviation.
	MADEpsilon = 0.001
	// zScale calibrates MAD to a standard deviation under normality.
	zScale = 0.6745
)

// Robust is the median/MAD summary of a peer price sample.
type Robust struct {
	Median float64 `json:"median"`
	MAD    float64 `json:"mad"`
	N      int     `json:"n"`
}

// Compute summarises prices. It reports false when fewer than two samples exist.
// The input slice is not modified.
func Compute(prices []float64) (Robust, bool) {
	if len(prices) < 2 {
		return Robust{}, false
	}

	median := Median(prices)
	deviations := make([]float64, len(prices))
	for i, p := range prices {
		deviations[i] = math.Abs(p - median)
	}

	mad := Median(deviations)
	if mad == 0 {
		mad = MADEpsilon
	}

	return Robust{Median: median, MAD: mad, N: len(prices)}, true
}

// ModifiedZ returns the MAD-scaled deviation of v from the sample median.
func (r Robust) ModifiedZ(v float64) float64 {
	return zScale * (v - r.Median) / r.MAD
}

// Median returns the statistical median of values, or 0 for an empty slice.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
