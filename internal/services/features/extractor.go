package features

import (
	"math"

	"DecisionCore/internal/domain/models"
)

// Returns extracts the per-observation return series in buffer order.
func Returns(obs []models.MarketObservation) []float64 {
	if len(obs) == 0 {
		return nil
	}
	out := make([]float64, len(obs))
	for i := range obs {
		out[i] = obs[i].Return
	}
	return out
}

// RealizedVariance computes the sample variance of the last window returns.
// Returns ok=false if there are fewer than window values or window < 2.
func RealizedVariance(returns []float64, window int) (float64, bool) {
	if window < 2 || len(returns) < window {
		return 0, false
	}
	tail := returns[len(returns)-window:]
	mean := Mean(tail)
	ss := 0.0
	for _, r := range tail {
		d := r - mean
		ss += d * d
	}
	return ss / float64(window-1), true
}

// RealizedVolatility is sqrt of RealizedVariance scaled by bars per period.
func RealizedVolatility(returns []float64, window int, barsPerPeriod float64) float64 {
	v, ok := RealizedVariance(returns, window)
	if !ok {
		return 0
	}
	return math.Sqrt(v * barsPerPeriod)
}

func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
