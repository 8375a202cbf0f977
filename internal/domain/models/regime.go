package models

import (
	"fmt"
	"math"
	"time"
)

// RegimeProbabilityVector holds P(regime) for a symbol at a point in time.
// Stale is set when the vector is a fallback to the last known value.
type RegimeProbabilityVector struct {
	Symbol        string    `json:"symbol"`
	Timestamp     time.Time `json:"timestamp"`
	Probabilities []float64 `json:"probabilities"`
	Stale         bool      `json:"stale"`
}

const regimeSumTolerance = 1e-6

// Validate checks the vector is a probability distribution.
func (r *RegimeProbabilityVector) Validate() error {
	if r == nil || len(r.Probabilities) == 0 {
		return fmt.Errorf("empty regime vector")
	}
	sum := 0.0
	for i, p := range r.Probabilities {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return fmt.Errorf("regime probability %d invalid: %v", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > regimeSumTolerance {
		return fmt.Errorf("regime probabilities sum to %.8f", sum)
	}
	return nil
}

// Len returns the number of regimes.
func (r *RegimeProbabilityVector) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Probabilities)
}
