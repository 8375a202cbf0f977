package models

import "time"

// Direction of a hypothesis: +1 long, -1 short, 0 stay out.
type Direction int

const (
	Short Direction = -1
	Flat  Direction = 0
	Long  Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Sign returns the direction as a float multiplier.
func (d Direction) Sign() float64 { return float64(d) }

// TradingHypothesis is a candidate action supplied from outside the engine.
type TradingHypothesis struct {
	Name           string        `json:"name"`
	Direction      Direction     `json:"direction"`
	ExpectedReturn float64       `json:"expected_return"`
	ExpectedRisk   float64       `json:"expected_risk"`
	Confidence     float64       `json:"confidence"` // [0, 1]
	Horizon        time.Duration `json:"horizon"`
}
