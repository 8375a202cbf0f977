package engine

import (
	"math"

	"DecisionCore/internal/domain/models"
	"DecisionCore/internal/services/features"
)

const varianceFloor = 1e-12

const (
	ReasonFlat                = "flat_direction"
	ReasonInsufficientHistory = "insufficient_history"
	ReasonDegenerateVariance  = "degenerate_variance"
	ReasonUneconomic          = "uneconomic"
)

// SizeResult is a signed fraction of capital, zero with a Reason when no
// position is justified.
type SizeResult struct {
	Size              float64
	ExpectedNetReturn float64
	Variance          float64
	Reason            string
}

// Sizer applies fractional Kelly with a hard cap.
type Sizer struct {
	kelly    float64
	cap      float64
	cost     float64
	lookback int
}

func NewSizer(cfg Config) *Sizer {
	return &Sizer{
		kelly:    cfg.KellyFraction,
		cap:      cfg.MaxPosition,
		cost:     cfg.TransactionCost,
		lookback: cfg.VolLookback,
	}
}

// Size computes the position for h given returns oldest first.
func (s *Sizer) Size(h models.TradingHypothesis, returns []float64) SizeResult {
	if h.Direction == models.Flat {
		return SizeResult{Reason: ReasonFlat}
	}
	variance, ok := features.RealizedVariance(returns, s.lookback)
	if !ok {
		return SizeResult{Reason: ReasonInsufficientHistory}
	}
	if variance <= varianceFloor {
		return SizeResult{Variance: variance, Reason: ReasonDegenerateVariance}
	}
	er := h.ExpectedReturn*h.Confidence - 0.5*variance - s.cost
	res := SizeResult{ExpectedNetReturn: er, Variance: variance}
	if er <= 0 {
		res.Reason = ReasonUneconomic
		return res
	}
	res.Size = h.Direction.Sign() * s.kellySize(er, variance)
	return res
}

func (s *Sizer) kellySize(er, variance float64) float64 {
	return math.Min(er/variance*s.kelly, s.cap)
}
