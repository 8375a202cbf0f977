package engine

import (
	"math"

	"DecisionCore/internal/domain/models"
)

// Likelihoods maps hypothesis name to a positive likelihood.
type Likelihoods map[string]float64

const (
	scaleFloor    = 1e-9
	nuFloor       = 2.1
	logLikBound   = 50.0
	agreeNudge    = 0.1
	oppositeNudge = -0.05

	rsiOversold       = 30.0
	rsiOverbought     = 70.0
	rsiBonus          = 0.1
	slopeBonus        = 0.05
	fundingBonus      = 0.05
	maxDirectionBonus = 0.2
)

// Evaluator scores hypotheses against one observation under a regime mixture.
type Evaluator struct {
	params []EmissionParams
}

func NewEvaluator(params []EmissionParams) *Evaluator {
	cp := make([]EmissionParams, len(params))
	copy(cp, params)
	return &Evaluator{params: cp}
}

// Evaluate returns the regime-weighted likelihood of each hypothesis. When the
// regime vector or emission parameters are unusable it returns 1.0 for every
// hypothesis and ok=false. Duplicate names keep the first occurrence.
func (e *Evaluator) Evaluate(obs models.MarketObservation, regime *models.RegimeProbabilityVector, hyps []models.TradingHypothesis) (Likelihoods, bool) {
	out := make(Likelihoods, len(hyps))
	if !e.usable(regime) {
		for _, h := range hyps {
			out[h.Name] = 1.0
		}
		return out, false
	}

	// direction independent part, computed once per regime
	base := make([]float64, len(e.params))
	for r, p := range e.params {
		base[r] = studentTLogPDF(obs.Return, p.ReturnMu, p.ReturnSigma, p.ReturnNu) +
			gaussianLogPDF(obs.LogVolatility, p.LogVolMu, p.LogVolSigma) +
			gaussianLogPDF(obs.Slope, p.SlopeMu, p.SlopeSigma) +
			gaussianLogPDF(obs.OrderBookImbalance, p.ImbalanceMu, p.ImbalanceSigma)
	}

	for _, h := range hyps {
		if _, seen := out[h.Name]; seen {
			continue
		}
		adj := imbalanceNudge(obs.OrderBookImbalance, h.Direction) + directionBonus(obs, h.Direction)
		l := 0.0
		for r, w := range regime.Probabilities {
			l += w * math.Exp(clamp(base[r]+adj, -logLikBound, logLikBound))
		}
		out[h.Name] = l
	}
	return out, true
}

func (e *Evaluator) usable(regime *models.RegimeProbabilityVector) bool {
	if len(e.params) == 0 || regime == nil {
		return false
	}
	if regime.Validate() != nil {
		return false
	}
	return regime.Len() == len(e.params)
}

func imbalanceNudge(imbalance float64, d models.Direction) float64 {
	s := sign(imbalance)
	if d == models.Flat || s == 0 {
		return 0
	}
	if s == d.Sign() {
		return agreeNudge
	}
	return oppositeNudge
}

// directionBonus rewards RSI extremes, slope agreement and contrarian funding.
func directionBonus(obs models.MarketObservation, d models.Direction) float64 {
	if d == models.Flat {
		return 0
	}
	b := 0.0
	if (d == models.Long && obs.RSI < rsiOversold) || (d == models.Short && obs.RSI > rsiOverbought) {
		b += rsiBonus
	}
	if sign(obs.Slope) == d.Sign() {
		b += slopeBonus
	}
	if s := sign(obs.FundingRate); s != 0 && s == -d.Sign() {
		b += fundingBonus
	}
	return math.Min(b, maxDirectionBonus)
}

func studentTLogPDF(x, mu, sigma, nu float64) float64 {
	sigma = math.Max(sigma, scaleFloor)
	nu = math.Max(nu, nuFloor)
	z := (x - mu) / sigma
	a, _ := math.Lgamma((nu + 1) / 2)
	b, _ := math.Lgamma(nu / 2)
	return a - b - 0.5*math.Log(nu*math.Pi) - math.Log(sigma) - (nu+1)/2*math.Log1p(z*z/nu)
}

func gaussianLogPDF(x, mu, sigma float64) float64 {
	sigma = math.Max(sigma, scaleFloor)
	z := (x - mu) / sigma
	return -0.5*math.Log(2*math.Pi) - math.Log(sigma) - 0.5*z*z
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
