package hypotheses

import (
	"context"
	"math"
	"time"

	"DecisionCore/internal/domain/models"
	domsvc "DecisionCore/internal/domain/service"
)

const (
	NameLong       = "long"
	NameShort      = "short"
	NameFlat       = "flat"
	NameRangeBound = "range_bound"
	NameFundingArb = "funding_arb"
)

// Config tunes the rule set.
type Config struct {
	RangeSlopeThreshold float64 // |slope| below this adds range_bound
	FundingThreshold    float64 // |funding| at or above this adds funding_arb
	BaseConfidence      float64
	ReturnScale         float64 // expected per-step return of a trend bet
	Horizon             time.Duration
}

// DefaultConfig mirrors the reference tuning.
func DefaultConfig() Config {
	return Config{
		RangeSlopeThreshold: 0.05,
		FundingThreshold:    0.0003,
		BaseConfidence:      0.6,
		ReturnScale:         0.01,
		Horizon:             time.Hour,
	}
}

// Generator derives the candidate set from the current observation.
// long, short and flat are always present so the set only changes when a
// conditional rule switches on or off.
type Generator struct {
	cfg Config
}

func NewGenerator(cfg Config) *Generator {
	if cfg.Horizon <= 0 {
		cfg.Horizon = time.Hour
	}
	cfg.BaseConfidence = clamp01(cfg.BaseConfidence)
	return &Generator{cfg: cfg}
}

func (g *Generator) ActiveHypotheses(_ context.Context, _ string, obs *models.MarketObservation) ([]models.TradingHypothesis, error) {
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	risk := g.risk(obs)
	trend := math.Tanh(obs.Slope)
	trendReturn := g.cfg.ReturnScale * (1 + math.Abs(obs.Slope))

	out := []models.TradingHypothesis{
		{
			Name:           NameLong,
			Direction:      models.Long,
			ExpectedReturn: trendReturn,
			ExpectedRisk:   risk,
			Confidence:     clamp01(g.cfg.BaseConfidence + 0.25*trend),
			Horizon:        g.cfg.Horizon,
		},
		{
			Name:           NameShort,
			Direction:      models.Short,
			ExpectedReturn: trendReturn,
			ExpectedRisk:   risk,
			Confidence:     clamp01(g.cfg.BaseConfidence - 0.25*trend),
			Horizon:        g.cfg.Horizon,
		},
		{
			Name:       NameFlat,
			Direction:  models.Flat,
			Confidence: g.cfg.BaseConfidence,
			Horizon:    g.cfg.Horizon,
		},
	}

	if math.Abs(obs.Slope) < g.cfg.RangeSlopeThreshold {
		// fade the last move
		out = append(out, models.TradingHypothesis{
			Name:           NameRangeBound,
			Direction:      directionOf(-obs.Return),
			ExpectedReturn: 0.5 * g.cfg.ReturnScale,
			ExpectedRisk:   risk,
			Confidence:     g.cfg.BaseConfidence,
			Horizon:        g.cfg.Horizon,
		})
	}

	if g.cfg.FundingThreshold > 0 && math.Abs(obs.FundingRate) >= g.cfg.FundingThreshold {
		out = append(out, models.TradingHypothesis{
			Name:           NameFundingArb,
			Direction:      directionOf(-obs.FundingRate),
			ExpectedReturn: math.Abs(obs.FundingRate) + 0.5*g.cfg.ReturnScale,
			ExpectedRisk:   risk,
			Confidence:     g.cfg.BaseConfidence,
			Horizon:        g.cfg.Horizon,
		})
	}
	return out, nil
}

// risk is the observation's volatility, falling back to the return scale.
func (g *Generator) risk(obs *models.MarketObservation) float64 {
	if v := math.Exp(obs.LogVolatility); v > 0 && !math.IsInf(v, 0) {
		return v
	}
	return g.cfg.ReturnScale
}

func directionOf(x float64) models.Direction {
	switch {
	case x > 0:
		return models.Long
	case x < 0:
		return models.Short
	default:
		return models.Flat
	}
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

var _ domsvc.HypothesisProvider = (*Generator)(nil)
