package engine

import (
	"math"
	"testing"
	"time"

	"DecisionCore/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeHypotheses() []models.TradingHypothesis {
	return []models.TradingHypothesis{
		{Name: "long", Direction: models.Long, ExpectedReturn: 0.01, Confidence: 0.8},
		{Name: "short", Direction: models.Short, ExpectedReturn: 0.01, Confidence: 0.8},
		{Name: "flat", Direction: models.Flat},
	}
}

func uniformRegime(n int) *models.RegimeProbabilityVector {
	p := make([]float64, n)
	for i := range p {
		p[i] = 1 / float64(n)
	}
	return &models.RegimeProbabilityVector{Symbol: "BTCUSDT", Probabilities: p}
}

func neutralObservation(ts time.Time) models.MarketObservation {
	return models.MarketObservation{Symbol: "BTCUSDT", Timestamp: ts, RSI: 50, LogVolatility: -5.5}
}

func TestEvaluateColdStart(t *testing.T) {
	ev := NewEvaluator(DefaultEmission())
	obs := neutralObservation(time.Now())

	cases := map[string]*models.RegimeProbabilityVector{
		"nil regime":      nil,
		"count mismatch":  uniformRegime(2),
		"not a simplex":   {Probabilities: []float64{0.5, 0.5, 0.5}},
		"negative weight": {Probabilities: []float64{1.5, -0.5, 0}},
	}
	for name, regime := range cases {
		l, ok := ev.Evaluate(obs, regime, threeHypotheses())
		assert.False(t, ok, name)
		require.Len(t, l, 3, name)
		for h, v := range l {
			assert.Equal(t, 1.0, v, "%s/%s", name, h)
		}
	}

	l, ok := NewEvaluator(nil).Evaluate(obs, uniformRegime(3), threeHypotheses())
	assert.False(t, ok)
	assert.Equal(t, 1.0, l["long"])
}

func TestEvaluateNeutralObservationIsDirectionless(t *testing.T) {
	ev := NewEvaluator(DefaultEmission())
	l, ok := ev.Evaluate(neutralObservation(time.Now()), uniformRegime(3), threeHypotheses())
	require.True(t, ok)
	assert.InDelta(t, l["long"], l["short"], 1e-12)
	assert.InDelta(t, l["long"], l["flat"], 1e-12)
}

func TestEvaluateOrderBookNudge(t *testing.T) {
	ev := NewEvaluator(DefaultEmission())
	obs := neutralObservation(time.Now())
	obs.OrderBookImbalance = 0.4

	l, ok := ev.Evaluate(obs, uniformRegime(3), threeHypotheses())
	require.True(t, ok)
	assert.Greater(t, l["long"], l["flat"])
	assert.Greater(t, l["flat"], l["short"])
	assert.InDelta(t, 0.1, math.Log(l["long"]/l["flat"]), 1e-9)
	assert.InDelta(t, -0.05, math.Log(l["short"]/l["flat"]), 1e-9)
}

func TestDirectionBonus(t *testing.T) {
	obs := models.MarketObservation{RSI: 20, Slope: 0.3, FundingRate: -0.001}
	assert.InDelta(t, 0.2, directionBonus(obs, models.Long), 1e-12)
	assert.Equal(t, 0.0, directionBonus(obs, models.Short))
	assert.Equal(t, 0.0, directionBonus(obs, models.Flat))

	obs = models.MarketObservation{RSI: 80, Slope: -0.3, FundingRate: 0.002}
	assert.InDelta(t, 0.2, directionBonus(obs, models.Short), 1e-12)

	obs = models.MarketObservation{RSI: 50, Slope: 0.1}
	assert.InDelta(t, 0.05, directionBonus(obs, models.Long), 1e-12)
}

func TestEvaluateExtremeValuesStayFinite(t *testing.T) {
	ev := NewEvaluator(DefaultEmission())
	obs := neutralObservation(time.Now())
	obs.Return = 5
	obs.LogVolatility = 40
	obs.Slope = -300
	obs.OrderBookImbalance = -1

	l, ok := ev.Evaluate(obs, uniformRegime(3), threeHypotheses())
	require.True(t, ok)
	for name, v := range l {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), name)
		assert.Greater(t, v, 0.0, name)
	}
}

func TestEvaluateDuplicateNamesKeepFirst(t *testing.T) {
	ev := NewEvaluator(DefaultEmission())
	obs := neutralObservation(time.Now())
	obs.OrderBookImbalance = 0.5
	hyps := []models.TradingHypothesis{
		{Name: "x", Direction: models.Long},
		{Name: "x", Direction: models.Short},
		{Name: "flat", Direction: models.Flat},
	}
	l, _ := ev.Evaluate(obs, uniformRegime(3), hyps)
	require.Len(t, l, 2)
	assert.Greater(t, l["x"], l["flat"])
}

func TestDensities(t *testing.T) {
	assert.InDelta(t, -0.9189385, gaussianLogPDF(0, 0, 1), 1e-6)
	assert.InDelta(t, -1.0008888, studentTLogPDF(0, 0, 1, 3), 1e-6)
	// nu is floored, a tiny value behaves like 2.1
	assert.InDelta(t, studentTLogPDF(0.5, 0, 1, 2.1), studentTLogPDF(0.5, 0, 1, 0.5), 1e-12)
	// zero scale does not blow up
	assert.False(t, math.IsInf(gaussianLogPDF(1, 0, 0), 0))
	assert.False(t, math.IsNaN(studentTLogPDF(1, 0, 0, 4)))
}
