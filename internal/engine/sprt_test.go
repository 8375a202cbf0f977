package engine

import (
	"math"
	"testing"

	"DecisionCore/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholds(t *testing.T) {
	cases := []struct {
		alpha, beta  float64
		upper, lower float64
	}{
		{0.05, 0.20, 2.7725887, -1.5581446},
		{0.5, 0.5, 0, 0},
		{0.1, 0.1, math.Log(9), -math.Log(9)},
		{0.01, 0.05, math.Log(95), math.Log(0.05 / 0.99)},
	}
	for _, tc := range cases {
		upper, lower := Thresholds(tc.alpha, tc.beta)
		assert.InDelta(t, tc.upper, upper, 1e-6, "upper for alpha=%v beta=%v", tc.alpha, tc.beta)
		assert.InDelta(t, tc.lower, lower, 1e-6, "lower for alpha=%v beta=%v", tc.alpha, tc.beta)
	}
}

func TestNewRuleRejectsBadRates(t *testing.T) {
	for _, ab := range [][2]float64{{0, 0.2}, {0.05, 1}, {-0.1, 0.2}, {0.6, 0.6}, {0.5, 0.5}} {
		_, err := NewRule(ab[0], ab[1])
		assert.ErrorIs(t, err, ErrInvalidConfig, "alpha=%v beta=%v", ab[0], ab[1])
	}
	r, err := NewRule(0.05, 0.2)
	require.NoError(t, err)
	assert.Greater(t, r.Upper(), r.Lower())
}

func TestRuleFiringExample(t *testing.T) {
	rule, err := NewRule(0.05, 0.20)
	require.NoError(t, err)
	tracker := NewBeliefTracker(1)
	l := Likelihoods{"h1": 0.9, "h2": 0.1}

	beliefs, _ := tracker.Update(l)
	v := rule.Evaluate(beliefs, nil)
	assert.InDelta(t, math.Log(9), v.LogOddsRatio, 1e-9)
	assert.Equal(t, Continue, v.Action)

	beliefs, _ = tracker.Update(l)
	v = rule.Evaluate(beliefs, nil)
	assert.InDelta(t, math.Log(81), v.LogOddsRatio, 1e-9)
	assert.Equal(t, Accept, v.Action)
	assert.Equal(t, "h1", v.Hypothesis)
}

func TestRuleEconomicGate(t *testing.T) {
	rule, err := NewRule(0.05, 0.20)
	require.NoError(t, err)
	beliefs := models.BeliefState{"long": 0.99, "short": 0.01}

	var asked string
	v := rule.Evaluate(beliefs, func(name string) (bool, string) {
		asked = name
		return false, ReasonUneconomic
	})
	assert.Equal(t, "long", asked)
	assert.Equal(t, Continue, v.Action)
	assert.Equal(t, ReasonUneconomic, v.Reason)

	v = rule.Evaluate(beliefs, func(string) (bool, string) { return true, "" })
	assert.Equal(t, Accept, v.Action)
}

func TestRuleSingleViableHypothesis(t *testing.T) {
	rule, err := NewRule(0.05, 0.20)
	require.NoError(t, err)

	v := rule.Evaluate(models.BeliefState{"only": 1}, nil)
	assert.Equal(t, Accept, v.Action)
	assert.InDelta(t, rule.Upper()+1, v.LogOddsRatio, 1e-12)

	v = rule.Evaluate(models.BeliefState{"a": 1, "b": 0}, nil)
	assert.Equal(t, Accept, v.Action)
	assert.Equal(t, "a", v.Hypothesis)
}

func TestRuleReject(t *testing.T) {
	rule := &Rule{upper: 5, lower: 0.5}
	v := rule.Evaluate(models.BeliefState{"a": 0.6, "b": 0.4}, nil)
	assert.Equal(t, Reject, v.Action)
	assert.Empty(t, v.Hypothesis)
}

func TestRuleContinueAndTies(t *testing.T) {
	rule, err := NewRule(0.05, 0.20)
	require.NoError(t, err)

	v := rule.Evaluate(models.BeliefState{"b": 0.5, "a": 0.5}, nil)
	assert.Equal(t, Continue, v.Action)
	assert.Equal(t, 0.0, v.LogOddsRatio)

	// ties resolve by name
	zero := &Rule{upper: 0, lower: -1}
	v = zero.Evaluate(models.BeliefState{"b": 0.5, "a": 0.5}, nil)
	assert.Equal(t, Accept, v.Action)
	assert.Equal(t, "a", v.Hypothesis)

	v = rule.Evaluate(models.BeliefState{}, nil)
	assert.Equal(t, Continue, v.Action)
}
