package engine

import (
	"fmt"
	"math"

	"DecisionCore/internal/domain/models"
)

// Action is the outcome of one SPRT evaluation.
type Action int

const (
	Continue Action = iota
	Accept
	Reject
)

func (a Action) String() string {
	switch a {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return "continue"
	}
}

// Verdict is what the rule decided and the numbers it decided on.
type Verdict struct {
	Action       Action
	Hypothesis   string // top hypothesis, set on Accept and on a gated Continue
	P1, P2       float64
	LogOddsRatio float64
	Reason       string
}

// EconomicGate reports whether accepting the named hypothesis is worthwhile.
type EconomicGate func(hypothesis string) (bool, string)

// Thresholds returns the Wald boundaries for the given error rates.
func Thresholds(alpha, beta float64) (upper, lower float64) {
	return math.Log((1 - beta) / alpha), math.Log(beta / (1 - alpha))
}

// Rule is a sequential probability ratio test over the top two beliefs.
type Rule struct {
	upper float64
	lower float64
}

func NewRule(alpha, beta float64) (*Rule, error) {
	if !(alpha > 0 && alpha < 1) || !(beta > 0 && beta < 1) {
		return nil, fmt.Errorf("%w: alpha and beta must be in (0,1)", ErrInvalidConfig)
	}
	upper, lower := Thresholds(alpha, beta)
	if lower >= upper {
		return nil, fmt.Errorf("%w: lower threshold %.4f >= upper %.4f", ErrInvalidConfig, lower, upper)
	}
	return &Rule{upper: upper, lower: lower}, nil
}

func (r *Rule) Upper() float64 { return r.upper }
func (r *Rule) Lower() float64 { return r.lower }

// Evaluate runs the test. A nil gate always passes.
func (r *Rule) Evaluate(beliefs models.BeliefState, gate EconomicGate) Verdict {
	ranked := beliefs.Ranked()
	if len(ranked) == 0 {
		return Verdict{Action: Continue, Reason: "no_beliefs"}
	}
	v := Verdict{Hypothesis: ranked[0].Name, P1: ranked[0].Probability}
	if len(ranked) > 1 {
		v.P2 = ranked[1].Probability
	}
	if v.P2 <= probFloor {
		v.LogOddsRatio = r.upper + 1
	} else {
		v.LogOddsRatio = math.Log(v.P1 / v.P2)
	}

	switch {
	case v.LogOddsRatio >= r.upper:
		if gate != nil {
			if ok, reason := gate(v.Hypothesis); !ok {
				v.Action = Continue
				v.Reason = reason
				return v
			}
		}
		v.Action = Accept
	case v.LogOddsRatio <= r.lower:
		v.Action = Reject
		v.Hypothesis = ""
	default:
		v.Action = Continue
		v.Hypothesis = ""
		v.Reason = "insufficient_evidence"
	}
	return v
}
