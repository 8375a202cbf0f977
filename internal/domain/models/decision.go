package models

import (
	"sort"
	"time"
)

// Decision is the engine's emitted output for an accepted hypothesis.
type Decision struct {
	ID                string             `json:"id"`
	Symbol            string             `json:"symbol"`
	Hypothesis        *TradingHypothesis `json:"hypothesis,omitempty"`
	Direction         Direction          `json:"direction"`
	PositionSize      float64            `json:"position_size"`
	Confidence        float64            `json:"confidence"`
	ExpectedNetReturn float64            `json:"expected_net_return"`
	LogOddsRatio      float64            `json:"log_odds_ratio"`
	RegimeStale       bool               `json:"regime_stale"`
	ObservationTime   time.Time          `json:"observation_time"`
	EmittedAt         time.Time          `json:"emitted_at"`
}

// HypothesisName returns the selected hypothesis name or "".
func (d *Decision) HypothesisName() string {
	if d == nil || d.Hypothesis == nil {
		return ""
	}
	return d.Hypothesis.Name
}

// BeliefState maps hypothesis name to posterior probability.
type BeliefState map[string]float64

// RankedBelief is one entry of an ordered BeliefState.
type RankedBelief struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
}

// Sum of all probabilities.
func (b BeliefState) Sum() float64 {
	s := 0.0
	for _, p := range b {
		s += p
	}
	return s
}

// Ranked returns beliefs ordered by probability descending, ties by name.
func (b BeliefState) Ranked() []RankedBelief {
	out := make([]RankedBelief, 0, len(b))
	for name, p := range b {
		out = append(out, RankedBelief{Name: name, Probability: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Top returns the n highest ranked entries.
func (b BeliefState) Top(n int) []RankedBelief {
	r := b.Ranked()
	if n < len(r) {
		r = r[:n]
	}
	return r
}

func (b BeliefState) Clone() BeliefState {
	out := make(BeliefState, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// EngineState is a read-only snapshot of one symbol's engine.
type EngineState struct {
	Symbol          string         `json:"symbol"`
	Phase           string         `json:"phase"`
	Beliefs         []RankedBelief `json:"beliefs"`
	Upper           float64        `json:"upper"`
	Lower           float64        `json:"lower"`
	BufferSize      int            `json:"buffer_size"`
	LastObservation time.Time      `json:"last_observation"`
	LastOutcome     string         `json:"last_outcome"`
	LastReason      string         `json:"last_reason,omitempty"`
	RegimeStale     bool           `json:"regime_stale"`
	Decisions       uint64         `json:"decisions"`
}
