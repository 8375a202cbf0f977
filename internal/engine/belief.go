package engine

import (
	"math"

	"DecisionCore/internal/domain/models"
)

const probFloor = 1e-12

// BeliefTracker folds likelihood steps into a posterior over hypotheses.
//
// Each step scales the whole new log-odds (history plus fresh evidence) by
// gamma before mapping back through the logistic function and renormalising.
type BeliefTracker struct {
	gamma   float64
	beliefs models.BeliefState
}

func NewBeliefTracker(gamma float64) *BeliefTracker {
	return &BeliefTracker{gamma: gamma, beliefs: models.BeliefState{}}
}

// Update applies one likelihood step. The second result is true when the state
// was initialised uniformly first, either because it was empty or because the
// hypothesis set changed.
func (t *BeliefTracker) Update(l Likelihoods) (models.BeliefState, bool) {
	if len(l) == 0 {
		return t.Beliefs(), false
	}
	reinit := false
	if !t.sameSet(l) {
		t.beliefs = uniform(l)
		reinit = true
	}

	n := len(l)
	next := make(models.BeliefState, n)
	sum := 0.0
	for name, lh := range l {
		p := clamp(t.beliefs[name], probFloor, 1-probFloor)
		comp := complementLikelihood(l, name)
		lo := math.Log(p/(1-p)) + safeLog(lh) - safeLog(comp)
		lo = clamp(t.gamma*lo, -logLikBound, logLikBound)
		q := 1 / (1 + math.Exp(-lo))
		next[name] = q
		sum += q
	}
	for name := range next {
		next[name] /= sum
	}
	t.beliefs = next
	return t.Beliefs(), reinit
}

// Beliefs returns a copy of the current state.
func (t *BeliefTracker) Beliefs() models.BeliefState { return t.beliefs.Clone() }

func (t *BeliefTracker) Len() int { return len(t.beliefs) }

func (t *BeliefTracker) Reset() { t.beliefs = models.BeliefState{} }

func (t *BeliefTracker) sameSet(l Likelihoods) bool {
	if len(t.beliefs) != len(l) {
		return false
	}
	for name := range l {
		if _, ok := t.beliefs[name]; !ok {
			return false
		}
	}
	return true
}

// complementLikelihood is the mean likelihood of every other hypothesis.
// With a single hypothesis the ratio is neutral.
func complementLikelihood(l Likelihoods, name string) float64 {
	if len(l) == 1 {
		return l[name]
	}
	s := 0.0
	for other, v := range l {
		if other != name {
			s += v
		}
	}
	return s / float64(len(l)-1)
}

func uniform(l Likelihoods) models.BeliefState {
	b := make(models.BeliefState, len(l))
	p := 1 / float64(len(l))
	for name := range l {
		b[name] = p
	}
	return b
}

func safeLog(x float64) float64 {
	return math.Log(math.Max(x, math.SmallestNonzeroFloat64))
}
