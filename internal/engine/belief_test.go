package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeliefFirstUpdateIsUniformPrior(t *testing.T) {
	tr := NewBeliefTracker(0.95)
	b, reinit := tr.Update(Likelihoods{"a": 1, "b": 1, "c": 1, "d": 1})
	assert.True(t, reinit)
	for _, p := range b {
		assert.InDelta(t, 0.25, p, 1e-12)
	}
}

func TestBeliefNormalization(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, gamma := range []float64{1, 0.96, 0.5} {
		tr := NewBeliefTracker(gamma)
		for step := 0; step < 500; step++ {
			l := Likelihoods{}
			for _, name := range []string{"long", "short", "flat", "range"} {
				// spans the clamp range of the evaluator
				l[name] = 1e-20 + rng.Float64()*rng.Float64()*1e3
			}
			b, _ := tr.Update(l)
			assert.InDelta(t, 1.0, b.Sum(), 1e-9)
			for name, p := range b {
				require.GreaterOrEqual(t, p, 0.0, name)
			}
		}
	}
}

func TestBeliefMonotonicConvergence(t *testing.T) {
	tr := NewBeliefTracker(1)
	l := Likelihoods{"A": 0.9, "B": 0.1, "C": 0.1}
	prev := 0.0
	for i := 0; i < 60; i++ {
		b, _ := tr.Update(l)
		if prev > 1-1e-9 {
			break
		}
		assert.GreaterOrEqual(t, b["A"], prev, "step %d", i)
		prev = b["A"]
	}
	assert.Greater(t, prev, 0.999)
}

func TestBeliefForgettingDecay(t *testing.T) {
	tr := NewBeliefTracker(0.95)
	for i := 0; i < 50; i++ {
		tr.Update(Likelihoods{"A": 0.9, "B": 0.1})
	}
	peak := tr.Beliefs()["A"]
	require.Greater(t, peak, 0.99)

	neutral := Likelihoods{"A": 0.5, "B": 0.5}
	b, _ := tr.Update(neutral)
	assert.Greater(t, b["A"], 0.9, "must not snap back after one neutral step")

	prev := b["A"]
	for i := 0; i < 300; i++ {
		b, _ = tr.Update(neutral)
		assert.LessOrEqual(t, b["A"], prev+1e-12)
		assert.GreaterOrEqual(t, b["A"], 0.5-1e-9)
		prev = b["A"]
	}
	assert.InDelta(t, 0.5, prev, 0.01)
}

func TestBeliefNeutralEvidenceKeepsOrdering(t *testing.T) {
	tr := NewBeliefTracker(0.96)
	tr.Update(Likelihoods{"A": 0.8, "B": 0.3, "C": 0.1})
	tr.Update(Likelihoods{"A": 0.8, "B": 0.3, "C": 0.1})
	before := tr.Beliefs().Ranked()

	for i := 0; i < 5; i++ {
		b, reinit := tr.Update(Likelihoods{"A": 1, "B": 1, "C": 1})
		require.False(t, reinit)
		after := b.Ranked()
		for j := range before {
			assert.Equal(t, before[j].Name, after[j].Name)
		}
	}
}

func TestBeliefSetChangeResets(t *testing.T) {
	tr := NewBeliefTracker(1)
	tr.Update(Likelihoods{"A": 0.9, "B": 0.1})
	tr.Update(Likelihoods{"A": 0.9, "B": 0.1})

	b, reinit := tr.Update(Likelihoods{"A": 1, "C": 1})
	assert.True(t, reinit)
	assert.InDelta(t, 0.5, b["A"], 1e-12)
	assert.InDelta(t, 0.5, b["C"], 1e-12)
	_, hasB := b["B"]
	assert.False(t, hasB)
}

func TestBeliefEmptyLikelihoodsNoop(t *testing.T) {
	tr := NewBeliefTracker(1)
	tr.Update(Likelihoods{"A": 0.9, "B": 0.1})
	before := tr.Beliefs()
	after, reinit := tr.Update(Likelihoods{})
	assert.False(t, reinit)
	assert.Equal(t, before, after)

	tr.Reset()
	assert.Equal(t, 0, tr.Len())
}
