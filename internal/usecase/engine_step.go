package usecase

import (
	"context"
	"time"

	"DecisionCore/internal/domain/models"
	drepo "DecisionCore/internal/domain/repository"
	domsvc "DecisionCore/internal/domain/service"
	"DecisionCore/internal/engine"
	applogger "DecisionCore/pkg/logger"
)

const reasonHypothesesUnavailable = "hypotheses_unavailable"

// symbolEngine is one symbol's engine plus the last regime vector it was fed.
type symbolEngine struct {
	eng        *engine.Engine
	lastRegime *models.RegimeProbabilityVector
}

// stepRunner feeds one observation through a symbol's engine together with
// the regime and hypothesis providers. The live manager and the replayer
// both go through it. Emitting the decision is left to the caller.
type stepRunner struct {
	regime        domsvc.RegimeProvider
	hyps          domsvc.HypothesisProvider
	metrics       drepo.Metrics
	log           *applogger.Logger
	regimeTimeout time.Duration // <= 0 means the caller's deadline only
}

func (r *stepRunner) step(ctx context.Context, se *symbolEngine, obs models.MarketObservation) engine.StepResult {
	symbol := se.eng.Symbol()
	start := time.Now()
	r.metrics.RecordObservation(symbol)

	// skip collaborators for observations the engine will refuse anyway
	if !se.eng.Admissible(obs) {
		res := se.eng.Process(obs, nil, nil)
		r.record(res)
		return res
	}

	regime := r.regimeFor(ctx, se, obs)
	hyps, err := r.hyps.ActiveHypotheses(ctx, symbol, &obs)
	if err != nil {
		se.eng.MarkUnavailable(reasonHypothesesUnavailable)
		r.metrics.RecordError("hypotheses")
		r.log.Warn("hypothesis provider failed, observation skipped",
			applogger.String("symbol", symbol),
			applogger.Time("ts", obs.Timestamp),
			applogger.Error(err),
		)
		res := engine.StepResult{Symbol: symbol, Outcome: engine.OutcomeUnavailable, Reason: reasonHypothesesUnavailable}
		r.record(res)
		return res
	}

	res := se.eng.Process(obs, regime, hyps)
	r.record(res)
	r.metrics.RecordLatency("engine_step", time.Since(start).Seconds())
	return res
}

// regimeFor fetches P(regime) for the window ending at obs. On failure the
// symbol's last good vector is reused, flagged stale; nil means cold start.
func (r *stepRunner) regimeFor(ctx context.Context, se *symbolEngine, obs models.MarketObservation) *models.RegimeProbabilityVector {
	symbol := se.eng.Symbol()
	window := append(se.eng.Window(), obs)

	if r.regimeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.regimeTimeout)
		defer cancel()
	}

	v, err := r.regime.RegimeProbabilities(ctx, symbol, window)
	if err == nil {
		se.lastRegime = &v
		if v.Stale {
			r.metrics.RecordRegimeStale(symbol)
		}
		return &v
	}

	r.metrics.RecordError("regime")
	if se.lastRegime == nil {
		r.log.Warn("regime unavailable, no fallback", applogger.String("symbol", symbol), applogger.Error(err))
		return nil
	}
	last := *se.lastRegime
	last.Probabilities = append([]float64(nil), se.lastRegime.Probabilities...)
	last.Stale = true
	r.metrics.RecordRegimeStale(symbol)
	r.log.Warn("regime unavailable, using last known", applogger.String("symbol", symbol), applogger.Error(err))
	return &last
}

func (r *stepRunner) record(res engine.StepResult) {
	r.metrics.RecordOutcome(res.Symbol, string(res.Outcome), res.Reason)
	if res.Err != nil {
		r.log.Debug("observation refused",
			applogger.String("symbol", res.Symbol),
			applogger.String("reason", res.Reason),
			applogger.Error(res.Err),
		)
	}
	if len(res.Beliefs) > 0 {
		r.metrics.RecordBelief(res.Symbol, res.Verdict.P1, res.Verdict.LogOddsRatio)
	}
}

// nopMetrics discards everything; used when a replay runs without a recorder.
type nopMetrics struct{}

func (nopMetrics) RecordObservation(string) {}
func (nopMetrics) RecordOutcome(string, string, string) {}
func (nopMetrics) RecordDecision(string, string, float64) {}
func (nopMetrics) RecordBelief(string, float64, float64) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordRegimeStale(string) {}
func (nopMetrics) RecordQueueDepth(string, int) {}
func (nopMetrics) RecordLatency(string, float64) {}
