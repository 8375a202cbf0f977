package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"DecisionCore/internal/domain/models"

	"github.com/google/uuid"
)

// Phase of the per-symbol state machine.
type Phase string

const (
	WarmingUp Phase = "WARMING_UP"
	Tracking  Phase = "TRACKING"
)

// Outcome tags every StepResult so data starvation can be told apart from a
// statistical rejection.
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeInsufficientData Outcome = "insufficient_data"
	OutcomeUnavailable      Outcome = "unavailable"
	OutcomeRejected         Outcome = "rejected"
	OutcomeInvalid          Outcome = "invalid"
)

const (
	ReasonAccepted           = "accepted"
	ReasonWarmingUp          = "warming_up"
	ReasonNoHypotheses       = "no_hypotheses"
	ReasonColdStart          = "cold_start"
	ReasonAwaitingRecross    = "awaiting_recross"
	ReasonSetExhausted       = "hypothesis_set_exhausted"
	ReasonStaleObservation   = "stale_observation"
	ReasonInvalidObservation = "invalid_observation"
	ReasonSymbolMismatch     = "symbol_mismatch"
	ReasonReset              = "reset"
)

// StepResult is the full account of one processed observation.
type StepResult struct {
	Symbol        string
	Phase         Phase
	Outcome       Outcome
	Reason        string
	Verdict       Verdict
	Beliefs       models.BeliefState
	Decision      *models.Decision
	ColdStart     bool
	RegimeStale   bool
	Reinitialised bool
	Err           error
}

// Engine is the decision core for one symbol. Observations must be fed in
// timestamp order; the mutex only protects snapshots taken from other goroutines.
type Engine struct {
	mu sync.Mutex

	symbol    string
	cfg       Config
	buffer    *Buffer
	evaluator *Evaluator
	tracker   *BeliefTracker
	rule      *Rule
	sizer     *Sizer

	armed       bool
	lastTs      time.Time
	lastOutcome Outcome
	lastReason  string
	regimeStale bool
	decisions   uint64

	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New validates cfg and builds an engine in the WARMING_UP phase.
func New(symbol string, cfg Config, opts ...Option) (*Engine, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rule, err := NewRule(cfg.Alpha, cfg.Beta)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		symbol:      symbol,
		cfg:         cfg,
		buffer:      NewBuffer(cfg.WindowSize),
		evaluator:   NewEvaluator(cfg.Emission),
		tracker:     NewBeliefTracker(cfg.Gamma),
		rule:        rule,
		sizer:       NewSizer(cfg),
		armed:       true,
		lastOutcome: OutcomeInsufficientData,
		lastReason:  ReasonWarmingUp,
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) Symbol() string { return e.symbol }

// Warm pre-fills the buffer with history. Beliefs are left empty. Entries that
// are invalid, foreign or not strictly newer than the previous one are skipped.
func (e *Engine) Warm(history []models.MarketObservation) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	sorted := make([]models.MarketObservation, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	n := 0
	for i := range sorted {
		o := sorted[i]
		if o.Symbol != e.symbol || o.Validate() != nil {
			continue
		}
		if !e.lastTs.IsZero() && !o.Timestamp.After(e.lastTs) {
			continue
		}
		e.buffer.Push(o)
		e.lastTs = o.Timestamp
		n++
	}
	return n
}

// Process runs one observation through buffer, likelihood, belief, SPRT and sizing.
func (e *Engine) Process(obs models.MarketObservation, regime *models.RegimeProbabilityVector, hyps []models.TradingHypothesis) StepResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := StepResult{Symbol: e.symbol, Phase: e.phase()}
	if err := obs.Validate(); err != nil {
		res.Err = err
		return e.finish(res, OutcomeInvalid, ReasonInvalidObservation)
	}
	if obs.Symbol != e.symbol {
		res.Err = fmt.Errorf("%w: symbol %s for engine %s", models.ErrInvalidObservation, obs.Symbol, e.symbol)
		return e.finish(res, OutcomeInvalid, ReasonSymbolMismatch)
	}
	if !e.lastTs.IsZero() && !obs.Timestamp.After(e.lastTs) {
		res.Err = fmt.Errorf("%w: %s <= %s", models.ErrStaleObservation,
			obs.Timestamp.Format(time.RFC3339Nano), e.lastTs.Format(time.RFC3339Nano))
		return e.finish(res, OutcomeInvalid, ReasonStaleObservation)
	}

	e.buffer.Push(obs)
	e.lastTs = obs.Timestamp
	res.Phase = e.phase()
	if res.Phase == WarmingUp {
		return e.finish(res, OutcomeInsufficientData, ReasonWarmingUp)
	}
	if len(hyps) == 0 {
		return e.finish(res, OutcomeInsufficientData, ReasonNoHypotheses)
	}

	likelihoods, ok := e.evaluator.Evaluate(obs, regime, hyps)
	res.ColdStart = !ok
	res.RegimeStale = ok && regime.Stale
	e.regimeStale = res.RegimeStale

	beliefs, reinit := e.tracker.Update(likelihoods)
	res.Beliefs = beliefs
	res.Reinitialised = reinit

	byName := make(map[string]models.TradingHypothesis, len(hyps))
	for _, h := range hyps {
		if _, dup := byName[h.Name]; !dup {
			byName[h.Name] = h
		}
	}

	var sized SizeResult
	gate := func(name string) (bool, string) {
		if !e.armed {
			return false, ReasonAwaitingRecross
		}
		sized = e.sizer.Size(byName[name], e.buffer.Returns(e.cfg.VolLookback))
		if sized.Reason != "" {
			return false, sized.Reason
		}
		if sized.ExpectedNetReturn <= e.cfg.MinExpectedReturn {
			return false, ReasonUneconomic
		}
		return true, ""
	}

	v := e.rule.Evaluate(beliefs, gate)
	res.Verdict = v
	if v.LogOddsRatio < e.rule.Upper() {
		e.armed = true
	}

	switch v.Action {
	case Accept:
		h := byName[v.Hypothesis]
		res.Decision = &models.Decision{
			ID:                e.newID(),
			Symbol:            e.symbol,
			Hypothesis:        &h,
			Direction:         h.Direction,
			PositionSize:      sized.Size,
			Confidence:        v.P1,
			ExpectedNetReturn: sized.ExpectedNetReturn,
			LogOddsRatio:      v.LogOddsRatio,
			RegimeStale:       res.RegimeStale,
			ObservationTime:   obs.Timestamp,
			EmittedAt:         e.now(),
		}
		e.armed = false
		e.decisions++
		return e.finish(res, OutcomeOK, ReasonAccepted)
	case Reject:
		e.tracker.Reset()
		e.armed = true
		return e.finish(res, OutcomeRejected, ReasonSetExhausted)
	}

	switch {
	case v.Reason == ReasonInsufficientHistory || v.Reason == ReasonDegenerateVariance:
		return e.finish(res, OutcomeInsufficientData, v.Reason)
	case res.ColdStart:
		return e.finish(res, OutcomeInsufficientData, ReasonColdStart)
	}
	return e.finish(res, OutcomeOK, v.Reason)
}

// Admissible reports whether obs would pass the validity, symbol and ordering
// checks Process applies, without changing any state.
func (e *Engine) Admissible(obs models.MarketObservation) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if obs.Validate() != nil || obs.Symbol != e.symbol {
		return false
	}
	return e.lastTs.IsZero() || obs.Timestamp.After(e.lastTs)
}

// MarkUnavailable records that an observation was skipped because a
// collaborator could not serve it.
func (e *Engine) MarkUnavailable(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastOutcome = OutcomeUnavailable
	e.lastReason = reason
}

// Reset clears the belief state. The observation buffer is kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracker.Reset()
	e.armed = true
	e.lastReason = ReasonReset
}

// Window returns a copy of the buffered observations, oldest first.
func (e *Engine) Window() []models.MarketObservation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer.Snapshot()
}

func (e *Engine) State() models.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.EngineState{
		Symbol:          e.symbol,
		Phase:           string(e.phase()),
		Beliefs:         e.tracker.Beliefs().Ranked(),
		Upper:           e.rule.Upper(),
		Lower:           e.rule.Lower(),
		BufferSize:      e.buffer.Len(),
		LastObservation: e.lastTs,
		LastOutcome:     string(e.lastOutcome),
		LastReason:      e.lastReason,
		RegimeStale:     e.regimeStale,
		Decisions:       e.decisions,
	}
}

func (e *Engine) phase() Phase {
	if e.buffer.Len() < e.cfg.MinObservations {
		return WarmingUp
	}
	return Tracking
}

func (e *Engine) finish(res StepResult, o Outcome, reason string) StepResult {
	res.Outcome = o
	res.Reason = reason
	if res.Beliefs == nil {
		res.Beliefs = e.tracker.Beliefs()
	}
	e.lastOutcome = o
	e.lastReason = reason
	return res
}
