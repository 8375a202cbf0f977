package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"DecisionCore/internal/domain/models"
	drepo "DecisionCore/internal/domain/repository"
	domsvc "DecisionCore/internal/domain/service"
	"DecisionCore/internal/engine"
	applogger "DecisionCore/pkg/logger"
)

var (
	ErrEngineNotFound = errors.New("engine not found")
	ErrManagerClosed  = errors.New("engine manager closed")
)

// ManagerConfig holds the per-manager tuning shared by every symbol.
type ManagerConfig struct {
	Engine        engine.Config
	QueueSize     int
	RegimeTimeout time.Duration
}

// ManagerOption configures EngineManager.
type ManagerOption func(*EngineManager)

// WithObservationHistory enables warm start from stored observations.
func WithObservationHistory(store drepo.ObservationStore) ManagerOption {
	return func(m *EngineManager) { m.history = store }
}

// WithEngineOptions passes options to every engine the manager creates.
func WithEngineOptions(opts ...engine.Option) ManagerOption {
	return func(m *EngineManager) { m.engineOpts = append(m.engineOpts, opts...) }
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *applogger.Logger) ManagerOption {
	return func(m *EngineManager) { m.log = l }
}

// EngineManager owns one engine and one worker goroutine per active symbol.
// Each worker drains a bounded queue, so observations of a symbol are
// processed in submission order while symbols run in parallel.
type EngineManager struct {
	cfg        ManagerConfig
	steps      *stepRunner
	sink       domsvc.DecisionSink
	metrics    drepo.Metrics
	history    drepo.ObservationStore
	engineOpts []engine.Option
	log        *applogger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	workers map[string]*worker
	closed  bool
	wg      sync.WaitGroup
}

type task struct {
	obs   models.MarketObservation
	reset bool
}

type worker struct {
	symbolEngine
	in   chan task
	quit chan struct{}
	done chan struct{}

	// gate is held shared across every send on in and exclusively by
	// retire, so once retired is set no task can slip into the queue.
	gate    sync.RWMutex
	retired bool
}

var errWorkerRetired = errors.New("worker retired")

// enqueue hands t to the worker. It fails with errWorkerRetired once the
// worker has been told to stop.
func (w *worker) enqueue(ctx context.Context, t task) error {
	w.gate.RLock()
	defer w.gate.RUnlock()
	if w.retired {
		return errWorkerRetired
	}
	select {
	case w.in <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retire stops the worker after it drains what is queued. Only the first
// call has an effect.
func (w *worker) retire() {
	w.gate.Lock()
	defer w.gate.Unlock()
	if w.retired {
		return
	}
	w.retired = true
	close(w.quit)
}

func NewEngineManager(
	cfg ManagerConfig,
	regime domsvc.RegimeProvider,
	hyps domsvc.HypothesisProvider,
	sink domsvc.DecisionSink,
	metrics drepo.Metrics,
	opts ...ManagerOption,
) (*EngineManager, error) {
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	if regime == nil || hyps == nil || sink == nil || metrics == nil {
		return nil, fmt.Errorf("engine manager: regime, hypotheses, sink and metrics are required")
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.RegimeTimeout <= 0 {
		cfg.RegimeTimeout = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &EngineManager{
		cfg:     cfg,
		sink:    sink,
		metrics: metrics,
		log:     applogger.Nop(),
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.steps = &stepRunner{
		regime:        regime,
		hyps:          hyps,
		metrics:       metrics,
		log:           m.log,
		regimeTimeout: cfg.RegimeTimeout,
	}
	return m, nil
}

// Submit enqueues obs on its symbol's worker, activating the symbol on first
// use. It blocks while the queue is full until ctx is done.
func (m *EngineManager) Submit(ctx context.Context, obs *models.MarketObservation) error {
	if err := obs.Validate(); err != nil {
		m.metrics.RecordError("submit_invalid")
		return err
	}
	for {
		w, err := m.activate(obs.Symbol)
		if err != nil {
			return err
		}
		err = w.enqueue(ctx, task{obs: *obs})
		switch {
		case err == nil:
			m.metrics.RecordQueueDepth(obs.Symbol, len(w.in))
			return nil
		case errors.Is(err, errWorkerRetired):
			// deactivated meanwhile; activate starts a fresh engine or
			// reports the manager closed
			continue
		default:
			m.metrics.RecordError("submit_timeout")
			return err
		}
	}
}

// Reset clears the belief state of symbol. It is ordered with observations
// already queued for that symbol.
func (m *EngineManager) Reset(ctx context.Context, symbol string) error {
	w, ok := m.worker(symbol)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEngineNotFound, symbol)
	}
	if err := w.enqueue(ctx, task{reset: true}); err != nil {
		if errors.Is(err, errWorkerRetired) {
			return m.retiredErr(symbol)
		}
		return err
	}
	return nil
}

// Deactivate stops the worker of symbol after it drains its queue and forgets the engine.
func (m *EngineManager) Deactivate(ctx context.Context, symbol string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	w, ok := m.workers[symbol]
	if ok {
		delete(m.workers, symbol)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrEngineNotFound, symbol)
	}

	w.retire()
	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.metrics.RecordQueueDepth(symbol, 0)
	m.log.Info("engine deactivated", applogger.String("symbol", symbol))
	return nil
}

func (m *EngineManager) retiredErr(symbol string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrManagerClosed
	}
	return fmt.Errorf("%w: %s", ErrEngineNotFound, symbol)
}

// State returns a snapshot of the engine for symbol.
func (m *EngineManager) State(symbol string) (models.EngineState, error) {
	w, ok := m.worker(symbol)
	if !ok {
		return models.EngineState{}, fmt.Errorf("%w: %s", ErrEngineNotFound, symbol)
	}
	return w.eng.State(), nil
}

// States returns snapshots of every active engine ordered by symbol.
func (m *EngineManager) States() []models.EngineState {
	m.mu.RLock()
	out := make([]models.EngineState, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, w.eng.State())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Close stops accepting work, lets every worker drain its queue and waits for
// them or for ctx.
func (m *EngineManager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, w := range m.workers {
		w.retire()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	defer m.cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *EngineManager) worker(symbol string) (*worker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[symbol]
	return w, ok
}

// activate returns the live worker of symbol, starting one if needed. A
// retired worker is never returned: Deactivate unmaps it before retiring and
// Close marks the manager closed first.
func (m *EngineManager) activate(symbol string) (*worker, error) {
	m.mu.RLock()
	w, ok := m.workers[symbol]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrManagerClosed
	}
	if ok {
		return w, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if w, ok := m.workers[symbol]; ok {
		return w, nil
	}
	eng, err := engine.New(symbol, m.cfg.Engine, m.engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("create engine %s: %w", symbol, err)
	}
	w = &worker{
		symbolEngine: symbolEngine{eng: eng},
		in:           make(chan task, m.cfg.QueueSize),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	m.workers[symbol] = w
	m.wg.Add(1)
	go m.run(w)

	m.log.Info("engine activated", applogger.String("symbol", symbol))
	return w, nil
}

func (m *EngineManager) run(w *worker) {
	defer m.wg.Done()
	defer close(w.done)

	if m.history != nil {
		m.warm(w)
	}
	for {
		select {
		case t := <-w.in:
			m.handle(w, t)
		case <-w.quit:
			for {
				select {
				case t := <-w.in:
					m.handle(w, t)
				default:
					return
				}
			}
		}
	}
}

func (m *EngineManager) warm(w *worker) {
	symbol := w.eng.Symbol()
	hist, err := m.history.GetLatestN(m.ctx, symbol, m.cfg.Engine.WindowSize)
	if err != nil {
		m.metrics.RecordError("warm_start")
		m.log.Warn("warm start failed", applogger.String("symbol", symbol), applogger.Error(err))
		return
	}
	n := w.eng.Warm(hist)
	m.log.Info("engine warmed", applogger.String("symbol", symbol), applogger.Int("observations", n))
}

func (m *EngineManager) handle(w *worker, t task) {
	symbol := w.eng.Symbol()
	defer func() {
		if r := recover(); r != nil {
			m.metrics.RecordError("engine_panic")
			m.log.Error("engine step panicked",
				applogger.String("symbol", symbol),
				applogger.Any("panic", r),
			)
		}
	}()

	if t.reset {
		w.eng.Reset()
		m.metrics.RecordOutcome(symbol, string(engine.OutcomeOK), engine.ReasonReset)
		m.log.Info("engine reset", applogger.String("symbol", symbol))
		return
	}

	res := m.steps.step(m.ctx, &w.symbolEngine, t.obs)
	if res.Decision != nil {
		m.emit(res.Decision)
	}
}

func (m *EngineManager) emit(d *models.Decision) {
	m.metrics.RecordDecision(d.Symbol, d.Direction.String(), d.PositionSize)
	m.log.Info("decision emitted",
		applogger.String("symbol", d.Symbol),
		applogger.String("hypothesis", d.HypothesisName()),
		applogger.Float64("size", d.PositionSize),
		applogger.Float64("confidence", d.Confidence),
		applogger.Float64("log_odds", d.LogOddsRatio),
		applogger.Bool("regime_stale", d.RegimeStale),
	)
	if err := m.sink.Emit(m.ctx, *d); err != nil {
		m.metrics.RecordError("sink")
		m.log.Error("decision sink failed", applogger.String("id", d.ID), applogger.Error(err))
	}
}
