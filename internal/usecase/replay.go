package usecase

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"DecisionCore/internal/domain/models"
	drepo "DecisionCore/internal/domain/repository"
	domsvc "DecisionCore/internal/domain/service"
	"DecisionCore/internal/engine"
	applogger "DecisionCore/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const maxReplayLine = 1 << 20

// ReplaySummary counts what a replay run produced.
type ReplaySummary struct {
	Lines     int                       `json:"lines"`
	Malformed int                       `json:"malformed"`
	Symbols   []string                  `json:"symbols"`
	Decisions int                       `json:"decisions"`
	Outcomes  map[engine.Outcome]int    `json:"outcomes"`
	Reasons   map[string]int            `json:"reasons"`
	PerSymbol map[string]map[string]int `json:"per_symbol"`
}

// Replayer feeds recorded observations through fresh engines offline. Each
// symbol gets its own engine and goroutine; within a symbol the file order is kept.
type Replayer struct {
	cfg   engine.Config
	steps *stepRunner
	sink  domsvc.DecisionSink
	log   *applogger.Logger

	mu      sync.Mutex
	summary ReplaySummary
}

// ReplayOption configures Replayer.
type ReplayOption func(*Replayer)

// WithReplayMetrics records replay steps like live ones. Without it nothing
// is recorded.
func WithReplayMetrics(m drepo.Metrics) ReplayOption {
	return func(p *Replayer) { p.steps.metrics = m }
}

func NewReplayer(cfg engine.Config, regime domsvc.RegimeProvider, hyps domsvc.HypothesisProvider, sink domsvc.DecisionSink, log *applogger.Logger, opts ...ReplayOption) *Replayer {
	if log == nil {
		log = applogger.Nop()
	}
	p := &Replayer{
		cfg:   cfg,
		steps: &stepRunner{regime: regime, hyps: hyps, metrics: nopMetrics{}, log: log},
		sink:  sink,
		log:   log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run reads JSON lines from r and replays them. Malformed lines are counted and skipped.
func (p *Replayer) Run(ctx context.Context, r io.Reader) (*ReplaySummary, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	p.summary = ReplaySummary{
		Outcomes:  make(map[engine.Outcome]int),
		Reasons:   make(map[string]int),
		PerSymbol: make(map[string]map[string]int),
	}

	bySymbol := make(map[string][]models.MarketObservation)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxReplayLine)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		p.summary.Lines++
		var obs models.MarketObservation
		if err := json.Unmarshal(line, &obs); err != nil || obs.Symbol == "" {
			p.summary.Malformed++
			continue
		}
		bySymbol[obs.Symbol] = append(bySymbol[obs.Symbol], obs)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read replay input: %w", err)
	}

	for s := range bySymbol {
		p.summary.Symbols = append(p.summary.Symbols, s)
	}
	sort.Strings(p.summary.Symbols)

	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range p.summary.Symbols {
		symbol, series := symbol, bySymbol[symbol]
		g.Go(func() error { return p.replaySymbol(gctx, symbol, series) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := p.summary
	return &out, nil
}

func (p *Replayer) replaySymbol(ctx context.Context, symbol string, series []models.MarketObservation) error {
	// decisions are stamped with observation time so reruns are reproducible
	var current time.Time
	eng, err := engine.New(symbol, p.cfg, engine.WithClock(func() time.Time { return current }))
	if err != nil {
		return err
	}

	se := &symbolEngine{eng: eng}
	for _, obs := range series {
		if err := ctx.Err(); err != nil {
			return err
		}
		current = obs.Timestamp

		res := p.steps.step(ctx, se, obs)
		p.count(symbol, res)
		if res.Decision == nil {
			continue
		}
		p.steps.metrics.RecordDecision(symbol, res.Decision.Direction.String(), res.Decision.PositionSize)
		if err := p.sink.Emit(ctx, *res.Decision); err != nil {
			return fmt.Errorf("emit %s decision: %w", symbol, err)
		}
	}
	p.log.Info("replay finished",
		applogger.String("symbol", symbol),
		applogger.Int("observations", len(series)),
	)
	return nil
}

func (p *Replayer) count(symbol string, res engine.StepResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summary.Outcomes[res.Outcome]++
	if res.Reason != "" {
		p.summary.Reasons[res.Reason]++
	}
	per, ok := p.summary.PerSymbol[symbol]
	if !ok {
		per = make(map[string]int)
		p.summary.PerSymbol[symbol] = per
	}
	per[string(res.Outcome)]++
	if res.Decision != nil {
		p.summary.Decisions++
		per["decisions"]++
	}
}

// WriterSink writes each decision as one JSON line.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

func (s *WriterSink) Emit(_ context.Context, d models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(d)
}

var _ domsvc.DecisionSink = (*WriterSink)(nil)
