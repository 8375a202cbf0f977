package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"DecisionCore/internal/domain/models"
	"DecisionCore/internal/engine"
	"DecisionCore/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
)

const testSymbol = "BTCUSDT"

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type mockRegime struct{ mock.Mock }

func (m *mockRegime) RegimeProbabilities(ctx context.Context, symbol string, window []models.MarketObservation) (models.RegimeProbabilityVector, error) {
	args := m.Called(ctx, symbol, window)
	return args.Get(0).(models.RegimeProbabilityVector), args.Error(1)
}

type mockHypotheses struct{ mock.Mock }

func (m *mockHypotheses) ActiveHypotheses(ctx context.Context, symbol string, obs *models.MarketObservation) ([]models.TradingHypothesis, error) {
	args := m.Called(ctx, symbol, obs)
	hyps, _ := args.Get(0).([]models.TradingHypothesis)
	return hyps, args.Error(1)
}

type mockObservationStore struct{ mock.Mock }

func (m *mockObservationStore) Init(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockObservationStore) Store(ctx context.Context, obs *models.MarketObservation) error {
	return m.Called(ctx, obs).Error(0)
}

func (m *mockObservationStore) StoreBatch(ctx context.Context, obs []*models.MarketObservation) error {
	return m.Called(ctx, obs).Error(0)
}

func (m *mockObservationStore) GetRange(ctx context.Context, symbol string, from, to time.Time) ([]models.MarketObservation, error) {
	args := m.Called(ctx, symbol, from, to)
	out, _ := args.Get(0).([]models.MarketObservation)
	return out, args.Error(1)
}

func (m *mockObservationStore) GetLatestN(ctx context.Context, symbol string, n int) ([]models.MarketObservation, error) {
	args := m.Called(ctx, symbol, n)
	out, _ := args.Get(0).([]models.MarketObservation)
	return out, args.Error(1)
}

type mockDecisionStore struct{ mock.Mock }

func (m *mockDecisionStore) Init(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockDecisionStore) Store(ctx context.Context, d *models.Decision) error {
	return m.Called(ctx, d).Error(0)
}

func (m *mockDecisionStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Decision, error) {
	args := m.Called(ctx, symbol, from, to, limit)
	out, _ := args.Get(0).([]*models.Decision)
	return out, args.Error(1)
}

func (m *mockDecisionStore) Health(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockDecisionStore) Close() error { return m.Called().Error(0) }

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, d *models.Decision) error {
	return m.Called(ctx, d).Error(0)
}

func (m *mockPublisher) PublishBatch(ctx context.Context, ds []*models.Decision) error {
	return m.Called(ctx, ds).Error(0)
}

func (m *mockPublisher) Close() error { return m.Called().Error(0) }

// captureSink records decisions in emission order.
type captureSink struct {
	mu        sync.Mutex
	decisions []models.Decision
}

func (s *captureSink) Emit(_ context.Context, d models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	return nil
}

func (s *captureSink) all() []models.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Decision(nil), s.decisions...)
}

func newRecorder() *metrics.Recorder {
	return metrics.NewWithRegisterer(prometheus.NewRegistry())
}

func testEngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Gamma = 1
	cfg.VolLookback = 5
	cfg.WindowSize = 50
	return cfg
}

func uniform3() models.RegimeProbabilityVector {
	return models.RegimeProbabilityVector{Symbol: testSymbol, Probabilities: []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}}
}

// bullish favours the long hypothesis on every feature.
func bullish(symbol string, i int) *models.MarketObservation {
	ret := 0.002
	if i%2 == 1 {
		ret = -0.001
	}
	return &models.MarketObservation{
		Symbol:             symbol,
		Timestamp:          t0.Add(time.Duration(i) * time.Minute),
		Return:             ret,
		LogVolatility:      -5.5,
		Slope:              0.3,
		OrderBookImbalance: 0.6,
		FundingRate:        -0.0005,
		RSI:                25,
	}
}

func longShort() []models.TradingHypothesis {
	return []models.TradingHypothesis{
		{Name: "long", Direction: models.Long, ExpectedReturn: 0.01, Confidence: 0.9},
		{Name: "short", Direction: models.Short, ExpectedReturn: 0.01, Confidence: 0.9},
	}
}

func sequentialIDs() engine.Option {
	var mu sync.Mutex
	n := 0
	return engine.WithIDGenerator(func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("d-%d", n)
	})
}

func closeCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
