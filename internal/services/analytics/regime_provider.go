package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"DecisionCore/internal/domain/models"
	domsvc "DecisionCore/internal/domain/service"
	svcmetrics "DecisionCore/internal/service/metrics"
	"DecisionCore/internal/services/features"
	"DecisionCore/pkg/cache"
	applogger "DecisionCore/pkg/logger"
)

// HTTPRegimeProvider asks the regime service for P(regime) given the
// window's returns.
type HTTPRegimeProvider struct {
	base    *HTTPServiceBase
	regimes int
	now     func() time.Time
}

// NewHTTPRegimeProvider expects vectors of length regimes (0 disables the check).
func NewHTTPRegimeProvider(base *HTTPServiceBase, regimes int) *HTTPRegimeProvider {
	svcmetrics.Register()
	return &HTTPRegimeProvider{base: base, regimes: regimes, now: time.Now}
}

type regimeRequest struct {
	Symbol  string    `json:"symbol"`
	Returns []float64 `json:"returns"`
}

type regimeResponse struct {
	State      string    `json:"state"`
	Prob       []float64 `json:"prob"`
	Confidence float64   `json:"confidence"`
}

func (p *HTTPRegimeProvider) RegimeProbabilities(ctx context.Context, symbol string, window []models.MarketObservation) (models.RegimeProbabilityVector, error) {
	var rr regimeResponse
	req := regimeRequest{Symbol: symbol, Returns: features.Returns(window)}
	start := time.Now()
	err := p.base.PostJSONWithRetry(ctx, "/regime/detect", req, &rr)
	svcmetrics.ObserveRegimeCall(start, err)
	if err != nil {
		return models.RegimeProbabilityVector{}, fmt.Errorf("%w: %v", domsvc.ErrRegimeUnavailable, err)
	}

	v := models.RegimeProbabilityVector{
		Symbol:        symbol,
		Timestamp:     p.now(),
		Probabilities: rr.Prob,
	}
	if n := len(window); n > 0 {
		v.Timestamp = window[n-1].Timestamp
	}
	if err := v.Validate(); err != nil {
		return models.RegimeProbabilityVector{}, fmt.Errorf("%w: %v", domsvc.ErrRegimeUnavailable, err)
	}
	if p.regimes > 0 && v.Len() != p.regimes {
		return models.RegimeProbabilityVector{}, fmt.Errorf("%w: got %d regimes, want %d", domsvc.ErrRegimeUnavailable, v.Len(), p.regimes)
	}
	return v, nil
}

// CachedRegimeProvider remembers the last good vector per symbol and serves it,
// flagged Stale, when the wrapped provider fails.
type CachedRegimeProvider struct {
	next domsvc.RegimeProvider
	c    cache.Service
	ttl  time.Duration
	log  *applogger.Logger
}

func NewCachedRegimeProvider(next domsvc.RegimeProvider, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedRegimeProvider {
	if l == nil {
		l = applogger.Nop()
	}
	svcmetrics.Register()
	return &CachedRegimeProvider{next: next, c: c, ttl: ttl, log: l}
}

func (p *CachedRegimeProvider) RegimeProbabilities(ctx context.Context, symbol string, window []models.MarketObservation) (models.RegimeProbabilityVector, error) {
	v, err := p.next.RegimeProbabilities(ctx, symbol, window)
	if err == nil {
		if cerr := p.c.Set(ctx, regimeKey(symbol), v, p.ttl); cerr != nil {
			p.log.Warn("regime cache write failed", applogger.String("symbol", symbol), applogger.Error(cerr))
		}
		return v, nil
	}

	var last models.RegimeProbabilityVector
	if cerr := p.c.Get(ctx, regimeKey(symbol), &last); cerr != nil {
		if !errors.Is(cerr, cache.ErrCacheMiss) {
			p.log.Warn("regime cache read failed", applogger.String("symbol", symbol), applogger.Error(cerr))
		}
		svcmetrics.RegimeFallbacks.WithLabelValues(symbol, "miss").Inc()
		return models.RegimeProbabilityVector{}, err
	}
	svcmetrics.RegimeFallbacks.WithLabelValues(symbol, "stale").Inc()
	last.Stale = true
	return last, nil
}

// Invalidate drops the remembered vector for symbol.
func (p *CachedRegimeProvider) Invalidate(ctx context.Context, symbol string) error {
	return p.c.Delete(ctx, regimeKey(symbol))
}

func regimeKey(symbol string) string {
	return cache.Key("regime", symbol)
}

// StaticRegimeProvider always returns the same distribution.
type StaticRegimeProvider struct {
	probs []float64
}

func NewStaticRegimeProvider(probs []float64) *StaticRegimeProvider {
	cp := make([]float64, len(probs))
	copy(cp, probs)
	return &StaticRegimeProvider{probs: cp}
}

func (p *StaticRegimeProvider) RegimeProbabilities(_ context.Context, symbol string, window []models.MarketObservation) (models.RegimeProbabilityVector, error) {
	v := models.RegimeProbabilityVector{Symbol: symbol, Probabilities: append([]float64(nil), p.probs...)}
	if n := len(window); n > 0 {
		v.Timestamp = window[n-1].Timestamp
	}
	if err := v.Validate(); err != nil {
		return models.RegimeProbabilityVector{}, fmt.Errorf("%w: %v", domsvc.ErrRegimeUnavailable, err)
	}
	return v, nil
}

var (
	_ domsvc.RegimeProvider = (*HTTPRegimeProvider)(nil)
	_ domsvc.RegimeProvider = (*CachedRegimeProvider)(nil)
	_ domsvc.RegimeProvider = (*StaticRegimeProvider)(nil)
)
