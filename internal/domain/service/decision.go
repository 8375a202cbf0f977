package service

import (
	"context"
	"errors"

	"DecisionCore/internal/domain/models"
)

// ErrRegimeUnavailable is returned (wrapped) by regime providers that cannot produce a vector.
var ErrRegimeUnavailable = errors.New("regime probabilities unavailable")

// RegimeProvider estimates P(regime) from the recent observation window.
type RegimeProvider interface {
	RegimeProbabilities(ctx context.Context, symbol string, window []models.MarketObservation) (models.RegimeProbabilityVector, error)
}

// HypothesisProvider supplies the active candidate set for the current step.
type HypothesisProvider interface {
	ActiveHypotheses(ctx context.Context, symbol string, obs *models.MarketObservation) ([]models.TradingHypothesis, error)
}

// DecisionSink receives emitted decisions. Called in observation order per symbol.
type DecisionSink interface {
	Emit(ctx context.Context, d models.Decision) error
}
