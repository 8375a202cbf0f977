package usecase

import (
	"context"
	"fmt"

	"DecisionCore/internal/domain/models"
	domrepo "DecisionCore/internal/domain/repository"
	domsvc "DecisionCore/internal/domain/service"
)

// RegimeInspector answers "what regime is symbol in right now" from stored
// history, outside of any engine step.
type RegimeInspector struct {
	store  domrepo.ObservationStore
	regime domsvc.RegimeProvider
	window int
}

func NewRegimeInspector(store domrepo.ObservationStore, regime domsvc.RegimeProvider, window int) *RegimeInspector {
	if window < 2 {
		window = 2
	}
	return &RegimeInspector{store: store, regime: regime, window: window}
}

func (r *RegimeInspector) LatestRegime(ctx context.Context, symbol string) (models.RegimeProbabilityVector, error) {
	if symbol == "" {
		return models.RegimeProbabilityVector{}, fmt.Errorf("symbol required")
	}
	if r.store == nil {
		return models.RegimeProbabilityVector{}, fmt.Errorf("observation store not configured")
	}
	window, err := r.store.GetLatestN(ctx, symbol, r.window)
	if err != nil {
		return models.RegimeProbabilityVector{}, fmt.Errorf("load window: %w", err)
	}
	if len(window) < 2 {
		return models.RegimeProbabilityVector{}, fmt.Errorf("%w: %d observations stored for %s", domsvc.ErrRegimeUnavailable, len(window), symbol)
	}
	return r.regime.RegimeProbabilities(ctx, symbol, window)
}
