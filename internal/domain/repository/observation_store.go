package repository

import (
	"context"
	"time"

	"DecisionCore/internal/domain/models"
)

// ObservationStore persists observations and serves recent history for warm start.
type ObservationStore interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, obs *models.MarketObservation) error
	StoreBatch(ctx context.Context, obs []*models.MarketObservation) error
	GetRange(ctx context.Context, symbol string, from, to time.Time) ([]models.MarketObservation, error)
	// GetLatestN returns up to n most recent observations in ascending time order.
	GetLatestN(ctx context.Context, symbol string, n int) ([]models.MarketObservation, error)
}
