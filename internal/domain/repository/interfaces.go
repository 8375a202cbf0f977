package repository

import (
	"context"
	"time"

	"DecisionCore/internal/domain/models"
)

type ObservationStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.MarketObservation, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type DecisionPublisher interface {
	Publish(ctx context.Context, d *models.Decision) error
	PublishBatch(ctx context.Context, ds []*models.Decision) error
	Close() error
}

type DecisionStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, d *models.Decision) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Decision, error)
	Health(ctx context.Context) error // ping
	Close() error
}

type Metrics interface {
	RecordObservation(symbol string)
	RecordOutcome(symbol, outcome, reason string)
	RecordDecision(symbol, direction string, size float64)
	RecordBelief(symbol string, top, logOdds float64)
	RecordError(kind string)
	RecordRegimeStale(symbol string)
	RecordQueueDepth(symbol string, depth int)
	RecordLatency(op string, seconds float64)
}
