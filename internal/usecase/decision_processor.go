package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"DecisionCore/internal/domain/models"
	drepo "DecisionCore/internal/domain/repository"
	domsvc "DecisionCore/internal/domain/service"
	"DecisionCore/pkg/config"
)

// DecisionProcessor routes emitted decisions to the configured backend:
// Kafka, ClickHouse or both.
type DecisionProcessor struct {
	pub     drepo.DecisionPublisher
	store   drepo.DecisionStore
	metrics drepo.Metrics
	backend string
}

// NewDecisionProcessor creates a new DecisionProcessor instance. pub or store
// may be nil when the backend does not use them.
func NewDecisionProcessor(
	pub drepo.DecisionPublisher,
	store drepo.DecisionStore,
	metrics drepo.Metrics,
	backend string,
) *DecisionProcessor {
	return &DecisionProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

// Emit implements domain.service.DecisionSink.
func (p *DecisionProcessor) Emit(ctx context.Context, d models.Decision) error {
	start := time.Now()
	var err error

	switch p.backend {
	case config.BackendKafka:
		err = p.publish(ctx, &d)
	case config.BackendClickHouse:
		err = p.persist(ctx, &d)
	case config.BackendBoth:
		// both sinks are attempted even if one fails
		err = errors.Join(p.publish(ctx, &d), p.persist(ctx, &d))
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("emit")
		return fmt.Errorf("emit decision %s: %w", d.ID, err)
	}
	p.metrics.RecordLatency("emit", time.Since(start).Seconds())
	return nil
}

func (p *DecisionProcessor) publish(ctx context.Context, d *models.Decision) error {
	if p.pub == nil {
		return fmt.Errorf("decision publisher not configured")
	}
	return p.pub.Publish(ctx, d)
}

func (p *DecisionProcessor) persist(ctx context.Context, d *models.Decision) error {
	if p.store == nil {
		return fmt.Errorf("decision store not configured")
	}
	return p.store.Store(ctx, d)
}

// Close closes underlying resources if available.
func (p *DecisionProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

var _ domsvc.DecisionSink = (*DecisionProcessor)(nil)
