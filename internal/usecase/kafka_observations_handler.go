package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"DecisionCore/internal/domain/models"
	domrepo "DecisionCore/internal/domain/repository"
	pkgkafka "DecisionCore/pkg/kafka"
)

// ObservationSubmitter is what the handler feeds; EngineManager and
// RealtimePipeline both satisfy it.
type ObservationSubmitter interface {
	Submit(ctx context.Context, obs *models.MarketObservation) error
}

// KafkaObservationsHandler consumes observation messages, optionally stores
// them for warm start and submits them to the engines.
type KafkaObservationsHandler struct {
	topic   string
	next    ObservationSubmitter
	store   domrepo.ObservationStore
	metrics domrepo.Metrics
}

// NewKafkaObservationsHandler creates the handler. store may be nil.
func NewKafkaObservationsHandler(topic string, next ObservationSubmitter, store domrepo.ObservationStore, metrics domrepo.Metrics) *KafkaObservationsHandler {
	return &KafkaObservationsHandler{topic: topic, next: next, store: store, metrics: metrics}
}

func (h *KafkaObservationsHandler) Topic() string { return h.topic }

// Handle decodes one MarketObservation. Malformed or invalid payloads are
// permanent failures and go straight to the DLQ.
func (h *KafkaObservationsHandler) Handle(ctx context.Context, b []byte) error {
	var obs models.MarketObservation
	if err := json.Unmarshal(b, &obs); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode observation: %w", err))
	}
	if err := obs.Validate(); err != nil {
		h.metrics.RecordError("consumer_invalid")
		return pkgkafka.Permanent(err)
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(obs.Timestamp).Seconds())

	if h.store != nil {
		start := time.Now()
		if err := h.store.Store(ctx, &obs); err != nil {
			h.metrics.RecordError("consumer_store")
			return fmt.Errorf("store observation: %w", err)
		}
		h.metrics.RecordLatency("observation_insert_seconds", time.Since(start).Seconds())
	}

	if err := h.next.Submit(ctx, &obs); err != nil {
		if errors.Is(err, models.ErrInvalidObservation) {
			return pkgkafka.Permanent(err)
		}
		return fmt.Errorf("submit observation: %w", err)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaObservationsHandler)(nil)
