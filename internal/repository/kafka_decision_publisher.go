package repository

import (
	"context"

	"DecisionCore/internal/domain/models"
	domrepo "DecisionCore/internal/domain/repository"
	pkgkafka "DecisionCore/pkg/kafka"

	"github.com/segmentio/kafka-go"
)

// Producer is the subset of pkg/kafka.Producer the publisher uses.
type Producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaPublisher publishes decisions keyed by symbol so a symbol's decisions
// land on one partition in emission order.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, d *models.Decision) error {
	return p.producer.Publish(ctx, p.topic, []byte(d.Symbol), d)
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, ds []*models.Decision) error {
	if len(ds) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(ds))
	for _, d := range ds {
		if d == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{
			Key:   []byte(d.Symbol),
			Value: d,
			Headers: []kafka.Header{
				{Key: "decision_id", Value: []byte(d.ID)},
				{Key: "hypothesis", Value: []byte(d.HypothesisName())},
			},
		})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var (
	_ domrepo.DecisionPublisher = (*KafkaPublisher)(nil)
	_ Producer                  = (*pkgkafka.Producer)(nil)
)
