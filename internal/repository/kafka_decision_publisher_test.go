package repository

import (
	"context"
	"testing"

	"DecisionCore/internal/domain/models"
	pkgkafka "DecisionCore/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProducer struct{ mock.Mock }

func (m *mockProducer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return m.Called(ctx, topic, key, value).Error(0)
}

func (m *mockProducer) PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error {
	return m.Called(ctx, topic, messages).Error(0)
}

func (m *mockProducer) Close() error { return m.Called().Error(0) }

func TestKafkaPublisherKeysBySymbol(t *testing.T) {
	prod := &mockProducer{}
	d := &models.Decision{ID: "d-1", Symbol: "ETHUSDT"}
	prod.On("Publish", mock.Anything, "engine.decisions", []byte("ETHUSDT"), d).Return(nil)

	p := NewKafkaPublisher(prod, "engine.decisions")
	require.NoError(t, p.Publish(context.Background(), d))
	prod.AssertExpectations(t)
}

func TestKafkaPublisherBatch(t *testing.T) {
	prod := &mockProducer{}
	prod.On("PublishBatch", mock.Anything, "engine.decisions", mock.MatchedBy(func(msgs []pkgkafka.Message) bool {
		return len(msgs) == 2 && string(msgs[0].Key) == "BTCUSDT" && string(msgs[0].Headers[0].Value) == "d-1"
	})).Return(nil)
	prod.On("Close").Return(nil)

	p := NewKafkaPublisher(prod, "engine.decisions")
	require.NoError(t, p.PublishBatch(context.Background(), nil))
	require.NoError(t, p.PublishBatch(context.Background(), []*models.Decision{
		{ID: "d-1", Symbol: "BTCUSDT"}, nil, {ID: "d-2", Symbol: "BTCUSDT"},
	}))
	assert.NoError(t, p.Close())
	prod.AssertExpectations(t)
}
