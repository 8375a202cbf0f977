package usecase

import (
	"context"
	"errors"
	"testing"

	"DecisionCore/internal/domain/models"
	"DecisionCore/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDecisionProcessorRoutesByBackend(t *testing.T) {
	d := models.Decision{ID: "d-1", Symbol: testSymbol}

	t.Run("kafka", func(t *testing.T) {
		pub := &mockPublisher{}
		pub.On("Publish", mock.Anything, mock.MatchedBy(func(x *models.Decision) bool { return x.ID == "d-1" })).Return(nil)
		p := NewDecisionProcessor(pub, nil, newRecorder(), config.BackendKafka)
		require.NoError(t, p.Emit(context.Background(), d))
		pub.AssertExpectations(t)
	})

	t.Run("clickhouse", func(t *testing.T) {
		store := &mockDecisionStore{}
		store.On("Store", mock.Anything, mock.Anything).Return(nil)
		p := NewDecisionProcessor(nil, store, newRecorder(), config.BackendClickHouse)
		require.NoError(t, p.Emit(context.Background(), d))
		store.AssertExpectations(t)
	})

	t.Run("both attempts each sink", func(t *testing.T) {
		pub := &mockPublisher{}
		pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
		store := &mockDecisionStore{}
		store.On("Store", mock.Anything, mock.Anything).Return(nil)
		p := NewDecisionProcessor(pub, store, newRecorder(), config.BackendBoth)

		err := p.Emit(context.Background(), d)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker down")
		store.AssertCalled(t, "Store", mock.Anything, mock.Anything)
	})

	t.Run("missing sink", func(t *testing.T) {
		p := NewDecisionProcessor(nil, nil, newRecorder(), config.BackendKafka)
		assert.Error(t, p.Emit(context.Background(), d))
	})

	t.Run("unknown backend", func(t *testing.T) {
		p := NewDecisionProcessor(nil, nil, newRecorder(), "s3")
		assert.Error(t, p.Emit(context.Background(), d))
	})
}

func TestDecisionProcessorClose(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Close").Return(nil)
	store := &mockDecisionStore{}
	store.On("Close").Return(nil)

	NewDecisionProcessor(pub, store, newRecorder(), config.BackendBoth).Close()
	pub.AssertExpectations(t)
	store.AssertExpectations(t)
}
