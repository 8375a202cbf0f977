package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockResetter struct{ mock.Mock }

func (m *mockResetter) Reset(ctx context.Context, symbol string) error {
	return m.Called(ctx, symbol).Error(0)
}

type mockInvalidator struct{ mock.Mock }

func (m *mockInvalidator) Invalidate(ctx context.Context, symbol string) error {
	return m.Called(ctx, symbol).Error(0)
}

func TestResetEngineJob(t *testing.T) {
	eng := &mockResetter{}
	eng.On("Reset", mock.Anything, "BTCUSDT").Return(nil).Once()
	inv := &mockInvalidator{}
	inv.On("Invalidate", mock.Anything, "BTCUSDT").Return(errors.New("redis down")).Once()

	job := NewResetEngineJob(eng, inv, nil)
	assert.Equal(t, JobEngineReset, job.Type())

	payload := json.RawMessage(`{"symbol":" btcusdt ","reason":"hypotheses rotated"}`)
	require.NoError(t, job.Handle(context.Background(), payload))
	eng.AssertExpectations(t)
	inv.AssertExpectations(t)
}

func TestResetEngineJobMissingEngine(t *testing.T) {
	eng := &mockResetter{}
	eng.On("Reset", mock.Anything, "ETHUSDT").Return(ErrEngineNotFound)
	eng.On("Reset", mock.Anything, "SOLUSDT").Return(ErrManagerClosed)
	job := NewResetEngineJob(eng, nil, nil)

	assert.NoError(t, job.Handle(context.Background(), EngineResetRequest{Symbol: "ETHUSDT"}))
	assert.ErrorIs(t, job.Handle(context.Background(), EngineResetRequest{Symbol: "SOLUSDT"}), ErrManagerClosed)

	// no symbol, nothing to reset
	assert.NoError(t, job.Handle(context.Background(), EngineResetRequest{}))
	eng.AssertNumberOfCalls(t, "Reset", 2)

	assert.Error(t, job.Handle(context.Background(), json.RawMessage(`[`)))
}

func TestLogDigestJob(t *testing.T) {
	job := NewLogDigestJob("logs.aggregated", nil)
	assert.Equal(t, "logs.aggregated", job.Type())

	payload := json.RawMessage(`[{"level":"error","message":"sink failed","count":4}]`)
	assert.NoError(t, job.Handle(context.Background(), payload))
	assert.Error(t, job.Handle(context.Background(), 7))
}
