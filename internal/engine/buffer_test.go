package engine

import (
	"testing"
	"time"

	"DecisionCore/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obsAt(i int, ret float64) models.MarketObservation {
	return models.MarketObservation{
		Symbol:    "ETHUSDT",
		Timestamp: time.Unix(1700000000, 0).Add(time.Duration(i) * time.Second),
		Return:    ret,
		RSI:       50,
	}
}

func TestBufferEvictsOldest(t *testing.T) {
	b := NewBuffer(3)
	_, ok := b.Last()
	assert.False(t, ok)

	for i := 0; i < 3; i++ {
		assert.False(t, b.Push(obsAt(i, float64(i))))
	}
	assert.True(t, b.Push(obsAt(3, 3)))
	assert.True(t, b.Push(obsAt(4, 4)))

	require.Equal(t, 3, b.Len())
	assert.Equal(t, []float64{2, 3, 4}, b.Returns(10))
	assert.Equal(t, []float64{3, 4}, b.Returns(2))

	snap := b.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, 2.0, snap[0].Return)
	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, 4.0, last.Return)
}

func TestBufferClear(t *testing.T) {
	b := NewBuffer(2)
	b.Push(obsAt(0, 1))
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Snapshot())
	assert.Equal(t, 2, b.Cap())
}
