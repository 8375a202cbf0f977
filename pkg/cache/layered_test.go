package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayeredCache_ReadsThroughOnce(t *testing.T) {
	db, mock := redismock.NewClientMock()
	lc := NewLayeredCache(NewRedisCache(db, "dc"), WithL1TTL(time.Minute))
	defer lc.Close()
	ctx := context.Background()

	mock.ExpectGet("dc:regime:BTCUSDT").SetVal(`{"probabilities":[0.6,0.4],"stale":false}`)

	for i := 0; i < 3; i++ {
		var out regimeEntry
		require.NoError(t, lc.Get(ctx, "regime:BTCUSDT", &out))
		assert.Equal(t, []float64{0.6, 0.4}, out.Probabilities)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLayeredCache_SetFailureSkipsL1(t *testing.T) {
	db, mock := redismock.NewClientMock()
	lc := NewLayeredCache(NewRedisCache(db, "dc"))
	defer lc.Close()
	ctx := context.Background()

	mock.ExpectSet("dc:k", []byte("v"), time.Minute).SetErr(errors.New("READONLY"))
	require.Error(t, lc.Set(ctx, "k", "v", time.Minute))
	assert.Zero(t, lc.l1.Len())
}

func TestLayeredCache_DeleteBothLayers(t *testing.T) {
	db, mock := redismock.NewClientMock()
	lc := NewLayeredCache(NewRedisCache(db, "dc"))
	defer lc.Close()
	ctx := context.Background()

	mock.ExpectSet("dc:k", []byte("v"), 10*time.Second).SetVal("OK")
	mock.ExpectUnlink("dc:k").SetVal(1)
	mock.ExpectGet("dc:k").RedisNil()

	require.NoError(t, lc.Set(ctx, "k", "v", 10*time.Second))
	require.NoError(t, lc.Delete(ctx, "k"))

	var s string
	assert.ErrorIs(t, lc.Get(ctx, "k", &s), ErrCacheMiss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "regime:BTCUSDT", Key("regime", "BTCUSDT"))
}
