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

func TestRedisCache_GetHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCache(db, "decisioncore")

	mock.ExpectGet("decisioncore:regime:BTC").SetVal(`{"probabilities":[0.5,0.5],"stale":false}`)

	var out regimeEntry
	require.NoError(t, rc.Get(context.Background(), "regime:BTC", &out))
	assert.Equal(t, []float64{0.5, 0.5}, out.Probabilities)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_GetMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCache(db, "decisioncore")

	mock.ExpectGet("decisioncore:absent").RedisNil()

	var out regimeEntry
	assert.ErrorIs(t, rc.Get(context.Background(), "absent", &out), ErrCacheMiss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_GetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCache(db, "decisioncore")

	boom := errors.New("connection reset")
	mock.ExpectGet("decisioncore:k").SetErr(boom)

	var s string
	err := rc.Get(context.Background(), "k", &s)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_SetEncodesJSON(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCache(db, "decisioncore")

	mock.ExpectSet("decisioncore:regime:ETH", []byte(`{"probabilities":[1],"stale":true}`), time.Minute).SetVal("OK")

	err := rc.Set(context.Background(), "regime:ETH", regimeEntry{Probabilities: []float64{1}, Stale: true}, time.Minute)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_Delete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCache(db, "decisioncore")

	mock.ExpectUnlink("decisioncore:a", "decisioncore:b").SetVal(2)

	ctx := context.Background()
	require.NoError(t, rc.Delete(ctx, "a", "b"))
	require.NoError(t, rc.Delete(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
