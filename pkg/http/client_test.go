package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type detectReq struct {
	Symbol string `json:"symbol"`
}

type detectResp struct {
	Probabilities []float64 `json:"probabilities"`
}

func TestClientPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "decisioncore-test", r.Header.Get("User-Agent"))

		var in detectReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "BTCUSDT", in.Symbol)
		_ = json.NewEncoder(w).Encode(detectResp{Probabilities: []float64{0.5, 0.3, 0.2}})
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(time.Second), WithHeader("User-Agent", "decisioncore-test"))
	var out detectResp
	require.NoError(t, c.PostJSON(context.Background(), srv.URL+"/regime/detect", detectReq{Symbol: "BTCUSDT"}, &out))
	assert.Equal(t, []float64{0.5, 0.3, 0.2}, out.Probabilities)
}

func TestClientStatusError(t *testing.T) {
	var code atomic.Int32
	code.Store(http.StatusServiceUnavailable)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "warming up", int(code.Load()))
	}))
	defer srv.Close()

	c := NewClient(WithHTTPClient(srv.Client()))
	err := c.GetJSON(context.Background(), srv.URL, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, "warming up", se.Body)
	assert.True(t, se.Retryable())

	code.Store(http.StatusUnprocessableEntity)
	err = c.GetJSON(context.Background(), srv.URL, nil)
	require.True(t, errors.As(err, &se))
	assert.False(t, se.Retryable())
}
