package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	applogger "DecisionCore/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverWritesEnvelope(t *testing.T) {
	e := echo.New()
	e.Use(RequestID(), Recover(applogger.Nop()))
	e.GET("/api/engines/:symbol", func(echo.Context) error { panic("nil engine") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/engines/BTCUSDT", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	var body struct {
		Status int `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusInternalServerError, body.Status)
}

func TestCORSPreflight(t *testing.T) {
	e := echo.New()
	e.Use(CORS([]string{"https://desk.example.com"}, 600))
	e.POST("/api/observations", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/observations", nil)
	req.Header.Set(echo.HeaderOrigin, "https://desk.example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://desk.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "600", rec.Header().Get(echo.HeaderAccessControlMaxAge))
}

type countingLimiter struct{ left int }

func (l *countingLimiter) Allow(string) bool {
	l.left--
	return l.left >= 0
}

func TestRateLimit(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(&countingLimiter{left: 1}))
	e.GET("/api/engines", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	first := httptest.NewRecorder()
	e.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/engines", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	e.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/engines", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
