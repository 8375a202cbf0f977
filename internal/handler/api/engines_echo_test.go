package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	models "DecisionCore/internal/domain/models"
	domsvc "DecisionCore/internal/domain/service"
	"DecisionCore/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEngines struct{ mock.Mock }

func (m *mockEngines) Submit(ctx context.Context, obs *models.MarketObservation) error {
	return m.Called(ctx, obs).Error(0)
}

func (m *mockEngines) Reset(ctx context.Context, symbol string) error {
	return m.Called(ctx, symbol).Error(0)
}

func (m *mockEngines) Deactivate(ctx context.Context, symbol string) error {
	return m.Called(ctx, symbol).Error(0)
}

func (m *mockEngines) State(symbol string) (models.EngineState, error) {
	args := m.Called(symbol)
	return args.Get(0).(models.EngineState), args.Error(1)
}

func (m *mockEngines) States() []models.EngineState {
	return m.Called().Get(0).([]models.EngineState)
}

type mockDecisions struct{ mock.Mock }

func (m *mockDecisions) GetDecisions(ctx context.Context, p usecase.GetDecisionsParams) (*usecase.GetDecisionsResult, error) {
	args := m.Called(ctx, p)
	res, _ := args.Get(0).(*usecase.GetDecisionsResult)
	return res, args.Error(1)
}

type mockRegimeReader struct{ mock.Mock }

func (m *mockRegimeReader) LatestRegime(ctx context.Context, symbol string) (models.RegimeProbabilityVector, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(models.RegimeProbabilityVector), args.Error(1)
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(engines EngineController, decisions DecisionReader, regime RegimeReader) *echo.Echo {
	h := NewEnginesEchoHandler(nil, engines, decisions, regime, nil)
	h.now = func() time.Time { return now }
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestListEngines(t *testing.T) {
	eng := &mockEngines{}
	eng.On("States").Return([]models.EngineState{{Symbol: "BTCUSDT"}, {Symbol: "ETHUSDT"}})

	_, env := do(t, newTestServer(eng, nil, nil), http.MethodGet, "/api/engines", "")
	assert.Equal(t, http.StatusOK, env.Status)

	var list struct {
		Rows  []models.EngineState `json:"rows"`
		Total int64                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(2), list.Total)
	assert.Equal(t, "ETHUSDT", list.Rows[1].Symbol)
}

func TestGetEngine(t *testing.T) {
	eng := &mockEngines{}
	eng.On("State", "BTCUSDT").Return(models.EngineState{Symbol: "BTCUSDT", Phase: "TRACKING", Decisions: 3}, nil)
	eng.On("State", "DOGEUSDT").Return(models.EngineState{}, usecase.ErrEngineNotFound)
	e := newTestServer(eng, nil, nil)

	_, env := do(t, e, http.MethodGet, "/api/engines/btcusdt", "")
	require.Equal(t, http.StatusOK, env.Status)
	var st models.EngineState
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, uint64(3), st.Decisions)

	_, env = do(t, e, http.MethodGet, "/api/engines/DOGEUSDT", "")
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestResetAndDeactivate(t *testing.T) {
	eng := &mockEngines{}
	eng.On("Reset", mock.Anything, "BTCUSDT").Return(nil)
	eng.On("Deactivate", mock.Anything, "BTCUSDT").Return(nil)
	eng.On("Deactivate", mock.Anything, "ETHUSDT").Return(usecase.ErrEngineNotFound)
	e := newTestServer(eng, nil, nil)

	_, env := do(t, e, http.MethodPost, "/api/engines/BTCUSDT/reset", "")
	assert.Equal(t, http.StatusAccepted, env.Status)

	rec, _ := do(t, e, http.MethodDelete, "/api/engines/BTCUSDT", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, env = do(t, e, http.MethodDelete, "/api/engines/ETHUSDT", "")
	assert.Equal(t, http.StatusNotFound, env.Status)
	eng.AssertExpectations(t)
}

func TestSubmitObservation(t *testing.T) {
	eng := &mockEngines{}
	eng.On("Submit", mock.Anything, mock.MatchedBy(func(o *models.MarketObservation) bool {
		return o.Symbol == "BTCUSDT" && o.RSI == 40
	})).Return(nil).Once()
	eng.On("Submit", mock.Anything, mock.Anything).Return(models.ErrInvalidObservation).Once()
	eng.On("Submit", mock.Anything, mock.Anything).Return(usecase.ErrManagerClosed).Once()
	e := newTestServer(eng, nil, nil)

	body := `{"symbol":"btcusdt","timestamp":"2024-03-01T00:00:00Z","return":0.001,"rsi":40}`
	_, env := do(t, e, http.MethodPost, "/api/observations", body)
	require.Equal(t, http.StatusAccepted, env.Status)
	var ack models.ObservationAccepted
	require.NoError(t, json.Unmarshal(env.Data, &ack))
	assert.Equal(t, "BTCUSDT", ack.Symbol)
	assert.True(t, ack.Queued)

	_, env = do(t, e, http.MethodPost, "/api/observations", body)
	assert.Equal(t, http.StatusBadRequest, env.Status)

	_, env = do(t, e, http.MethodPost, "/api/observations", body)
	assert.Equal(t, http.StatusServiceUnavailable, env.Status)

	_, env = do(t, e, http.MethodPost, "/api/observations", `{"symbol":`)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestListDecisions(t *testing.T) {
	dec := &mockDecisions{}
	dec.On("GetDecisions", mock.Anything, usecase.GetDecisionsParams{
		Symbol: "BTCUSDT",
		From:   now.Add(-defaultDecisionSpan),
		To:     now,
		Limit:  100,
	}).Return(&usecase.GetDecisionsResult{Symbol: "BTCUSDT", Count: 1, Decisions: []*models.Decision{{ID: "d-1"}}}, nil)
	e := newTestServer(&mockEngines{}, dec, nil)

	rec, env := do(t, e, http.MethodGet, "/api/decisions?symbol=btcusdt", "")
	require.Equal(t, http.StatusOK, env.Status)
	assert.Equal(t, "private, max-age=5", rec.Header().Get(echo.HeaderCacheControl))
	var res usecase.GetDecisionsResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "d-1", res.Decisions[0].ID)

	_, env = do(t, e, http.MethodGet, "/api/decisions", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)

	_, env = do(t, e, http.MethodGet, "/api/decisions?symbol=BTCUSDT&limit=5000", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)

	_, env = do(t, newTestServer(&mockEngines{}, nil, nil), http.MethodGet, "/api/decisions?symbol=BTCUSDT", "")
	assert.Equal(t, http.StatusServiceUnavailable, env.Status)
}

func TestRegimeEndpoint(t *testing.T) {
	reg := &mockRegimeReader{}
	reg.On("LatestRegime", mock.Anything, "BTCUSDT").
		Return(models.RegimeProbabilityVector{Symbol: "BTCUSDT", Probabilities: []float64{0.7, 0.2, 0.1}}, nil)
	reg.On("LatestRegime", mock.Anything, "ETHUSDT").
		Return(models.RegimeProbabilityVector{}, domsvc.ErrRegimeUnavailable)
	reg.On("LatestRegime", mock.Anything, "SOLUSDT").
		Return(models.RegimeProbabilityVector{}, errors.New("boom"))
	e := newTestServer(&mockEngines{}, nil, reg)

	_, env := do(t, e, http.MethodGet, "/api/regime/BTCUSDT", "")
	require.Equal(t, http.StatusOK, env.Status)
	var v models.RegimeProbabilityVector
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, []float64{0.7, 0.2, 0.1}, v.Probabilities)

	_, env = do(t, e, http.MethodGet, "/api/regime/ETHUSDT", "")
	assert.Equal(t, http.StatusServiceUnavailable, env.Status)

	_, env = do(t, e, http.MethodGet, "/api/regime/SOLUSDT", "")
	assert.Equal(t, http.StatusInternalServerError, env.Status)
}

func TestRateLimited(t *testing.T) {
	h := NewEnginesEchoHandler(nil, &mockEngines{}, nil, nil, denyAll{})
	e := echo.New()
	h.RegisterRoutes(e)

	rec, env := do(t, e, http.MethodGet, "/api/engines", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, http.StatusTooManyRequests, env.Status)
}
