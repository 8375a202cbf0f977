package api

import (
	"context"
	"net/http"
	"time"

	models "DecisionCore/internal/domain/models"
	domsvc "DecisionCore/internal/domain/service"
	"DecisionCore/internal/usecase"
	xhttp "DecisionCore/pkg/http"
	"DecisionCore/pkg/http/middleware"
	xlogger "DecisionCore/pkg/logger"
	"DecisionCore/pkg/util"

	"github.com/labstack/echo/v4"
)

const defaultDecisionSpan = 24 * time.Hour

// EngineController is the part of the engine manager the API drives.
type EngineController interface {
	Submit(ctx context.Context, obs *models.MarketObservation) error
	Reset(ctx context.Context, symbol string) error
	Deactivate(ctx context.Context, symbol string) error
	State(symbol string) (models.EngineState, error)
	States() []models.EngineState
}

// RegimeReader serves the current regime vector of a symbol.
type RegimeReader interface {
	LatestRegime(ctx context.Context, symbol string) (models.RegimeProbabilityVector, error)
}

// DecisionReader serves the decision audit trail.
type DecisionReader interface {
	GetDecisions(ctx context.Context, p usecase.GetDecisionsParams) (*usecase.GetDecisionsResult, error)
}

// EnginesEchoHandler exposes engine state, control and ingestion over HTTP.
type EnginesEchoHandler struct {
	logger    *xlogger.Logger
	engines   EngineController
	decisions DecisionReader
	regime    RegimeReader
	limiter   middleware.KeyLimiter
	errs      *xhttp.ErrorMap
	now       func() time.Time
}

// NewEnginesEchoHandler creates the handler. decisions, regime and limiter may be nil.
func NewEnginesEchoHandler(logger *xlogger.Logger, engines EngineController, decisions DecisionReader, regime RegimeReader, limiter middleware.KeyLimiter) *EnginesEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	errs := xhttp.NewErrorMap().
		NotFound(usecase.ErrEngineNotFound).
		BadRequest(models.ErrInvalidObservation, models.ErrStaleObservation).
		Unavailable(usecase.ErrManagerClosed, domsvc.ErrRegimeUnavailable, context.DeadlineExceeded)
	return &EnginesEchoHandler{
		logger:    logger,
		engines:   engines,
		decisions: decisions,
		regime:    regime,
		limiter:   limiter,
		errs:      errs,
		now:       time.Now,
	}
}

func (h *EnginesEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	if h.limiter != nil {
		g.Use(middleware.RateLimit(h.limiter))
	}
	g.GET("/engines", h.ListEngines)
	g.GET("/engines/:symbol", h.GetEngine)
	g.POST("/engines/:symbol/reset", h.ResetEngine)
	g.DELETE("/engines/:symbol", h.DeactivateEngine)
	g.POST("/observations", h.SubmitObservation)
	g.GET("/decisions", h.ListDecisions)
	g.GET("/regime/:symbol", h.Regime)
}

func (h *EnginesEchoHandler) ListEngines(c echo.Context) error {
	states := h.engines.States()
	return xhttp.ListResponse(c, states, int64(len(states)))
}

func (h *EnginesEchoHandler) GetEngine(c echo.Context) error {
	req := &models.SymbolParam{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, err := h.engines.State(util.NormalizeSymbol(req.Symbol))
	if err != nil {
		return h.fail(c, "get engine", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *EnginesEchoHandler) ResetEngine(c echo.Context) error {
	req := &models.SymbolParam{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := util.NormalizeSymbol(req.Symbol)
	if err := h.engines.Reset(c.Request().Context(), symbol); err != nil {
		return h.fail(c, "reset engine", err)
	}
	h.logger.Info("engine reset requested", xlogger.String("symbol", symbol), xlogger.String("remote", c.RealIP()))
	return xhttp.AcceptedResponse(c, map[string]string{"symbol": symbol, "status": "reset_queued"})
}

func (h *EnginesEchoHandler) DeactivateEngine(c echo.Context) error {
	req := &models.SymbolParam{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.engines.Deactivate(c.Request().Context(), util.NormalizeSymbol(req.Symbol)); err != nil {
		return h.fail(c, "deactivate engine", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *EnginesEchoHandler) SubmitObservation(c echo.Context) error {
	obs := &models.MarketObservation{}
	if verr := xhttp.ReadAndValidateRequest(c, obs); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	obs.Symbol = util.NormalizeSymbol(obs.Symbol)
	if err := h.engines.Submit(c.Request().Context(), obs); err != nil {
		return h.fail(c, "submit observation", err)
	}
	return xhttp.AcceptedResponse(c, models.ObservationAccepted{
		Symbol:    obs.Symbol,
		Timestamp: obs.Timestamp.UTC().Format(time.RFC3339Nano),
		Queued:    true,
	})
}

func (h *EnginesEchoHandler) ListDecisions(c echo.Context) error {
	if h.decisions == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("decision store not configured"))
	}
	req := &models.DecisionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to := util.ResolveRange(req.From, req.To, h.now(), defaultDecisionSpan)
	res, err := h.decisions.GetDecisions(c.Request().Context(), usecase.GetDecisionsParams{
		Symbol: util.NormalizeSymbol(req.Symbol),
		From:   from,
		To:     to,
		Limit:  req.Limit,
	})
	if err != nil {
		return h.fail(c, "list decisions", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, res)
}

func (h *EnginesEchoHandler) Regime(c echo.Context) error {
	if h.regime == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("regime inspection not configured"))
	}
	req := &models.SymbolParam{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.regime.LatestRegime(c.Request().Context(), util.NormalizeSymbol(req.Symbol))
	if err != nil {
		return h.fail(c, "regime", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, v)
}

func (h *EnginesEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := h.errs.Resolve(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" refused", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

var _ xhttp.Handler = (*EnginesEchoHandler)(nil)
