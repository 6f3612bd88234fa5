package api

import (
	"time"

	models "TrendEngine/internal/domain/models"
	domrepo "TrendEngine/internal/domain/repository"
	"TrendEngine/internal/usecase"
	xhttp "TrendEngine/pkg/http"
	xlogger "TrendEngine/pkg/logger"

	"github.com/labstack/echo/v4"
)

// EngineEchoHandler exposes the ops API: engine status, open positions,
// persisted candles and trades, and backtest runs.
type EngineEchoHandler struct {
	logger *xlogger.Logger
	status *usecase.StatusUseCase
}

func NewEngineEchoHandler(logger *xlogger.Logger, status *usecase.StatusUseCase) *EngineEchoHandler {
	return &EngineEchoHandler{logger: logger, status: status}
}

func (h *EngineEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/positions", h.Positions)
	g.GET("/candles", h.Candles)
	g.GET("/trades", h.Trades)
	g.POST("/backtest", h.Backtest)
	g.GET("/backtest/latest", h.LatestReport)
}

func (h *EngineEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *EngineEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.status.Status(c.Request().Context()))
}

func (h *EngineEchoHandler) Positions(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.status.Positions(c.Request().Context()))
}

func (h *EngineEchoHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to := parseRange(req.From, req.To)

	res, err := h.status.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:    req.Symbol,
		From:      from,
		To:        to,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
		Limit:     req.Limit,
	})
	if err != nil {
		h.logger.Error("candles usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) Trades(c echo.Context) error {
	req := &models.TradesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to := parseRange(req.From, req.To)

	trades, err := h.status.GetTrades(c.Request().Context(), req.Symbol, from, to, req.Limit)
	if err != nil {
		h.logger.Error("trades usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, trades, int64(len(trades)))
}

func (h *EngineEchoHandler) Backtest(c echo.Context) error {
	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, ok := xhttp.ParseTime(req.From)
	if !ok {
		return xhttp.BadRequestResponse(c, "invalid from time")
	}
	to, ok := xhttp.ParseTime(req.To)
	if !ok {
		return xhttp.BadRequestResponse(c, "invalid to time")
	}

	report, err := h.status.RunBacktest(c.Request().Context(), req.Symbol, from, to, domrepo.NormalizeTimeframe(req.TF))
	if err != nil {
		h.logger.Error("backtest error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *EngineEchoHandler) LatestReport(c echo.Context) error {
	req := &models.ReportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	report, err := h.status.LatestReport(c.Request().Context(), req.Symbol)
	if err != nil {
		return xhttp.NotFoundResponse(c, "no cached report")
	}
	return xhttp.SuccessResponse(c, report)
}

func parseRange(fromStr, toStr string) (time.Time, time.Time) {
	to := xhttp.ParseTimeDefault(toStr, time.Now().UTC())
	from := xhttp.ParseTimeDefault(fromStr, to.Add(-24*time.Hour))
	return from, to
}
