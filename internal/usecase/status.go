package usecase

import (
	"context"
	"fmt"
	"time"

	"TrendEngine/internal/domain/models"
	drepo "TrendEngine/internal/domain/repository"
	"TrendEngine/internal/engine/position"
	"TrendEngine/internal/engine/risk"
	"TrendEngine/internal/engine/strategy"
	"TrendEngine/internal/engine/trend"
	"TrendEngine/pkg/cache"
	"TrendEngine/pkg/util"
)

const reportTTL = 24 * time.Hour

// Connectable reports feed connectivity.
type Connectable interface {
	IsConnected() bool
}

// BacktestRunner replays a historical range through the decision pipeline.
type BacktestRunner interface {
	Run(ctx context.Context, symbol string, from, to time.Time, tf drepo.Timeframe) (*models.BacktestReport, error)
}

// StatusUseCase aggregates engine state for the ops API.
type StatusUseCase struct {
	riskMgr  *risk.Manager
	tracker  *position.Tracker
	engine   *strategy.Engine
	macro    *trend.MacroCell
	history  drepo.TradeHistory
	feed     Connectable
	backtest BacktestRunner
	reports  cache.Service
}

// NewStatusUseCase creates the aggregator. history, feed, backtest and
// reports may be nil depending on deployment mode.
func NewStatusUseCase(riskMgr *risk.Manager, tracker *position.Tracker, engine *strategy.Engine,
	macro *trend.MacroCell, history drepo.TradeHistory, feed Connectable,
	backtest BacktestRunner, reports cache.Service) *StatusUseCase {
	return &StatusUseCase{
		riskMgr:  riskMgr,
		tracker:  tracker,
		engine:   engine,
		macro:    macro,
		history:  history,
		feed:     feed,
		backtest: backtest,
		reports:  reports,
	}
}

// EngineStatus is the ops status document.
type EngineStatus struct {
	FeedConnected bool       `json:"feed_connected"`
	MacroTrend    string     `json:"macro_trend"`
	OpenPositions int        `json:"open_positions"`
	Risk          risk.State `json:"risk"`
	HistoryOK     bool       `json:"history_ok"`
	Time          time.Time  `json:"time"`
}

// Status returns the current engine status.
func (uc *StatusUseCase) Status(ctx context.Context) *EngineStatus {
	st := &EngineStatus{
		MacroTrend:    uc.macro.Get(),
		OpenPositions: uc.tracker.Count(),
		Risk:          uc.riskMgr.Snapshot(),
		Time:          time.Now().UTC(),
	}
	if uc.feed != nil {
		st.FeedConnected = uc.feed.IsConnected()
	}
	if uc.history != nil {
		st.HistoryOK = uc.history.Health(ctx) == nil
	}
	return st
}

// PositionView is an open position with live PnL.
type PositionView struct {
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	EntryPrice    float64   `json:"entry_price"`
	Quantity      float64   `json:"quantity"`
	LastPrice     float64   `json:"last_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	EntryTime     time.Time `json:"entry_time"`
}

// Positions returns the open positions with unrealized PnL at last price.
func (uc *StatusUseCase) Positions(ctx context.Context) []PositionView {
	all := uc.tracker.All()
	out := make([]PositionView, 0, len(all))
	for symbol, pos := range all {
		last := uc.engine.LastPrice(symbol)
		out = append(out, PositionView{
			Symbol:        symbol,
			Side:          string(pos.Side),
			EntryPrice:    pos.EntryPrice,
			Quantity:      pos.Quantity,
			LastPrice:     last,
			UnrealizedPnL: uc.tracker.UnrealizedPnL(symbol, last),
			EntryTime:     pos.EntryTime,
		})
	}
	return out
}

// GetCandlesParams bounds a candle query.
type GetCandlesParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe drepo.Timeframe
	Limit     int
}

// GetCandlesResult is a bounded candle query result.
type GetCandlesResult struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	From      time.Time    `json:"from"`
	To        time.Time    `json:"to"`
	Count     int          `json:"count"`
	Candles   []models.Bar `json:"candles"`
}

// GetCandles queries persisted candles with clamped limits.
func (uc *StatusUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if uc.history == nil {
		return nil, fmt.Errorf("history store disabled")
	}
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = 10000
	}
	if p.Limit > 50000 {
		p.Limit = 50000
	}
	p.From, p.To = util.AlignFromTo(p.From, p.To, string(p.Timeframe))

	bars, err := uc.history.QueryBars(ctx, p.Symbol, p.From, p.To, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if len(bars) > p.Limit {
		bars = bars[:p.Limit]
	}

	return &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		From:      p.From,
		To:        p.To,
		Count:     len(bars),
		Candles:   bars,
	}, nil
}

// GetTrades queries closed trades, newest first.
func (uc *StatusUseCase) GetTrades(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.TradeEntry, error) {
	if uc.history == nil {
		return nil, fmt.Errorf("history store disabled")
	}
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 10000 {
		limit = 10000
	}
	return uc.history.QueryTrades(ctx, symbol, from, to, limit)
}

// RunBacktest replays a range, caches the report and returns it.
func (uc *StatusUseCase) RunBacktest(ctx context.Context, symbol string, from, to time.Time, tf drepo.Timeframe) (*models.BacktestReport, error) {
	if uc.backtest == nil {
		return nil, fmt.Errorf("backtest runner disabled")
	}
	report, err := uc.backtest.Run(ctx, symbol, from, to, tf)
	if err != nil {
		return nil, err
	}
	if uc.reports != nil {
		_ = uc.reports.Set(ctx, reportKey(symbol), report, reportTTL)
	}
	return report, nil
}

// LatestReport returns the most recent cached backtest report for a symbol.
func (uc *StatusUseCase) LatestReport(ctx context.Context, symbol string) (*models.BacktestReport, error) {
	if uc.reports == nil {
		return nil, fmt.Errorf("report cache disabled")
	}
	var report models.BacktestReport
	if err := uc.reports.Get(ctx, reportKey(symbol), &report); err != nil {
		return nil, fmt.Errorf("no cached report for %s: %w", symbol, err)
	}
	return &report, nil
}

func reportKey(symbol string) string { return "backtest:last:" + symbol }
