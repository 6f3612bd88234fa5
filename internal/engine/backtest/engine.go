package backtest

import (
	"context"
	"fmt"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/repository"
	"TrendEngine/internal/domain/service"
	"TrendEngine/internal/engine/position"
	"TrendEngine/internal/engine/risk"
	"TrendEngine/internal/engine/strategy"
	"TrendEngine/pkg/logger"
)

// Config tunes a replay run.
type Config struct {
	InitialBalance float64 `yaml:"initial_balance" default:"1000"`
	FeeRate        float64 `yaml:"fee_rate" default:"0.0004"`
	EquityInterval int     `yaml:"equity_interval" default:"100"`
}

// Engine replays historical bars through the exact live decision pipeline.
// The strategy engine, risk manager and tracker are the same types the live
// process runs; only the gateway and the clock are simulated, so a given bar
// sequence always yields the same trade log.
type Engine struct {
	cfg      Config
	strategy *strategy.Engine
	gateway  *SimGateway
	clock    *service.SimClock
	riskMgr  *risk.Manager
	tracker  *position.Tracker
	source   DataSource
	log      *logger.Logger
}

// NewEngine creates a replay engine.
func NewEngine(cfg Config, strat *strategy.Engine, gateway *SimGateway, clock *service.SimClock,
	riskMgr *risk.Manager, tracker *position.Tracker, source DataSource, log *logger.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		strategy: strat,
		gateway:  gateway,
		clock:    clock,
		riskMgr:  riskMgr,
		tracker:  tracker,
		source:   source,
		log:      log,
	}
}

// RunRange loads bars from the data source and replays them. A load failure
// produces no report.
func (e *Engine) RunRange(ctx context.Context, symbol string, from, to time.Time, tf repository.Timeframe) (*models.BacktestReport, error) {
	bars, err := e.source.Load(ctx, symbol, from, to, tf)
	if err != nil {
		e.log.Error("failed to load historical data",
			logger.String("symbol", symbol), logger.Error(err))
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no historical data for %s %s", symbol, tf)
	}
	return e.Run(ctx, symbol, bars, tf)
}

// Run replays the bar sequence and returns the finished report.
func (e *Engine) Run(ctx context.Context, symbol string, bars []models.Bar, tf repository.Timeframe) (*models.BacktestReport, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("empty bar history")
	}
	e.log.Info("starting backtest",
		logger.String("symbol", symbol),
		logger.String("timeframe", string(tf)),
		logger.Int("bars", len(bars)))

	e.gateway.Reset(e.cfg.InitialBalance)

	report := &models.BacktestReport{
		Symbol:         symbol,
		Timeframe:      string(tf),
		StartTime:      bars[0].CloseTime,
		EndTime:        bars[len(bars)-1].CloseTime,
		InitialBalance: e.cfg.InitialBalance,
	}

	peak := e.cfg.InitialBalance
	interval := e.cfg.EquityInterval
	if interval <= 0 {
		interval = 100
	}

	for i, bar := range bars {
		// Simulated time is always the close of the bar being processed, so
		// batch windows, TTLs and the circuit breaker advance with the data.
		e.clock.Set(bar.CloseTime)
		e.gateway.SetPrice(symbol, bar.Close)

		e.strategy.OnBar(ctx, bar)
		e.strategy.ProcessBatchIfDue(ctx)

		if i%interval == 0 || i == len(bars)-1 {
			equity := e.gateway.Balance()
			if equity > peak {
				peak = equity
			}
			dd := 0.0
			if equity < peak && peak > 0 {
				dd = (peak - equity) / peak * 100
			}
			report.EquityCurve = append(report.EquityCurve, models.EquityPoint{
				Timestamp:       bar.CloseTime,
				Balance:         equity,
				DrawdownPercent: dd,
			})
		}
	}

	// Force-close whatever survived to the end so the report accounts for
	// every position.
	last := bars[len(bars)-1].Close
	if e.tracker.Has(symbol) {
		e.riskMgr.ClosePosition(ctx, symbol, "END_OF_BACKTEST", last)
	}

	report.Trades = e.gateway.Trades()
	report.CalculateMetrics()
	report.FinalBalance = e.gateway.Balance()

	e.log.Info("backtest complete",
		logger.String("symbol", symbol),
		logger.Int("trades", report.TotalTrades),
		logger.Float64("net_profit", report.NetProfit),
		logger.Float64("final_balance", report.FinalBalance))
	return report, nil
}
