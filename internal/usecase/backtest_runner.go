package usecase

import (
	"context"
	"time"

	"TrendEngine/internal/domain/models"
	drepo "TrendEngine/internal/domain/repository"
	"TrendEngine/internal/domain/service"
	"TrendEngine/internal/engine/backtest"
	"TrendEngine/internal/engine/filter"
	"TrendEngine/internal/engine/position"
	"TrendEngine/internal/engine/risk"
	"TrendEngine/internal/engine/score"
	"TrendEngine/internal/engine/strategy"
	"TrendEngine/internal/engine/trend"
	"TrendEngine/internal/service/indicator"
	"TrendEngine/internal/service/notify"
	"TrendEngine/pkg/config"
	"TrendEngine/pkg/logger"
)

// ReplayRunner builds a fresh, fully isolated decision pipeline for every
// run and replays historical bars through it. Nothing is shared with the
// live engine, so a replay never touches live positions, metrics or the
// exchange, and two runs over the same bars produce identical reports.
type ReplayRunner struct {
	cfg     *config.Config
	history drepo.TradeHistory
	log     *logger.Logger
}

// NewReplayRunner creates a runner. history may be nil; bars then come from
// the kline file cache.
func NewReplayRunner(cfg *config.Config, history drepo.TradeHistory, log *logger.Logger) *ReplayRunner {
	return &ReplayRunner{cfg: cfg, history: history, log: log}
}

// Run replays the requested range and returns the finished report.
func (r *ReplayRunner) Run(ctx context.Context, symbol string, from, to time.Time, tf drepo.Timeframe) (*models.BacktestReport, error) {
	clock := service.NewSimClock(from)
	gateway := backtest.NewSimGateway(r.cfg.Backtest.InitialBalance, r.cfg.Backtest.FeeRate, clock, r.log)
	provider := backtest.NewSeriesProvider()

	correlation := risk.NewCorrelationGate(r.cfg.Correlation, provider, clock, r.log)
	riskMgr := risk.NewManager(r.cfg.Risk, gateway, correlation, clock, r.log,
		risk.WithNotifier(&notify.LogNotifier{Log: r.log}),
	)
	tracker := position.NewTracker(r.cfg.Position, riskMgr.Trailing(), clock, nil, r.log)
	riskMgr.SetPositionStore(tracker)

	ind := indicator.New()
	macro := trend.NewMacroCell()

	// Orders execute synchronously in replay so fills land on the bar that
	// produced them.
	stratCfg := r.cfg.Strategy
	stratCfg.AsyncExecution = false

	engine := strategy.NewEngine(stratCfg, strategy.Deps{
		Chain:      filter.NewChain(r.log, nil, filter.FromConfig(r.cfg.Filters)...),
		Scorer:     score.New(r.cfg.Score),
		Risk:       riskMgr,
		Tracker:    tracker,
		Macro:      macro,
		MacroAn:    trend.NewMacroAnalyzer(macro, ind, r.log),
		HTF:        trend.NewHTFService(r.cfg.HTF, provider, clock, r.log),
		Indicators: ind,
		Gateway:    gateway,
		Clock:      clock,
		Log:        r.log,
	})
	provider.Bind(engine)

	var source backtest.DataSource
	if r.history != nil {
		source = &backtest.HistorySource{Store: r.history}
	} else {
		source = &backtest.FileSource{Dir: r.cfg.Backtest.DataDir, Log: r.log}
	}

	replay := backtest.NewEngine(r.cfg.Backtest.Config, engine, gateway, clock, riskMgr, tracker, source, r.log)
	return replay.RunRange(ctx, symbol, from, to, tf)
}
