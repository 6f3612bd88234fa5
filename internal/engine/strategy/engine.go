package strategy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/repository"
	"TrendEngine/internal/domain/service"
	"TrendEngine/internal/engine/filter"
	"TrendEngine/internal/engine/position"
	"TrendEngine/internal/engine/risk"
	"TrendEngine/internal/engine/score"
	"TrendEngine/internal/engine/trend"
	"TrendEngine/pkg/logger"
)

// DepthGate is the order-book confirmation surface the engine needs.
type DepthGate interface {
	ConfirmBuy(symbol string, price float64) bool
	ConfirmSell(symbol string, price float64) bool
	SlippageAcceptable(symbol string, isBuy bool, notional, price float64) bool
}

// Config tunes the decision pipeline.
type Config struct {
	Symbols         string        `yaml:"symbols" default:"BTCUSDT,ETHUSDT"`
	ReferenceSymbol string        `yaml:"reference_symbol" default:"BTCUSDT"`
	WarmupBars      int           `yaml:"warmup_bars" default:"50"`
	MacroRefresh    time.Duration `yaml:"macro_refresh" default:"5m"`
	Cooldown        time.Duration `yaml:"cooldown_after_close" default:"5m"`

	BatchEnabled bool          `yaml:"batch_enabled" default:"true"`
	BatchWindow  time.Duration `yaml:"batch_window" default:"60s"`
	BatchTopN    int           `yaml:"batch_top_n" default:"3"`
	MinScore     float64       `yaml:"min_signal_score" default:"50"`

	MaxPositionPercent float64 `yaml:"max_position_percent" default:"0.25"`
	Leverage           float64 `yaml:"leverage" default:"20"`
	MinPositionUSDT    float64 `yaml:"min_position_usdt" default:"4"`
	MinBalance         float64 `yaml:"min_balance" default:"10"`

	AsyncExecution bool          `yaml:"async_execution" default:"true"`
	OrderTimeout   time.Duration `yaml:"order_timeout" default:"10s"`
}

// SymbolList splits the comma-separated symbol universe.
func (c Config) SymbolList() []string {
	parts := strings.Split(c.Symbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Engine drives the decision pipeline for every symbol: filter chain, macro
// and higher-timeframe gates, depth confirmation, scoring, batching and
// entry execution. Exits are owned by the risk manager; the engine feeds it
// every bar close.
type Engine struct {
	cfg        Config
	chain      *filter.Chain
	scorer     *score.Scorer
	batch      *score.Batch
	riskMgr    *risk.Manager
	tracker    *position.Tracker
	macro      *trend.MacroCell
	macroAn    *trend.MacroAnalyzer
	htf        *trend.HTFService
	depth      DepthGate
	validator  service.SignalValidator
	indicators service.IndicatorEngine
	gateway    repository.ExecutionGateway
	publisher  repository.EventPublisher
	metrics    repository.Metrics
	clock      service.Clock
	log        *logger.Logger

	mu        sync.RWMutex
	series    map[string]*models.Series
	lastMacro time.Time

	wg sync.WaitGroup
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Chain      *filter.Chain
	Scorer     *score.Scorer
	Risk       *risk.Manager
	Tracker    *position.Tracker
	Macro      *trend.MacroCell
	MacroAn    *trend.MacroAnalyzer
	HTF        *trend.HTFService
	Depth      DepthGate
	Validator  service.SignalValidator
	Indicators service.IndicatorEngine
	Gateway    repository.ExecutionGateway
	Publisher  repository.EventPublisher
	Metrics    repository.Metrics
	Clock      service.Clock
	Log        *logger.Logger
}

// NewEngine creates the decision engine.
func NewEngine(cfg Config, d Deps) *Engine {
	return &Engine{
		cfg:        cfg,
		chain:      d.Chain,
		scorer:     d.Scorer,
		batch:      score.NewBatch(d.Clock.Now()),
		riskMgr:    d.Risk,
		tracker:    d.Tracker,
		macro:      d.Macro,
		macroAn:    d.MacroAn,
		htf:        d.HTF,
		depth:      d.Depth,
		validator:  d.Validator,
		indicators: d.Indicators,
		gateway:    d.Gateway,
		publisher:  d.Publisher,
		metrics:    d.Metrics,
		clock:      d.Clock,
		log:        d.Log,
	}
}

// Series returns the bar series for a symbol, creating it on first use.
func (e *Engine) Series(symbol string) *models.Series {
	e.mu.RLock()
	s := e.series[symbol]
	e.mu.RUnlock()
	if s != nil {
		return s
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.series == nil {
		e.series = make(map[string]*models.Series)
	}
	if s = e.series[symbol]; s == nil {
		s = models.NewSeries(symbol)
		e.series[symbol] = s
	}
	return s
}

// LastPrice returns the latest close for a symbol, 0 when unknown. Used as
// the monitoring loop's price source.
func (e *Engine) LastPrice(symbol string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if s := e.series[symbol]; s != nil {
		return s.LastClose()
	}
	return 0
}

// OnBar ingests one closed bar: appends it to the symbol's series,
// refreshes the macro verdict when due, runs the exit checks and then
// evaluates entries. Duplicate and out-of-order bars are dropped before any
// decision runs.
func (e *Engine) OnBar(ctx context.Context, bar models.Bar) {
	s := e.Series(bar.Symbol)
	if !s.Append(bar) {
		return
	}
	if e.metrics != nil {
		e.metrics.RecordLastPrice(bar.Symbol, bar.Close)
	}

	if bar.Symbol == e.cfg.ReferenceSymbol {
		now := e.clock.Now()
		e.mu.Lock()
		due := now.Sub(e.lastMacro) >= e.cfg.MacroRefresh
		if due {
			e.lastMacro = now
		}
		e.mu.Unlock()
		if due {
			e.macroAn.Refresh(s)
		}
	}

	// Exits first: a bar that both stops out the open position and
	// qualifies a fresh entry must close before it reopens.
	e.riskMgr.OnPriceUpdate(ctx, bar.Symbol, bar.Close)

	e.Evaluate(ctx, bar.Symbol)
}

// Evaluate runs the full entry pipeline for one symbol at the latest bar.
func (e *Engine) Evaluate(ctx context.Context, symbol string) {
	s := e.Series(symbol)
	if s.Len() < e.cfg.WarmupBars {
		return
	}
	if e.tracker.Has(symbol) {
		return
	}
	if cd := e.cfg.Cooldown; cd > 0 {
		if closedAt, ok := e.tracker.ClosedAt(symbol); ok && e.clock.Now().Sub(closedAt) < cd {
			return
		}
	}
	price := s.LastClose()
	if price <= 0 {
		return
	}
	snap := e.indicators.Compute(s)

	if e.evaluateSide(ctx, symbol, models.SideBuy, s, snap, price) {
		return
	}
	e.evaluateSide(ctx, symbol, models.SideSell, s, snap, price)
}

// evaluateSide runs the chain and gates for one direction. Returns true when
// the side produced a candidate or an order, so the opposite side is skipped.
func (e *Engine) evaluateSide(ctx context.Context, symbol string, side models.Side,
	s *models.Series, snap models.IndicatorSnapshot, price float64) bool {

	verdict := e.chain.Evaluate(filter.Input{
		Symbol:   symbol,
		Side:     side,
		Price:    price,
		Series:   s,
		Snapshot: snap,
	})
	if !verdict.Passed {
		e.pushSignal(ctx, symbol, side, models.ReasonFilterBlocked, verdict.Detail, price, false)
		return false
	}

	if side.IsLong() && !e.macro.AllowsLong() || !side.IsLong() && !e.macro.AllowsShort() {
		e.pushSignal(ctx, symbol, side, models.ReasonMacroTrend,
			fmt.Sprintf("macro trend %s", e.macro.Get()), price, false)
		return false
	}

	if side.IsLong() && !e.htf.AllowLong(symbol) || !side.IsLong() && !e.htf.AllowShort(symbol) {
		e.pushSignal(ctx, symbol, side, models.ReasonHigherTimeframe,
			"strong opposing higher-timeframe trend", price, false)
		return false
	}

	if e.depth != nil {
		ok := e.depth.ConfirmBuy(symbol, price)
		if !side.IsLong() {
			ok = e.depth.ConfirmSell(symbol, price)
		}
		if !ok {
			e.pushSignal(ctx, symbol, side, models.ReasonOrderBook,
				"order book does not confirm entry", price, false)
			return false
		}
	}

	candidate := e.scorer.Score(symbol, side, price, snap, e.macro.Get(), e.clock.Now())

	if e.cfg.BatchEnabled {
		e.batch.Add(candidate)
		e.log.Info("signal added to batch", logger.String("candidate", candidate.String()))
		e.pushSignal(ctx, symbol, side, models.ReasonPending, "queued for batch selection", price, false)
		return true
	}

	e.pushSignal(ctx, symbol, side, models.ReasonPending, "all filters passed", price, true)
	e.submitOrder(ctx, candidate)
	return true
}

// StartBatchProcessor runs the window timer that drains the batch.
func (e *Engine) StartBatchProcessor(ctx context.Context) {
	if !e.cfg.BatchEnabled {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.BatchWindow)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.ProcessBatch(ctx)
			}
		}
	}()
	e.log.Info("batch signal processor started",
		logger.Duration("window", e.cfg.BatchWindow),
		logger.Int("top_n", e.cfg.BatchTopN),
		logger.Float64("min_score", e.cfg.MinScore))
}

// ProcessBatchIfDue drains the batch once the window has elapsed on the
// engine's clock. Replay uses this instead of the wall timer so window
// boundaries land on the same bars every run.
func (e *Engine) ProcessBatchIfDue(ctx context.Context) {
	if !e.cfg.BatchEnabled {
		return
	}
	if e.batch.Age(e.clock.Now()) >= e.cfg.BatchWindow {
		e.ProcessBatch(ctx)
	}
}

// ProcessBatch selects the best candidates of the closing window and
// executes them. The batch is cleared unconditionally afterwards: unselected
// candidates never leak into the next window.
func (e *Engine) ProcessBatch(ctx context.Context) {
	now := e.clock.Now()
	defer e.batch.Clear(now)

	n := e.batch.Len()
	if n == 0 {
		return
	}
	e.log.Info("processing signal batch", logger.Int("collected", n))

	best := e.batch.TopAboveThreshold(e.cfg.MinScore, e.cfg.BatchTopN)
	if len(best) == 0 {
		e.log.Info("no signals above minimum score in batch",
			logger.Float64("min_score", e.cfg.MinScore))
		return
	}

	for i, c := range best {
		if c.Expired(now) {
			e.log.Warn("dropping expired candidate", logger.String("candidate", c.String()))
			e.pushSignal(ctx, c.Symbol, c.Side, models.ReasonExpired, "candidate past TTL", c.Price, false)
			continue
		}
		e.log.Info("executing best signal",
			logger.Int("rank", i+1), logger.String("candidate", c.String()))
		e.submitOrder(ctx, c)
	}
}

// submitOrder hands the candidate to the execution path, asynchronously in
// live trading so a slow exchange call never stalls bar processing.
// Synchronous execution is used in replay for determinism.
func (e *Engine) submitOrder(ctx context.Context, c *models.SignalCandidate) {
	if !e.cfg.AsyncExecution {
		e.executeEntry(ctx, c)
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		timeout := e.cfg.OrderTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		e.executeEntry(ctx, c)
	}()
}

// executeEntry performs the admission checks in order and places the order:
// sizing, correlation, risk limits, balance, slippage, external validation.
// Any rejection publishes a blocked event and leaves no state behind.
func (e *Engine) executeEntry(ctx context.Context, c *models.SignalCandidate) {
	symbol, side, price := c.Symbol, c.Side, c.Price

	if e.tracker.Has(symbol) {
		return
	}

	balance, err := e.gateway.AccountBalance(ctx)
	if err != nil {
		e.log.Error("failed to fetch balance", logger.String("symbol", symbol), logger.Error(err))
		e.pushSignal(ctx, symbol, side, models.ReasonBalance, "balance unavailable", price, false)
		return
	}

	notional := balance * e.cfg.MaxPositionPercent
	if max := e.riskMgr.Config().MaxPositionSize; notional > max {
		notional = max
	}

	if !e.riskMgr.AllowCorrelation(ctx, symbol, side) {
		e.pushSignal(ctx, symbol, side, models.ReasonCorrelation,
			"too correlated with open positions", price, false)
		return
	}

	if notional < e.cfg.MinPositionUSDT {
		e.pushSignal(ctx, symbol, side, models.ReasonPositionSize,
			fmt.Sprintf("position size $%.2f below minimum", notional), price, false)
		return
	}

	if !e.riskMgr.CanOpen(ctx, notional) {
		e.pushSignal(ctx, symbol, side, models.ReasonRiskLimits, "risk limits", price, false)
		return
	}

	if balance < e.cfg.MinBalance {
		e.pushSignal(ctx, symbol, side, models.ReasonBalance,
			fmt.Sprintf("balance $%.2f too low", balance), price, false)
		return
	}
	if notional > balance*0.95 {
		notional = balance * 0.95
	}

	if e.depth != nil && !e.depth.SlippageAcceptable(symbol, side.IsLong(), notional, price) {
		e.pushSignal(ctx, symbol, side, models.ReasonSlippage, "entry slippage too high", price, false)
		return
	}

	if e.validator != nil {
		snap := e.indicators.Compute(e.Series(symbol))
		approved, err := e.validator.Validate(ctx, c, snap)
		if err != nil {
			e.log.Warn("signal validator unavailable, approving",
				logger.String("symbol", symbol), logger.Error(err))
		} else if !approved {
			e.pushSignal(ctx, symbol, side, models.ReasonValidatorBlocked,
				"rejected by signal validator", price, false)
			return
		}
	}

	quantity := notional * e.cfg.Leverage / price

	fill, err := e.gateway.PlaceOrder(ctx, symbol, side, quantity)
	if err != nil {
		e.log.Error("order failed",
			logger.String("symbol", symbol), logger.String("side", string(side)), logger.Error(err))
		e.pushSignal(ctx, symbol, side, models.ReasonOrderFailed, err.Error(), price, false)
		if e.metrics != nil {
			e.metrics.RecordError("order_failed")
		}
		return
	}

	e.tracker.Track(symbol, side, fill.Price, fill.Quantity)
	e.pushSignal(ctx, symbol, side, models.ReasonExecuted, "order filled", fill.Price, true)
	e.log.Info("position opened",
		logger.String("symbol", symbol),
		logger.String("side", string(side)),
		logger.Float64("price", fill.Price),
		logger.Float64("quantity", fill.Quantity),
		logger.Float64("notional", notional))
}

// pushSignal records a strategy decision on the event bus and metrics.
func (e *Engine) pushSignal(ctx context.Context, symbol string, side models.Side,
	reason, detail string, price float64, executed bool) {

	if e.metrics != nil {
		e.metrics.RecordSignal(symbol, reason)
	}
	if e.publisher == nil {
		return
	}
	ev := &models.SignalEvent{
		Symbol:   symbol,
		Side:     side,
		Reason:   reason,
		Detail:   detail,
		Price:    price,
		Executed: executed,
		Time:     e.clock.Now(),
	}
	if err := e.publisher.PublishSignal(ctx, ev); err != nil {
		e.log.Error("failed to publish signal event", logger.Error(err))
	}
}

// Wait blocks until in-flight async orders and the batch processor exit.
func (e *Engine) Wait() { e.wg.Wait() }
