package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/repository"
	"TrendEngine/internal/domain/service"
	"TrendEngine/pkg/logger"
)

// PositionStore is the view of the position tracker the risk manager needs.
// The tracker is built after the manager, so it is late-bound via
// SetPositionStore.
type PositionStore interface {
	Get(symbol string) (*models.Position, bool)
	All() map[string]*models.Position
	Check(symbol string, price float64) models.PositionAction
	Remove(ctx context.Context, symbol string, exitPrice float64) float64
	UpdateQuantity(symbol string, quantity float64)
	UnrealizedPnL(symbol string, currentPrice float64) float64
}

// DepthAdvisor answers liquidity questions for depth-aware exits.
type DepthAdvisor interface {
	Enabled() bool
	EstimateSlippage(symbol string, isBuy bool, notional, price float64) float64
	BuyWall(symbol string) (float64, bool)
	SellWall(symbol string) (float64, bool)
}

// PriceSource resolves the current mark price for a symbol; non-positive
// means unknown.
type PriceSource func(symbol string) float64

// Config holds all risk limits and exit parameters.
type Config struct {
	MaxPositionSize      float64       `yaml:"max_position_size" default:"1000"`
	MaxConcurrent        int           `yaml:"max_concurrent_positions" default:"1000"`
	DailyLossLimit       float64       `yaml:"daily_loss_limit" default:"500"`
	MaxTotalExposure     float64       `yaml:"max_total_exposure_percent" default:"0.60"`
	MaxConsecutiveLosses int           `yaml:"max_consecutive_losses" default:"3"`
	PausePeriod          time.Duration `yaml:"pause_period" default:"6h"`

	StopLossPercent    float64 `yaml:"stop_loss_percent" default:"0.003"`
	TakeProfitPercent  float64 `yaml:"take_profit_percent" default:"0.006"`
	TrailingStop       float64 `yaml:"trailing_stop_percent" default:"0.002"`
	TrailingActivation float64 `yaml:"trailing_activation_threshold" default:"0.002"`
	CommissionRate     float64 `yaml:"commission_rate_round_trip" default:"0.0008"`

	PartialTPEnabled      bool    `yaml:"partial_tp_enabled" default:"true"`
	PartialTPThreshold    float64 `yaml:"partial_tp_threshold" default:"0.003"`
	PartialTPClosePercent float64 `yaml:"partial_tp_close_percent" default:"0.50"`

	DepthAwareExits   bool    `yaml:"depth_aware_exits" default:"true"`
	EarlyExitSlippage float64 `yaml:"early_exit_slippage" default:"0.008"`
	WallProximity     float64 `yaml:"wall_proximity" default:"0.002"`

	MonitorInterval time.Duration `yaml:"monitor_interval" default:"1s"`
}

// Manager owns trade admission and position exits: exposure and loss limits,
// the circuit breaker, correlation gating, fixed SL/TP, partial take profit
// and the trailing stop. All price-driven decisions run through OnPriceUpdate
// so live trading and replay execute the same code.
type Manager struct {
	cfg         Config
	trailing    *TrailingBook
	correlation *CorrelationGate
	gateway     repository.ExecutionGateway
	depth       DepthAdvisor
	history     repository.TradeHistory
	publisher   repository.EventPublisher
	notifier    repository.Notifier
	metrics     repository.Metrics
	clock       service.Clock
	log         *logger.Logger

	store PositionStore

	mu                sync.Mutex
	dailyLoss         float64
	dailyDay          string
	consecutiveLosses int
	paused            bool
	pauseUntil        time.Time
	halted            bool

	monitorCancel context.CancelFunc
}

// Option configures optional manager dependencies.
type Option func(*Manager)

// WithDepthAdvisor wires depth-aware exits.
func WithDepthAdvisor(d DepthAdvisor) Option {
	return func(m *Manager) { m.depth = d }
}

// WithHistory wires closed-trade persistence.
func WithHistory(h repository.TradeHistory) Option {
	return func(m *Manager) { m.history = h }
}

// WithPublisher wires event publishing.
func WithPublisher(p repository.EventPublisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithNotifier wires alert delivery.
func WithNotifier(n repository.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithMetrics wires metric recording.
func WithMetrics(mt repository.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates the risk manager. The position store must be attached
// with SetPositionStore before any admission or exit call.
func NewManager(cfg Config, gateway repository.ExecutionGateway, correlation *CorrelationGate,
	clock service.Clock, log *logger.Logger, opts ...Option) *Manager {

	m := &Manager{
		cfg:         cfg,
		trailing:    NewTrailingBook(cfg.TrailingActivation),
		correlation: correlation,
		gateway:     gateway,
		clock:       clock,
		log:         log,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.dailyDay = dayKey(clock.Now())
	return m
}

// SetPositionStore attaches the position tracker. Must be called once during
// wiring, before trading starts.
func (m *Manager) SetPositionStore(s PositionStore) { m.store = s }

// Trailing exposes the trailing book so the tracker can register and clear
// positions.
func (m *Manager) Trailing() *TrailingBook { return m.trailing }

// Config returns the active risk parameters.
func (m *Manager) Config() Config { return m.cfg }

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// maybeRollDay resets daily counters when the UTC day changed. Callers hold mu.
func (m *Manager) maybeRollDay(now time.Time) {
	day := dayKey(now)
	if day == m.dailyDay {
		return
	}
	m.dailyDay = day
	m.dailyLoss = 0
	m.halted = false
	m.log.Info("daily risk counters reset", logger.String("day", day))
}

// CanOpen decides whether a new position of the given notional size is
// admissible. Checks run in a fixed order: circuit breaker, position count,
// per-position size, total exposure, then the daily loss gate. Any failure to
// determine a limit input rejects: admission is conservative while exits stay
// available.
func (m *Manager) CanOpen(ctx context.Context, notional float64) bool {
	now := m.clock.Now()

	m.mu.Lock()
	m.maybeRollDay(now)

	// Circuit breaker with auto-resume after the pause period.
	if m.paused {
		if now.Before(m.pauseUntil) {
			remaining := m.pauseUntil.Sub(now).Round(time.Minute)
			m.mu.Unlock()
			m.log.Warn("trading paused by circuit breaker",
				logger.Duration("resume_in", remaining))
			return false
		}
		m.paused = false
		m.consecutiveLosses = 0
		if m.metrics != nil {
			m.metrics.SetCircuitBreaker(false)
		}
		m.log.Info("trading resumed after circuit breaker pause")
	}

	halted := m.halted
	dailyLoss := m.dailyLoss
	m.mu.Unlock()

	positions := m.store.All()
	if len(positions) >= m.cfg.MaxConcurrent {
		m.log.Warn("max concurrent positions reached",
			logger.Int("open", len(positions)), logger.Int("max", m.cfg.MaxConcurrent))
		return false
	}

	if notional > m.cfg.MaxPositionSize {
		m.log.Warn("position size exceeds limit",
			logger.Float64("notional", notional),
			logger.Float64("max", m.cfg.MaxPositionSize))
		return false
	}

	var exposure float64
	for _, p := range positions {
		exposure += p.Notional()
	}
	balance, err := m.gateway.AccountBalance(ctx)
	if err != nil {
		m.log.Error("failed to fetch balance, rejecting entry", logger.Error(err))
		return false
	}
	maxExposure := balance * m.cfg.MaxTotalExposure
	if exposure+notional > maxExposure {
		m.log.Warn("total exposure limit reached",
			logger.Float64("current", exposure),
			logger.Float64("new", notional),
			logger.Float64("max", maxExposure))
		return false
	}

	if halted {
		m.log.Warn("trading halted: daily loss limit reached")
		return false
	}
	if dailyLoss >= m.cfg.DailyLossLimit {
		m.log.Warn("daily loss limit reached",
			logger.Float64("daily_loss", dailyLoss),
			logger.Float64("limit", m.cfg.DailyLossLimit))
		return false
	}

	return true
}

// AllowCorrelation runs the correlation gate against open same-direction
// positions.
func (m *Manager) AllowCorrelation(ctx context.Context, symbol string, side models.Side) bool {
	if m.correlation == nil || !m.correlation.Enabled() {
		return true
	}
	var sameSide []string
	for _, p := range m.store.All() {
		if p.Side == side {
			sameSide = append(sameSide, p.Symbol)
		}
	}
	return m.correlation.Allow(ctx, symbol, sameSide)
}

// RecordTrade updates loss counters with a closed trade's net PnL. Losses
// advance the circuit breaker and the daily loss limit; a win resets the
// consecutive-loss streak.
func (m *Manager) RecordTrade(ctx context.Context, pnl float64) {
	now := m.clock.Now()

	m.mu.Lock()
	m.maybeRollDay(now)

	if pnl >= 0 {
		m.consecutiveLosses = 0
		m.mu.Unlock()
		return
	}

	m.dailyLoss += -pnl
	m.consecutiveLosses++
	dailyLoss := m.dailyLoss
	losses := m.consecutiveLosses

	limitHit := dailyLoss >= m.cfg.DailyLossLimit && !m.halted
	if limitHit {
		m.halted = true
	}
	breakerTripped := losses >= m.cfg.MaxConsecutiveLosses && !m.paused
	if breakerTripped {
		m.paused = true
		m.pauseUntil = now.Add(m.cfg.PausePeriod)
	}
	m.mu.Unlock()

	m.log.Warn("losing trade recorded",
		logger.Float64("pnl", pnl),
		logger.Float64("daily_loss", dailyLoss),
		logger.Int("consecutive_losses", losses))

	if breakerTripped {
		if m.metrics != nil {
			m.metrics.SetCircuitBreaker(true)
		}
		m.log.Error(fmt.Sprintf("circuit breaker tripped after %d consecutive losses, pausing for %s",
			losses, m.cfg.PausePeriod))
		m.notify(ctx, "Circuit Breaker",
			fmt.Sprintf("Trading paused for %s after %d consecutive losses", m.cfg.PausePeriod, losses))
	}
	if limitHit {
		m.log.Error("daily loss limit hit, liquidating and halting",
			logger.Float64("daily_loss", dailyLoss),
			logger.Float64("limit", m.cfg.DailyLossLimit))
		m.notify(ctx, "Daily Loss Limit",
			fmt.Sprintf("Daily loss $%.2f reached limit $%.2f. All positions closed, trading halted.",
				dailyLoss, m.cfg.DailyLossLimit))
		m.EmergencyExit(ctx)
	}
}

// OnPriceUpdate runs all exit checks for one symbol at one price, in fixed
// order: fixed SL/TP, then one-shot partial take profit, then the trailing
// stop. The first close wins; later checks never see a closed position.
func (m *Manager) OnPriceUpdate(ctx context.Context, symbol string, price float64) {
	pos, ok := m.store.Get(symbol)
	if !ok || price <= 0 {
		return
	}

	switch m.store.Check(symbol, price) {
	case models.ActionCloseStopLoss:
		m.ClosePosition(ctx, symbol, models.ActionCloseStopLoss.String(), price)
		return
	case models.ActionCloseTakeProfit:
		m.ClosePosition(ctx, symbol, models.ActionCloseTakeProfit.String(), price)
		return
	}

	if m.cfg.PartialTPEnabled && !m.trailing.PartialTaken(symbol) {
		if pos.ProfitPercent(price) >= m.cfg.PartialTPThreshold {
			m.executePartialClose(ctx, pos, price)
		}
	}

	obs := m.trailing.Observe(symbol, price)
	if !obs.Tracked || !obs.Activated {
		return
	}
	if m.shouldExit(symbol, pos, price, obs) {
		m.log.Info("trailing stop triggered",
			logger.String("symbol", symbol),
			logger.Float64("price", price),
			logger.Float64("stop", obs.StopPrice),
			logger.Float64("extreme", obs.Extreme))
		m.ClosePosition(ctx, symbol, "TRAILING_STOP", price)
	}
}

// shouldExit combines the plain stop check with depth intelligence: exit
// early when exit slippage is dangerous or price is pressed against an
// opposing wall.
func (m *Manager) shouldExit(symbol string, pos *models.Position, price float64, obs Observation) bool {
	if !m.cfg.DepthAwareExits || m.depth == nil || !m.depth.Enabled() {
		return obs.StopHit
	}

	notional := pos.Quantity * price
	if notional < 0 {
		notional = -notional
	}
	// Exit of a long sells into bids; exit of a short buys from asks.
	exitIsBuy := !pos.Side.IsLong()
	if slip := m.depth.EstimateSlippage(symbol, exitIsBuy, notional, price); slip > m.cfg.EarlyExitSlippage {
		m.log.Warn("exiting early: exit slippage too high",
			logger.String("symbol", symbol), logger.Float64("slippage", slip))
		return true
	}

	if pos.Side.IsLong() {
		if wall, ok := m.depth.SellWall(symbol); ok && price > wall {
			if dist := (price - wall) / price; dist < m.cfg.WallProximity {
				m.log.Info("exiting before sell wall",
					logger.String("symbol", symbol), logger.Float64("wall", wall))
				return true
			}
		}
	} else {
		if wall, ok := m.depth.BuyWall(symbol); ok && price < wall {
			if dist := (wall - price) / price; dist < m.cfg.WallProximity {
				m.log.Info("exiting before buy wall",
					logger.String("symbol", symbol), logger.Float64("wall", wall))
				return true
			}
		}
	}

	return obs.StopHit
}

func (m *Manager) executePartialClose(ctx context.Context, pos *models.Position, price float64) {
	if !m.trailing.MarkPartialTaken(pos.Symbol) {
		return
	}
	closeQty := pos.Quantity * m.cfg.PartialTPClosePercent
	if _, err := m.gateway.ClosePosition(ctx, pos.Symbol, pos.Side, closeQty); err != nil {
		m.log.Error("partial close failed",
			logger.String("symbol", pos.Symbol), logger.Error(err))
		return
	}
	profitPct := pos.ProfitPercent(price)
	m.store.UpdateQuantity(pos.Symbol, pos.Quantity-closeQty)

	m.log.Info("partial take profit executed",
		logger.String("symbol", pos.Symbol),
		logger.Float64("profit_percent", profitPct*100),
		logger.Float64("closed_quantity", closeQty))
	m.notify(ctx, "Partial TP",
		fmt.Sprintf("%s %s: +%.2f%% reached, closed %.0f%% of position",
			pos.Symbol, pos.Side, profitPct*100, m.cfg.PartialTPClosePercent*100))
	if m.metrics != nil {
		m.metrics.RecordTradeClosed(pos.Symbol, "PARTIAL_TP", pos.GrossPnL(price)*m.cfg.PartialTPClosePercent)
	}
}

// ClosePosition closes a full position at the given mark price, records the
// realized PnL against the risk counters and clears all per-symbol state.
func (m *Manager) ClosePosition(ctx context.Context, symbol, reason string, price float64) {
	pos, ok := m.store.Get(symbol)
	if !ok {
		return
	}

	if _, err := m.gateway.ClosePosition(ctx, symbol, pos.Side, pos.Quantity); err != nil {
		m.log.Error("failed to close position",
			logger.String("symbol", symbol), logger.Error(err))
		return
	}

	pnl := m.store.UnrealizedPnL(symbol, price)
	pnlPct := pos.ProfitPercent(price) * 100

	m.log.Info("position closed",
		logger.String("symbol", symbol),
		logger.String("reason", reason),
		logger.Float64("entry", pos.EntryPrice),
		logger.Float64("exit", price),
		logger.Float64("pnl", pnl))

	now := m.clock.Now()
	entry := models.TradeEntry{
		Symbol:     pos.Symbol,
		EntryTime:  pos.EntryTime,
		ExitTime:   now,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Quantity:   pos.Quantity,
		PnL:        pnl,
		PnLPercent: pnlPct,
		ExitReason: reason,
		Commission: pos.Notional() * m.cfg.CommissionRate,
	}
	if m.history != nil {
		if err := m.history.StoreTrade(ctx, &entry); err != nil {
			m.log.Error("failed to persist trade", logger.Error(err))
		}
	}
	if m.publisher != nil {
		if err := m.publisher.PublishTrade(ctx, &entry); err != nil {
			m.log.Error("failed to publish trade", logger.Error(err))
		}
	}
	if m.metrics != nil {
		m.metrics.RecordTradeClosed(symbol, reason, pnl)
	}
	sign := "+"
	if pnl < 0 {
		sign = "-"
	}
	m.notify(ctx, "Position Closed",
		fmt.Sprintf("%s %s\nEntry: $%.4f Exit: $%.4f\nPnL: %s$%.2f (%.2f%%)\nReason: %s",
			symbol, pos.Side, pos.EntryPrice, price, sign, abs(pnl), pnlPct, reason))

	m.RecordTrade(ctx, pnl)

	m.store.Remove(ctx, symbol, price)
	m.trailing.Clear(symbol)
	if m.metrics != nil {
		m.metrics.SetOpenPositions(len(m.store.All()))
	}
}

// EmergencyExit force-closes every open position at the current mark price.
func (m *Manager) EmergencyExit(ctx context.Context) {
	m.log.Warn("emergency exit: closing all positions")
	for symbol, pos := range m.store.All() {
		if _, err := m.gateway.ClosePosition(ctx, symbol, pos.Side, pos.Quantity); err != nil {
			m.log.Error("failed to emergency close",
				logger.String("symbol", symbol), logger.Error(err))
			continue
		}
		m.store.Remove(ctx, symbol, 0)
		m.trailing.Clear(symbol)
	}
	if m.metrics != nil {
		m.metrics.SetOpenPositions(0)
	}
}

// StartMonitoring launches the safety-net polling loop, re-running all exit
// checks for every open position at a fixed interval. Event-driven
// OnPriceUpdate calls remain the fast path.
func (m *Manager) StartMonitoring(ctx context.Context, prices PriceSource) {
	if m.monitorCancel != nil {
		m.log.Warn("position monitoring already active")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.monitorCancel = cancel

	interval := m.cfg.MonitorInterval
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for symbol := range m.store.All() {
					if price := prices(symbol); price > 0 {
						m.OnPriceUpdate(ctx, symbol, price)
					}
				}
			}
		}
	}()
	m.log.Info("position monitoring started", logger.Duration("interval", interval))
}

// StopMonitoring stops the polling loop.
func (m *Manager) StopMonitoring() {
	if m.monitorCancel != nil {
		m.monitorCancel()
		m.monitorCancel = nil
		m.log.Info("position monitoring stopped")
	}
}

// State is a snapshot of risk counters for the ops API.
type State struct {
	DailyLoss         float64   `json:"daily_loss"`
	DailyLossLimit    float64   `json:"daily_loss_limit"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	CircuitBreaker    bool      `json:"circuit_breaker"`
	PauseUntil        time.Time `json:"pause_until,omitempty"`
	Halted            bool      `json:"halted"`
}

// Snapshot returns the current risk counters.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		DailyLoss:         m.dailyLoss,
		DailyLossLimit:    m.cfg.DailyLossLimit,
		ConsecutiveLosses: m.consecutiveLosses,
		CircuitBreaker:    m.paused,
		PauseUntil:        m.pauseUntil,
		Halted:            m.halted,
	}
}

// Halt stops all new entries until Resume or the next UTC day.
func (m *Manager) Halt(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted = true
	m.log.Warn("trading halted", logger.String("reason", reason))
}

// Resume lifts a manual halt and an active circuit-breaker pause.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted = false
	m.paused = false
	if m.metrics != nil {
		m.metrics.SetCircuitBreaker(false)
	}
	m.log.Info("trading resumed")
}

// ResetDaily clears the daily loss, the loss streak and both halts.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyLoss = 0
	m.consecutiveLosses = 0
	m.paused = false
	m.halted = false
	m.log.Info("risk counters reset")
}

func (m *Manager) notify(ctx context.Context, title, message string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, title, message); err != nil {
		m.log.Error("notification failed", logger.Error(err))
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
