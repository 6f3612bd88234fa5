package position

import (
	"context"
	"sync"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/repository"
	"TrendEngine/internal/domain/service"
	"TrendEngine/internal/engine/risk"
	"TrendEngine/pkg/logger"
)

// Config holds exit thresholds applied to every tracked position.
type Config struct {
	TakeProfitPercent float64 `yaml:"take_profit_percent" default:"0.006"`
	StopLossPercent   float64 `yaml:"stop_loss_percent" default:"0.003"`
	TrailingStop      float64 `yaml:"trailing_stop_percent" default:"0.002"`
	CommissionRate    float64 `yaml:"commission_rate_round_trip" default:"0.0008"`
	DustFloor         float64 `yaml:"dust_floor_usdt" default:"5"`

	SyncInterval time.Duration `yaml:"sync_interval" default:"60s"`
}

// Tracker is the exclusive owner of open-position state, keyed by symbol.
// Everything else observes positions through it; it registers and clears
// trailing state in the risk book as positions come and go.
type Tracker struct {
	cfg      Config
	trailing *risk.TrailingBook
	clock    service.Clock
	metrics  repository.Metrics
	log      *logger.Logger

	mu        sync.RWMutex
	positions map[string]*models.Position
	closed    map[string]time.Time
}

// NewTracker creates a tracker wired to the risk manager's trailing book.
func NewTracker(cfg Config, trailing *risk.TrailingBook, clock service.Clock,
	metrics repository.Metrics, log *logger.Logger) *Tracker {
	return &Tracker{
		cfg:       cfg,
		trailing:  trailing,
		clock:     clock,
		metrics:   metrics,
		log:       log,
		positions: make(map[string]*models.Position),
		closed:    make(map[string]time.Time),
	}
}

// Track starts tracking a new position with the default stop loss.
func (t *Tracker) Track(symbol string, side models.Side, entryPrice, quantity float64) {
	t.TrackWithStop(symbol, side, entryPrice, quantity, t.cfg.StopLossPercent)
}

// TrackWithStop starts tracking with a per-position stop-loss override.
func (t *Tracker) TrackWithStop(symbol string, side models.Side, entryPrice, quantity, stopLossPercent float64) {
	pos := &models.Position{
		Symbol:          symbol,
		Side:            side,
		EntryPrice:      entryPrice,
		Quantity:        quantity,
		StopLossPercent: stopLossPercent,
		EntryTime:       t.clock.Now(),
	}
	t.mu.Lock()
	t.positions[symbol] = pos
	n := len(t.positions)
	t.mu.Unlock()

	t.trailing.Register(symbol, side.IsLong(), entryPrice, t.cfg.TrailingStop)
	if t.metrics != nil {
		t.metrics.SetOpenPositions(n)
	}
	t.log.Info("tracking position",
		logger.String("symbol", symbol),
		logger.String("side", string(side)),
		logger.Float64("entry", entryPrice),
		logger.Float64("quantity", quantity),
		logger.Float64("stop_loss", stopLossPercent))
}

// Check evaluates the fixed stop-loss/take-profit thresholds against the net
// PnL percentage (gross minus the round-trip commission rate).
func (t *Tracker) Check(symbol string, price float64) models.PositionAction {
	t.mu.RLock()
	pos, ok := t.positions[symbol]
	t.mu.RUnlock()
	if !ok {
		return models.ActionHold
	}

	net := pos.ProfitPercent(price) - t.cfg.CommissionRate

	sl := pos.StopLossPercent
	if sl <= 0 {
		sl = t.cfg.StopLossPercent
	}
	if net <= -sl {
		t.log.Warn("stop loss hit",
			logger.String("symbol", symbol),
			logger.Float64("net_pnl_percent", net*100))
		return models.ActionCloseStopLoss
	}
	if net >= t.cfg.TakeProfitPercent {
		t.log.Info("take profit hit",
			logger.String("symbol", symbol),
			logger.Float64("net_pnl_percent", net*100))
		return models.ActionCloseTakeProfit
	}
	return models.ActionHold
}

// Get returns a copy-safe pointer to the position for symbol.
func (t *Tracker) Get(symbol string) (*models.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[symbol]
	return p, ok
}

// Has reports whether a position exists for symbol.
func (t *Tracker) Has(symbol string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.positions[symbol]
	return ok
}

// All returns a snapshot of the open positions.
func (t *Tracker) All() map[string]*models.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*models.Position, len(t.positions))
	for k, v := range t.positions {
		out[k] = v
	}
	return out
}

// Count returns the number of open positions.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.positions)
}

// UpdateQuantity sets the remaining quantity after a partial close.
func (t *Tracker) UpdateQuantity(symbol string, quantity float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pos, ok := t.positions[symbol]; ok {
		pos.Quantity = quantity
	}
}

// UnrealizedPnL returns the net PnL in quote units at the current price,
// with the round-trip commission charged on the entry notional.
func (t *Tracker) UnrealizedPnL(symbol string, currentPrice float64) float64 {
	t.mu.RLock()
	pos, ok := t.positions[symbol]
	t.mu.RUnlock()
	if !ok {
		return 0
	}
	return pos.GrossPnL(currentPrice) - pos.Notional()*t.cfg.CommissionRate
}

// Remove stops tracking a position and clears its trailing state, returning
// the gross realized PnL at exitPrice (zero when the exit price is unknown).
func (t *Tracker) Remove(ctx context.Context, symbol string, exitPrice float64) float64 {
	t.mu.Lock()
	pos, ok := t.positions[symbol]
	if ok {
		delete(t.positions, symbol)
		t.closed[symbol] = t.clock.Now()
	}
	n := len(t.positions)
	t.mu.Unlock()
	if !ok {
		return 0
	}

	t.trailing.Clear(symbol)
	if t.metrics != nil {
		t.metrics.SetOpenPositions(n)
	}

	var pnl float64
	if exitPrice > 0 {
		pnl = pos.GrossPnL(exitPrice)
	}
	t.log.Info("position removed",
		logger.String("symbol", symbol),
		logger.Float64("exit", exitPrice),
		logger.Float64("pnl", pnl))
	return pnl
}

// ClosedAt returns when the symbol's last position was removed, for the
// engine's re-entry cooldown.
func (t *Tracker) ClosedAt(symbol string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	at, ok := t.closed[symbol]
	return at, ok
}

// Sync reconciles tracked state against the exchange's position report.
// Exchange-closed positions are dropped, unknown external positions above
// the dust floor are adopted, and positions present on both sides are left
// untouched.
func (t *Tracker) Sync(ctx context.Context, external []models.ExternalPosition) {
	for _, ext := range external {
		if ext.Amount == 0 {
			if t.Has(ext.Symbol) {
				t.log.Info("sync: removing exchange-closed position",
					logger.String("symbol", ext.Symbol))
				t.Remove(ctx, ext.Symbol, 0)
			}
			continue
		}
		if t.Has(ext.Symbol) {
			continue
		}

		notional := ext.Amount * ext.EntryPrice
		if notional < 0 {
			notional = -notional
		}
		if notional < t.cfg.DustFloor {
			continue
		}

		side := models.SideSell
		qty := -ext.Amount
		if ext.Amount > 0 {
			side = models.SideBuy
			qty = ext.Amount
		}
		t.log.Info("sync: adopting external position",
			logger.String("symbol", ext.Symbol),
			logger.String("side", string(side)),
			logger.Float64("quantity", qty))
		t.Track(ext.Symbol, side, ext.EntryPrice, qty)
	}
}
