package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/service"
	"TrendEngine/pkg/logger"
)

// simPosition is one open virtual position.
type simPosition struct {
	side       models.Side
	quantity   float64
	entryPrice float64
	entryTime  int64 // unix nanos
	entryFee   float64
}

// SimGateway is the in-memory execution gateway for replay. Orders fill
// instantly at the current mark price with a per-side fee; there is no
// exchange and no latency, so a given bar sequence always produces the same
// fills.
type SimGateway struct {
	clock *service.SimClock
	log   *logger.Logger

	mu        sync.Mutex
	balance   float64
	feeRate   float64
	prices    map[string]float64
	positions map[string]*simPosition
	trades    []models.TradeEntry
	nextOrder int64
}

// NewSimGateway creates a simulated gateway with the given starting balance
// and per-side fee rate.
func NewSimGateway(initialBalance, feeRate float64, clock *service.SimClock, log *logger.Logger) *SimGateway {
	return &SimGateway{
		clock:     clock,
		log:       log,
		balance:   initialBalance,
		feeRate:   feeRate,
		prices:    make(map[string]float64),
		positions: make(map[string]*simPosition),
		nextOrder: 1,
	}
}

// Reset clears all virtual state for a fresh run.
func (g *SimGateway) Reset(initialBalance float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balance = initialBalance
	g.prices = make(map[string]float64)
	g.positions = make(map[string]*simPosition)
	g.trades = nil
	g.nextOrder = 1
}

// SetPrice updates the mark price used for fills.
func (g *SimGateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
}

// PlaceOrder fills a market order at the current mark price, charging the
// entry fee against the balance.
func (g *SimGateway) PlaceOrder(ctx context.Context, symbol string, side models.Side, quantity float64) (*models.Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	price, ok := g.prices[symbol]
	if !ok || price <= 0 {
		return nil, fmt.Errorf("no price data for %s", symbol)
	}

	fee := quantity * price * g.feeRate
	g.balance -= fee

	orderID := g.nextOrder
	g.nextOrder++

	if _, exists := g.positions[symbol]; !exists {
		g.positions[symbol] = &simPosition{
			side:       side,
			quantity:   quantity,
			entryPrice: price,
			entryTime:  g.clock.Now().UnixNano(),
			entryFee:   fee,
		}
	}

	return &models.Fill{
		OrderID:  fmt.Sprintf("%d", orderID),
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Price:    price,
		Time:     g.clock.Now(),
	}, nil
}

// ClosePosition fills the closing order at the current mark price and books
// the trade with both fees charged.
func (g *SimGateway) ClosePosition(ctx context.Context, symbol string, side models.Side, quantity float64) (*models.Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos, ok := g.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("no open position for %s", symbol)
	}
	price, ok := g.prices[symbol]
	if !ok || price <= 0 {
		return nil, fmt.Errorf("no price data for %s", symbol)
	}

	partial := quantity < pos.quantity

	var gross float64
	if pos.side.IsLong() {
		gross = (price - pos.entryPrice) * quantity
	} else {
		gross = (pos.entryPrice - price) * quantity
	}
	exitFee := quantity * price * g.feeRate
	entryFee := pos.entryFee
	if partial {
		entryFee = pos.entryFee * quantity / pos.quantity
	}
	// Entry fee was already debited at open; the trade log carries the full
	// round trip so the report reconciles against the balance.
	g.balance += gross - exitFee

	pnl := gross - entryFee - exitFee
	pct := 0.0
	if pos.entryPrice > 0 {
		pct = gross / (pos.entryPrice * quantity) * 100
	}
	reason := "CLOSE"
	if partial {
		reason = "PARTIAL_CLOSE"
	}
	g.trades = append(g.trades, models.TradeEntry{
		Symbol:     symbol,
		EntryTime:  timeFromNanos(pos.entryTime),
		ExitTime:   g.clock.Now(),
		Side:       pos.side,
		EntryPrice: pos.entryPrice,
		ExitPrice:  price,
		Quantity:   quantity,
		PnL:        pnl,
		PnLPercent: pct,
		ExitReason: reason,
		Commission: entryFee + exitFee,
	})

	if partial {
		pos.quantity -= quantity
		pos.entryFee -= entryFee
	} else {
		delete(g.positions, symbol)
	}

	return &models.Fill{
		OrderID:  fmt.Sprintf("%d", g.nextOrder),
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Price:    price,
		Time:     g.clock.Now(),
	}, nil
}

// AccountBalance returns the virtual balance.
func (g *SimGateway) AccountBalance(ctx context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

// OpenPositions returns the virtual positions in exchange-report form.
func (g *SimGateway) OpenPositions(ctx context.Context) ([]models.ExternalPosition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.ExternalPosition, 0, len(g.positions))
	for symbol, pos := range g.positions {
		amount := pos.quantity
		if !pos.side.IsLong() {
			amount = -amount
		}
		out = append(out, models.ExternalPosition{
			Symbol:     symbol,
			Amount:     amount,
			EntryPrice: pos.entryPrice,
		})
	}
	return out, nil
}

// Balance returns the current virtual balance without a context.
func (g *SimGateway) Balance() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance
}

// Trades returns the booked trade log in close order.
func (g *SimGateway) Trades() []models.TradeEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.TradeEntry, len(g.trades))
	copy(out, g.trades)
	return out
}

// HasPosition reports whether a virtual position is open for symbol.
func (g *SimGateway) HasPosition(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.positions[symbol]
	return ok
}

func timeFromNanos(ns int64) time.Time { return time.Unix(0, ns) }
