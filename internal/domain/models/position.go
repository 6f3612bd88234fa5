package models

import "time"

// Position is an open position. One position per symbol; the symbol is the
// unique key and the position tracker is the exclusive owner.
type Position struct {
	Symbol          string
	Side            Side
	EntryPrice      float64
	Quantity        float64 // mutable via partial closes
	StopLossPercent float64 // per-position stop-loss override
	EntryTime       time.Time
}

// Notional returns the dollar-equivalent size of the position at entry.
func (p *Position) Notional() float64 {
	n := p.Quantity * p.EntryPrice
	if n < 0 {
		return -n
	}
	return n
}

// GrossPnL returns the price-based profit before commission at the given price.
func (p *Position) GrossPnL(price float64) float64 {
	if p.Side == SideBuy {
		return (price - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - price) * p.Quantity
}

// ProfitPercent returns the gross favorable excursion as a fraction of entry.
func (p *Position) ProfitPercent(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == SideBuy {
		return (price - p.EntryPrice) / p.EntryPrice
	}
	return (p.EntryPrice - price) / p.EntryPrice
}

// PositionAction is the verdict of a fixed SL/TP check.
type PositionAction int

const (
	ActionHold PositionAction = iota
	ActionCloseStopLoss
	ActionCloseTakeProfit
)

func (a PositionAction) String() string {
	switch a {
	case ActionCloseStopLoss:
		return "STOP_LOSS"
	case ActionCloseTakeProfit:
		return "TAKE_PROFIT"
	default:
		return "HOLD"
	}
}

// ExternalPosition is a position as reported by the exchange, used for
// startup reconciliation. Amount is signed: positive long, negative short.
type ExternalPosition struct {
	Symbol     string
	Amount     float64
	EntryPrice float64
}

// Fill is a confirmed order execution from the gateway.
type Fill struct {
	OrderID  string
	Symbol   string
	Side     Side
	Quantity float64
	Price    float64
	Time     time.Time
}
