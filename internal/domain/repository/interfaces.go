package repository

import (
	"context"
	"time"

	"TrendEngine/internal/domain/models"
)

// MarketFeed streams closed bars from the exchange.
type MarketFeed interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan models.Bar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// ExecutionGateway places and closes orders. The live implementation talks
// to the exchange REST API; the backtest one fills instantly at bar close.
type ExecutionGateway interface {
	PlaceOrder(ctx context.Context, symbol string, side models.Side, quantity float64) (*models.Fill, error)
	ClosePosition(ctx context.Context, symbol string, side models.Side, quantity float64) (*models.Fill, error)
	AccountBalance(ctx context.Context) (float64, error)
	OpenPositions(ctx context.Context) ([]models.ExternalPosition, error)
}

// EventPublisher emits signal and trade events to the message bus.
type EventPublisher interface {
	PublishSignal(ctx context.Context, ev *models.SignalEvent) error
	PublishTrade(ctx context.Context, t *models.TradeEntry) error
	Close() error
}

// TradeHistory persists closed trades and candles for later analysis.
type TradeHistory interface {
	Init(ctx context.Context) error // ensure tables, health checks
	StoreTrade(ctx context.Context, t *models.TradeEntry) error
	StoreBars(ctx context.Context, bars []models.Bar) error
	QueryTrades(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.TradeEntry, error)
	QueryBars(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Bar, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// Notifier delivers human-facing alerts (executions, circuit breaker trips,
// forced liquidations). Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Metrics records operational counters for the decision pipeline.
type Metrics interface {
	RecordSignal(symbol, outcome string)
	RecordFilterBlock(filter string)
	RecordTradeClosed(symbol, reason string, pnl float64)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	SetOpenPositions(n int)
	SetCircuitBreaker(active bool)
}
