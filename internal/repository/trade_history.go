package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/repository"
	pkgch "TrendEngine/pkg/clickhouse"
)

const (
	tradesTable  = "trades"
	candlesTable = "candles"
)

// ClickHouseHistory implements TradeHistory on ClickHouse.
type ClickHouseHistory struct {
	client *pkgch.Client
}

// NewClickHouseHistory creates the history store.
func NewClickHouseHistory(client *pkgch.Client) *ClickHouseHistory {
	return &ClickHouseHistory{client: client}
}

// Init ensures the trade and candle tables exist.
func (s *ClickHouseHistory) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol       LowCardinality(String),
			entry_ts     DateTime64(3),
			exit_ts      DateTime64(3),
			side         LowCardinality(String),
			entry_price  Float64,
			exit_price   Float64,
			quantity     Float64,
			pnl          Float64,
			pnl_percent  Float64,
			exit_reason  LowCardinality(String),
			commission   Float64
		) ENGINE = MergeTree()
		ORDER BY (symbol, exit_ts)`, tradesTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol     LowCardinality(String),
			timeframe  LowCardinality(String),
			open_ts    DateTime64(3),
			close_ts   DateTime64(3),
			open       Float64,
			high       Float64,
			low        Float64,
			close      Float64,
			volume     Float64
		) ENGINE = ReplacingMergeTree()
		ORDER BY (symbol, timeframe, close_ts)`, candlesTable),
	}
	return s.client.InitSchema(ctx, stmts)
}

// StoreTrade persists one closed trade.
func (s *ClickHouseHistory) StoreTrade(ctx context.Context, t *models.TradeEntry) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(symbol, entry_ts, exit_ts, side, entry_price, exit_price, quantity, pnl, pnl_percent, exit_reason, commission)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tradesTable)
	_, err := s.client.DB().ExecContext(ctx, q,
		t.Symbol, t.EntryTime, t.ExitTime, string(t.Side),
		t.EntryPrice, t.ExitPrice, t.Quantity,
		t.PnL, t.PnLPercent, t.ExitReason, t.Commission,
	)
	if err != nil {
		return fmt.Errorf("store trade: %w", err)
	}
	return nil
}

// StoreBars persists closed candles in chunked multi-row inserts.
func (s *ClickHouseHistory) StoreBars(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(bars); start += chunkSize {
		end := start + chunkSize
		if end > len(bars) {
			end = len(bars)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, b := range bars[start:end] {
			if b.Symbol == "" || b.CloseTime.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				b.Symbol, string(repository.DefaultTimeframe()),
				b.OpenTime, b.CloseTime,
				b.Open, b.High, b.Low, b.Close, b.Volume,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, timeframe, open_ts, close_ts, open, high, low, close, volume) VALUES %s",
			candlesTable, strings.Join(values, ","))
		if _, err := s.client.DB().ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store bars: %w", err)
		}
	}
	return nil
}

// QueryTrades returns closed trades for the symbol in the range, newest first.
func (s *ClickHouseHistory) QueryTrades(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.TradeEntry, error) {
	q := fmt.Sprintf(`SELECT symbol, entry_ts, exit_ts, side, entry_price, exit_price, quantity, pnl, pnl_percent, exit_reason, commission
		FROM %s WHERE symbol = ? AND exit_ts >= ? AND exit_ts <= ?
		ORDER BY exit_ts DESC LIMIT ?`, tradesTable)
	rows, err := s.client.DB().QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.TradeEntry
	for rows.Next() {
		var t models.TradeEntry
		var side string
		if err := rows.Scan(&t.Symbol, &t.EntryTime, &t.ExitTime, &side,
			&t.EntryPrice, &t.ExitPrice, &t.Quantity,
			&t.PnL, &t.PnLPercent, &t.ExitReason, &t.Commission); err != nil {
			return nil, err
		}
		t.Side = models.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// QueryBars returns candles for the symbol and timeframe in close-time order.
func (s *ClickHouseHistory) QueryBars(ctx context.Context, symbol string, from, to time.Time, tf repository.Timeframe) ([]models.Bar, error) {
	q := fmt.Sprintf(`SELECT symbol, open_ts, close_ts, open, high, low, close, volume
		FROM %s WHERE symbol = ? AND timeframe = ? AND close_ts >= ? AND close_ts <= ?
		ORDER BY close_ts ASC`, candlesTable)
	rows, err := s.client.DB().QueryContext(ctx, q, symbol, string(tf), from, to)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Symbol, &b.OpenTime, &b.CloseTime,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Health pings the database.
func (s *ClickHouseHistory) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close is a no-op; the pooled client is closed by the app.
func (s *ClickHouseHistory) Close() error {
	return nil
}
