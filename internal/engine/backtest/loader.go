package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/repository"
	"TrendEngine/pkg/logger"
)

// DataSource loads historical bars for a replay run.
type DataSource interface {
	Load(ctx context.Context, symbol string, from, to time.Time, tf repository.Timeframe) ([]models.Bar, error)
}

// FileSource reads cached kline files: a JSON array of kline arrays in the
// exchange wire format [openTime, open, high, low, close, volume, closeTime,
// ...], with numbers as strings or raw numbers. Files are named
// <symbol>_<tf>_<from>_<to>.json under the cache directory.
type FileSource struct {
	Dir string
	Log *logger.Logger
}

// Load reads and decodes the cached kline file for the requested range.
func (s *FileSource) Load(ctx context.Context, symbol string, from, to time.Time, tf repository.Timeframe) ([]models.Bar, error) {
	name := fmt.Sprintf("%s_%s_%s_%s.json",
		symbol, tf, from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"))
	path := filepath.Join(s.Dir, name)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read kline cache: %w", err)
	}

	var klines [][]json.RawMessage
	if err := json.Unmarshal(raw, &klines); err != nil {
		return nil, fmt.Errorf("decode kline cache %s: %w", path, err)
	}

	bars := make([]models.Bar, 0, len(klines))
	for i, k := range klines {
		if len(k) < 7 {
			return nil, fmt.Errorf("kline %d in %s has %d fields", i, path, len(k))
		}
		openMs, err := asInt64(k[0])
		if err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}
		closeMs, err := asInt64(k[6])
		if err != nil {
			return nil, fmt.Errorf("kline %d close time: %w", i, err)
		}
		vals := make([]float64, 5)
		for j := 1; j <= 5; j++ {
			v, err := asFloat(k[j])
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j, err)
			}
			vals[j-1] = v
		}
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			OpenTime:  time.UnixMilli(openMs).UTC(),
			CloseTime: time.UnixMilli(closeMs).UTC(),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}

	if s.Log != nil {
		s.Log.Info("loaded cached klines",
			logger.String("symbol", symbol),
			logger.String("file", path),
			logger.Int("bars", len(bars)))
	}
	return bars, nil
}

// HistorySource replays bars persisted in the trade history store.
type HistorySource struct {
	Store repository.TradeHistory
}

// Load queries the candle table for the requested range.
func (s *HistorySource) Load(ctx context.Context, symbol string, from, to time.Time, tf repository.Timeframe) ([]models.Bar, error) {
	return s.Store.QueryBars(ctx, symbol, from, to, tf)
}

func asInt64(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}

func asFloat(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}
