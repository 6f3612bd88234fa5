package backtest

import (
	"context"
	"fmt"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/repository"
	"TrendEngine/internal/engine/strategy"
)

// SeriesProvider serves higher-timeframe bars and hourly returns during
// replay by aggregating the bars already fed to the engine. No exchange
// calls happen in a backtest, so gate decisions depend only on the input
// data.
type SeriesProvider struct {
	engine *strategy.Engine
}

// NewSeriesProvider creates the replay data provider. The engine is attached
// with Bind after construction: the engine's gates hold the provider, so the
// two reference each other.
func NewSeriesProvider() *SeriesProvider {
	return &SeriesProvider{}
}

// Bind attaches the strategy engine whose series back the provider.
func (p *SeriesProvider) Bind(engine *strategy.Engine) { p.engine = engine }

// Bars aggregates the symbol's replayed bars up to the requested timeframe.
func (p *SeriesProvider) Bars(symbol, timeframe string, limit int) (*models.Series, bool) {
	if p.engine == nil {
		return nil, false
	}
	d := repository.NormalizeTimeframe(timeframe).Duration()
	if d <= 0 {
		return nil, false
	}
	agg := aggregate(p.engine.Series(symbol), symbol, d)
	if agg.Len() == 0 {
		return nil, false
	}
	if limit > 0 && agg.Len() > limit {
		trimmed := models.NewSeries(symbol)
		for _, b := range agg.Bars()[agg.Len()-limit:] {
			trimmed.Append(b)
		}
		return trimmed, true
	}
	return agg, true
}

// HourlyReturns derives close-to-close returns from hourly aggregates.
func (p *SeriesProvider) HourlyReturns(ctx context.Context, symbol string, periods int) ([]float64, error) {
	if p.engine == nil {
		return nil, fmt.Errorf("series provider not bound to an engine")
	}
	agg := aggregate(p.engine.Series(symbol), symbol, time.Hour)
	bars := agg.Bars()
	if len(bars) < 2 {
		return nil, fmt.Errorf("not enough replayed data for %s hourly returns", symbol)
	}
	if len(bars) > periods+1 {
		bars = bars[len(bars)-periods-1:]
	}
	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, (bars[i].Close-prev)/prev)
	}
	return returns, nil
}

// aggregate rolls base bars into fixed buckets keyed by truncated open time.
// Only completed buckets matter to callers; the trailing partial bucket is
// included so the latest close is never stale.
func aggregate(src *models.Series, symbol string, bucket time.Duration) *models.Series {
	out := models.NewSeries(symbol)
	var cur *models.Bar
	for _, b := range src.Bars() {
		key := b.OpenTime.Truncate(bucket)
		if cur == nil || !cur.OpenTime.Equal(key) {
			if cur != nil {
				out.Append(*cur)
			}
			nb := b
			nb.OpenTime = key
			nb.CloseTime = key.Add(bucket)
			cur = &nb
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	if cur != nil {
		out.Append(*cur)
	}
	return out
}
