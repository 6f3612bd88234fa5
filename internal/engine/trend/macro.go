package trend

import (
	"sync/atomic"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/service"
	"TrendEngine/pkg/logger"
)

// MacroCell holds the market-wide trend verdict. Writers swap it atomically
// on each refresh; every reader on the decision path sees one consistent
// value with no locking.
type MacroCell struct {
	v atomic.Value
}

// NewMacroCell starts neutral.
func NewMacroCell() *MacroCell {
	c := &MacroCell{}
	c.v.Store(models.TrendNeutral)
	return c
}

// Get returns the current verdict.
func (c *MacroCell) Get() string { return c.v.Load().(string) }

// Set swaps in a new verdict.
func (c *MacroCell) Set(trend string) { c.v.Store(trend) }

// MacroAnalyzer refreshes the macro cell from the reference symbol's series.
// Bullish needs price above the slow EMA with MACD above its signal line;
// bearish is the mirror; anything else is neutral. Errors leave the cell
// neutral so the gate fails open.
type MacroAnalyzer struct {
	cell       *MacroCell
	indicators service.IndicatorEngine
	log        *logger.Logger
}

// NewMacroAnalyzer creates an analyzer writing into cell.
func NewMacroAnalyzer(cell *MacroCell, ind service.IndicatorEngine, log *logger.Logger) *MacroAnalyzer {
	return &MacroAnalyzer{cell: cell, indicators: ind, log: log}
}

// Refresh recomputes the verdict from the reference series and swaps the cell.
func (a *MacroAnalyzer) Refresh(series *models.Series) {
	if series == nil || series.Len() == 0 {
		a.cell.Set(models.TrendNeutral)
		return
	}
	snap := a.indicators.Compute(series)
	price := series.LastClose()

	ema50, ok1 := snap.Get(models.IndEMA50)
	macd, ok2 := snap.Get(models.IndMACD)
	sig, ok3 := snap.Get(models.IndMACDSignal)
	if !ok1 || !ok2 || !ok3 {
		a.cell.Set(models.TrendNeutral)
		return
	}

	verdict := models.TrendNeutral
	switch {
	case price > ema50 && macd > sig:
		verdict = models.TrendBullish
	case price < ema50 && macd < sig:
		verdict = models.TrendBearish
	}
	a.cell.Set(verdict)
	a.log.Debug("macro trend refreshed",
		logger.String("symbol", series.Symbol),
		logger.String("trend", verdict),
		logger.Float64("price", price))
}

// AllowsLong reports whether the macro verdict permits a long entry.
// Only an outright bearish market blocks longs.
func (c *MacroCell) AllowsLong() bool { return c.Get() != models.TrendBearish }

// AllowsShort reports whether the macro verdict permits a short entry.
func (c *MacroCell) AllowsShort() bool { return c.Get() != models.TrendBullish }
