package trend

import (
	"testing"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/service/indicator"
	"TrendEngine/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	lg, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return lg
}

func sloped(n int, start, step float64) *models.Series {
	s := models.NewSeries("BTCUSDT")
	t0 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := start + step*float64(i)
		s.Append(models.Bar{
			Symbol:    "BTCUSDT",
			OpenTime:  t0.Add(time.Duration(i) * 5 * time.Minute),
			CloseTime: t0.Add(time.Duration(i+1) * 5 * time.Minute),
			Open:      c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1,
		})
	}
	return s
}

func TestMacroCellDefaults(t *testing.T) {
	c := NewMacroCell()
	if c.Get() != models.TrendNeutral {
		t.Fatalf("fresh cell = %s, want neutral", c.Get())
	}
	if !c.AllowsLong() || !c.AllowsShort() {
		t.Error("neutral must allow both sides")
	}

	c.Set(models.TrendBearish)
	if c.AllowsLong() {
		t.Error("bearish must block longs")
	}
	if !c.AllowsShort() {
		t.Error("bearish must allow shorts")
	}

	c.Set(models.TrendBullish)
	if !c.AllowsLong() {
		t.Error("bullish must allow longs")
	}
	if c.AllowsShort() {
		t.Error("bullish must block shorts")
	}
}

func TestMacroAnalyzerRefresh(t *testing.T) {
	cell := NewMacroCell()
	a := NewMacroAnalyzer(cell, indicator.New(), testLogger(t))

	// steadily rising: price above EMA50, MACD above signal
	a.Refresh(sloped(80, 100, 0.5))
	if cell.Get() != models.TrendBullish {
		t.Errorf("rising series verdict = %s, want bullish", cell.Get())
	}

	// steadily falling mirrors to bearish
	a.Refresh(sloped(80, 200, -0.5))
	if cell.Get() != models.TrendBearish {
		t.Errorf("falling series verdict = %s, want bearish", cell.Get())
	}

	// too short for an EMA50: verdict resets to neutral
	a.Refresh(sloped(10, 100, 0.5))
	if cell.Get() != models.TrendNeutral {
		t.Errorf("short series verdict = %s, want neutral", cell.Get())
	}

	a.Refresh(nil)
	if cell.Get() != models.TrendNeutral {
		t.Errorf("nil series verdict = %s, want neutral", cell.Get())
	}
}
