package indicator

import (
	"math"
	"testing"
	"time"

	"TrendEngine/internal/domain/models"
)

func trendBars(n int, start, step, vol float64) *models.Series {
	s := models.NewSeries("TEST")
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := start + step*float64(i)
		s.Append(models.Bar{
			Symbol:    "TEST",
			OpenTime:  t0.Add(time.Duration(i) * 5 * time.Minute),
			CloseTime: t0.Add(time.Duration(i+1) * 5 * time.Minute),
			Open:      c - step/2,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    vol,
		})
	}
	return s
}

func TestEMA(t *testing.T) {
	// seeded with the SMA of the first period, k = 0.5 for period 3
	got := EMA([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("EMA length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("EMA[%d] = %.4f, want %.4f", i, got[i], want[i])
		}
	}

	if EMA([]float64{1, 2}, 3) != nil {
		t.Error("EMA with too few values should be nil")
	}
	if EMA(nil, 0) != nil {
		t.Error("EMA with period 0 should be nil")
	}
}

func TestEMASlope(t *testing.T) {
	// rising closes give a positive relative slope
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	slope, ok := EMASlope(closes, 10, 5)
	if !ok {
		t.Fatal("slope unavailable on 30 bars")
	}
	if slope <= 0 {
		t.Errorf("slope = %.6f, want positive on a rising series", slope)
	}

	if _, ok := EMASlope(closes[:12], 10, 5); ok {
		t.Error("slope should need period+lookback bars")
	}
}

func TestRSIExtremes(t *testing.T) {
	up := make([]float64, 20)
	for i := range up {
		up[i] = 100 + float64(i)
	}
	if v, ok := RSI(up, 14); !ok || v != 100 {
		t.Errorf("RSI of all gains = %.2f (ok=%v), want 100", v, ok)
	}

	down := make([]float64, 20)
	for i := range down {
		down[i] = 100 - float64(i)
	}
	if v, ok := RSI(down, 14); !ok || v != 0 {
		t.Errorf("RSI of all losses = %.2f (ok=%v), want 0", v, ok)
	}

	if _, ok := RSI(up[:14], 14); ok {
		t.Error("RSI should need period+1 closes")
	}
}

func TestMACDRequiresWarmup(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	if _, _, ok := MACD(closes[:34], 12, 26, 9); ok {
		t.Error("MACD should need slow+signal closes")
	}
	macd, sig, ok := MACD(closes, 12, 26, 9)
	if !ok {
		t.Fatal("MACD unavailable on 40 closes")
	}
	// on a steadily rising series the fast EMA leads the slow one
	if macd <= 0 {
		t.Errorf("MACD = %.4f, want positive on a rising series", macd)
	}
	if sig <= 0 {
		t.Errorf("signal = %.4f, want positive on a rising series", sig)
	}
}

func TestATRConstantRange(t *testing.T) {
	// every bar spans exactly 1.0 and gaps 0.5 above the previous close,
	// so the true range is max(1, 1.5, 0.5) = 1.5 throughout
	s := trendBars(20, 100, 1, 10)
	atr, ok := ATR(s.Bars(), 14)
	if !ok {
		t.Fatal("ATR unavailable on 20 bars")
	}
	if math.Abs(atr-1.5) > 1e-9 {
		t.Errorf("ATR = %.4f, want 1.5", atr)
	}
}

func TestADXStrongTrend(t *testing.T) {
	// strictly rising highs and lows: all directional movement is positive,
	// so DX is 100 on every bar and ADX converges to 100
	s := trendBars(40, 100, 1, 10)
	adx, ok := ADX(s.Bars(), 14)
	if !ok {
		t.Fatal("ADX unavailable on 40 bars")
	}
	if math.Abs(adx-100) > 1e-6 {
		t.Errorf("ADX = %.4f, want 100 in a one-way trend", adx)
	}

	if _, ok := ADX(s.Bars()[:28], 14); ok {
		t.Error("ADX should need 2*period+1 bars")
	}
}

func TestComputeSnapshot(t *testing.T) {
	eng := New()

	// short series: nothing but the always-computable keys
	snap := eng.Compute(trendBars(5, 100, 1, 10))
	if _, ok := snap.Get(models.IndRSI); ok {
		t.Error("RSI present on a 5-bar series")
	}
	if _, ok := snap.Get(models.IndADX); ok {
		t.Error("ADX present on a 5-bar series")
	}

	// long series: the full snapshot
	s := trendBars(60, 100, 1, 10)
	// volume surge on the final bar
	last, _ := s.Last()
	s.Append(models.Bar{
		Symbol:    "TEST",
		OpenTime:  last.CloseTime,
		CloseTime: last.CloseTime.Add(5 * time.Minute),
		Open:      last.Close,
		High:      last.Close + 1.5,
		Low:       last.Close + 0.5,
		Close:     last.Close + 1,
		Volume:    30,
	})
	snap = eng.Compute(s)

	for _, key := range []string{
		models.IndRSI, models.IndMACD, models.IndMACDSignal,
		models.IndEMA9, models.IndEMA21, models.IndEMA50,
		models.IndADX, models.IndATR, models.IndATRPercent,
		models.IndVolumeAvg, models.IndVolumeLatest, models.IndVolumeRatio,
	} {
		if _, ok := snap.Get(key); !ok {
			t.Errorf("snapshot missing %s on a 61-bar series", key)
		}
	}

	// last 20 bars before the surge all carry volume 10
	if ratio := snap.GetDefault(models.IndVolumeRatio, 0); math.Abs(ratio-3) > 1e-9 {
		t.Errorf("volume ratio = %.4f, want 3", ratio)
	}

	// rising series keeps the EMAs stacked fast over slow
	e9 := snap.GetDefault(models.IndEMA9, 0)
	e21 := snap.GetDefault(models.IndEMA21, 0)
	e50 := snap.GetDefault(models.IndEMA50, 0)
	if !(e9 > e21 && e21 > e50) {
		t.Errorf("EMAs not stacked: %.4f/%.4f/%.4f", e9, e21, e50)
	}
}
