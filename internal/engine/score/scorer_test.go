package score

import (
	"math"
	"testing"
	"time"

	"TrendEngine/internal/domain/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMomentumScore(t *testing.T) {
	tests := []struct {
		side models.Side
		rsi  float64
		want float64
	}{
		{models.SideBuy, 55, 0},    // neutral edge for longs
		{models.SideBuy, 65, 12.5}, // halfway to full budget
		{models.SideBuy, 75, 25},   // full budget
		{models.SideBuy, 80, 25},   // clamped
		{models.SideBuy, 50, 0},    // below neutral, no negative score
		{models.SideSell, 45, 0},
		{models.SideSell, 35, 12.5},
		{models.SideSell, 25, 25},
		{models.SideSell, 20, 25},
	}
	for _, tt := range tests {
		got := momentumScore(tt.side, tt.rsi)
		if !almostEqual(got, tt.want) {
			t.Errorf("momentumScore(%s, rsi=%.0f) = %.4f, want %.4f", tt.side, tt.rsi, got, tt.want)
		}
	}
}

func TestConfirmationScore(t *testing.T) {
	s := New(Config{})

	snap := models.IndicatorSnapshot{
		models.IndMACD:       0.0015,
		models.IndMACDSignal: 0.0005,
	}
	// |0.0015-0.0005| * 10000 = 10
	if got := s.confirmationScore(snap); !almostEqual(got, 10) {
		t.Errorf("confirmationScore = %.4f, want 10", got)
	}

	// huge divergence clamps to the budget
	snap[models.IndMACD] = 1.0
	if got := s.confirmationScore(snap); !almostEqual(got, MaxConfirmation) {
		t.Errorf("confirmationScore = %.4f, want %.0f", got, MaxConfirmation)
	}

	// missing MACD scores zero
	if got := s.confirmationScore(models.IndicatorSnapshot{}); got != 0 {
		t.Errorf("confirmationScore with empty snapshot = %.4f, want 0", got)
	}
}

func TestTrendScore(t *testing.T) {
	s := New(Config{}) // TrendFullAt 0.01

	snap := models.IndicatorSnapshot{models.IndEMA50: 100}

	// long 0.5% above EMA50 earns half the budget
	if got := s.trendScore(models.SideBuy, 100.5, snap); !almostEqual(got, 10) {
		t.Errorf("trendScore long = %.4f, want 10", got)
	}
	// long 2% above clamps to the full budget
	if got := s.trendScore(models.SideBuy, 102, snap); !almostEqual(got, MaxTrend) {
		t.Errorf("trendScore long clamped = %.4f, want %.0f", got, MaxTrend)
	}
	// long below the EMA earns nothing
	if got := s.trendScore(models.SideBuy, 99, snap); got != 0 {
		t.Errorf("trendScore long below EMA = %.4f, want 0", got)
	}
	// short below the EMA mirrors the long case
	if got := s.trendScore(models.SideSell, 99.5, snap); !almostEqual(got, 10) {
		t.Errorf("trendScore short = %.4f, want 10", got)
	}
	// no EMA, no score
	if got := s.trendScore(models.SideBuy, 100, models.IndicatorSnapshot{}); got != 0 {
		t.Errorf("trendScore without EMA = %.4f, want 0", got)
	}
}

func TestVolumeScore(t *testing.T) {
	// missing volume history falls back to the baseline
	if got := volumeScore(models.IndicatorSnapshot{}); !almostEqual(got, 10) {
		t.Errorf("volumeScore fallback = %.4f, want 10", got)
	}
	if got := volumeScore(models.IndicatorSnapshot{models.IndVolumeRatio: 1.5}); !almostEqual(got, 7.5) {
		t.Errorf("volumeScore(1.5x) = %.4f, want 7.5", got)
	}
	if got := volumeScore(models.IndicatorSnapshot{models.IndVolumeRatio: 3}); !almostEqual(got, MaxVolume) {
		t.Errorf("volumeScore(3x) = %.4f, want %.0f", got, MaxVolume)
	}
	if got := volumeScore(models.IndicatorSnapshot{models.IndVolumeRatio: 0.8}); got != 0 {
		t.Errorf("volumeScore(0.8x) = %.4f, want 0", got)
	}
}

func TestMacroScore(t *testing.T) {
	tests := []struct {
		side  models.Side
		trend string
		want  float64
	}{
		{models.SideBuy, models.TrendBullish, 10},
		{models.SideBuy, models.TrendBearish, 0},
		{models.SideBuy, models.TrendNeutral, 5},
		{models.SideSell, models.TrendBearish, 10},
		{models.SideSell, models.TrendBullish, 0},
		{models.SideSell, models.TrendNeutral, 5},
	}
	for _, tt := range tests {
		if got := macroScore(tt.side, tt.trend); !almostEqual(got, tt.want) {
			t.Errorf("macroScore(%s, %s) = %.4f, want %.4f", tt.side, tt.trend, got, tt.want)
		}
	}
}

func TestScoreTotalCeiling(t *testing.T) {
	s := New(Config{})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// every component maxed out
	snap := models.IndicatorSnapshot{
		models.IndRSI:         80,
		models.IndMACD:        1,
		models.IndMACDSignal:  0,
		models.IndEMA50:       100,
		models.IndVolumeRatio: 5,
	}
	c := s.Score("BTCUSDT", models.SideBuy, 105, snap, models.TrendBullish, now)
	if !almostEqual(c.TotalScore, 100) {
		t.Fatalf("maxed candidate total = %.4f, want 100", c.TotalScore)
	}
	if c.CreatedAt != now {
		t.Errorf("CreatedAt = %v, want %v", c.CreatedAt, now)
	}
	if c.TTL != 5*time.Minute {
		t.Errorf("TTL = %v, want 5m", c.TTL)
	}
}

func TestScoreMissingIndicators(t *testing.T) {
	s := New(Config{})
	now := time.Now()

	// RSI defaults to 50 (scores 0), volume falls back to 10, depth is
	// fixed at 5, neutral macro gives 5.
	c := s.Score("ETHUSDT", models.SideBuy, 2000, models.IndicatorSnapshot{}, models.TrendNeutral, now)
	if !almostEqual(c.TotalScore, 20) {
		t.Fatalf("bare candidate total = %.4f, want 20", c.TotalScore)
	}
}

func TestCandidateExpired(t *testing.T) {
	now := time.Now()
	c := &models.SignalCandidate{CreatedAt: now, TTL: time.Minute}
	if c.Expired(now.Add(30 * time.Second)) {
		t.Error("candidate expired before TTL")
	}
	if !c.Expired(now.Add(2 * time.Minute)) {
		t.Error("candidate not expired after TTL")
	}
	noTTL := &models.SignalCandidate{CreatedAt: now}
	if noTTL.Expired(now.Add(24 * time.Hour)) {
		t.Error("zero TTL should never expire")
	}
}
