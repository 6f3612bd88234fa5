package score

import (
	"math"
	"time"

	"TrendEngine/internal/domain/models"
)

// Component budgets. The total is capped at 100 by construction.
const (
	MaxMomentum     = 25.0
	MaxConfirmation = 25.0
	MaxTrend        = 20.0
	MaxVolume       = 15.0
	MaxMacro        = 10.0
	MaxDepth        = 5.0
)

// Config tunes the scorer.
type Config struct {
	MACDScale    float64       `yaml:"macd_scale" default:"10000"`
	TrendFullAt  float64       `yaml:"trend_full_at" default:"0.01"`
	CandidateTTL time.Duration `yaml:"candidate_ttl" default:"5m"`
}

// Scorer grades qualified signals into comparable 0-100 candidates.
type Scorer struct {
	cfg Config
}

// New creates a scorer.
func New(cfg Config) *Scorer {
	if cfg.MACDScale == 0 {
		cfg.MACDScale = 10000
	}
	if cfg.TrendFullAt == 0 {
		cfg.TrendFullAt = 0.01
	}
	if cfg.CandidateTTL == 0 {
		cfg.CandidateTTL = 5 * time.Minute
	}
	return &Scorer{cfg: cfg}
}

// Score grades a signal that already passed the filter chain. macroTrend is
// the current BTC trend verdict; now stamps the candidate for TTL checks.
func (s *Scorer) Score(symbol string, side models.Side, price float64,
	snap models.IndicatorSnapshot, macroTrend string, now time.Time) *models.SignalCandidate {

	c := &models.SignalCandidate{
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		CreatedAt: now,
		TTL:       s.cfg.CandidateTTL,
	}

	c.MomentumScore = momentumScore(side, snap.GetDefault(models.IndRSI, 50))
	c.ConfirmationScore = s.confirmationScore(snap)
	c.TrendScore = s.trendScore(side, price, snap)
	c.VolumeScore = volumeScore(snap)
	c.MacroScore = macroScore(side, macroTrend)
	c.DepthScore = MaxDepth // flat until depth data feeds the scorer

	c.Finalize()
	return c
}

// momentumScore rewards RSI distance past the neutral band. A long at RSI 75
// or a short at RSI 25 earns the full budget.
func momentumScore(side models.Side, rsi float64) float64 {
	var v float64
	if side.IsLong() {
		v = (rsi - 55) / 20 * MaxMomentum
	} else {
		v = (45 - rsi) / 20 * MaxMomentum
	}
	return clamp(v, 0, MaxMomentum)
}

// confirmationScore rewards MACD divergence from its signal line.
func (s *Scorer) confirmationScore(snap models.IndicatorSnapshot) float64 {
	macd, ok1 := snap.Get(models.IndMACD)
	sig, ok2 := snap.Get(models.IndMACDSignal)
	if !ok1 || !ok2 {
		return 0
	}
	return clamp(math.Abs(macd-sig)*s.cfg.MACDScale, 0, MaxConfirmation)
}

// trendScore rewards price extension past the slow EMA in trade direction,
// reaching the full budget at TrendFullAt relative distance.
func (s *Scorer) trendScore(side models.Side, price float64, snap models.IndicatorSnapshot) float64 {
	ema50, ok := snap.Get(models.IndEMA50)
	if !ok || ema50 == 0 {
		return 0
	}
	dist := (price - ema50) / ema50
	if !side.IsLong() {
		dist = -dist
	}
	if dist <= 0 {
		return 0
	}
	return clamp(dist/s.cfg.TrendFullAt*MaxTrend, 0, MaxTrend)
}

// volumeScore gives a fixed baseline when volume history is missing, and
// otherwise scales with the surge ratio (full budget at 2x average).
func volumeScore(snap models.IndicatorSnapshot) float64 {
	ratio, ok := snap.Get(models.IndVolumeRatio)
	if !ok {
		return 10
	}
	return clamp((ratio-1)*MaxVolume, 0, MaxVolume)
}

// macroScore rewards alignment with the market-wide trend. Aligned earns the
// full budget, neutral half, opposed nothing.
func macroScore(side models.Side, macroTrend string) float64 {
	switch macroTrend {
	case models.TrendBullish:
		if side.IsLong() {
			return MaxMacro
		}
		return 0
	case models.TrendBearish:
		if side.IsLong() {
			return 0
		}
		return MaxMacro
	default:
		return MaxMacro / 2
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
