package trend

import (
	"math"
	"sync"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/service"
	"TrendEngine/internal/service/indicator"
	"TrendEngine/pkg/logger"
)

// BarProvider supplies higher-timeframe bar history for a symbol. The live
// implementation reads the websocket kline cache; the backtest aggregates
// from the replayed series.
type BarProvider interface {
	Bars(symbol, timeframe string, limit int) (*models.Series, bool)
}

// HTFConfig tunes higher-timeframe confirmation.
type HTFConfig struct {
	Enabled       bool          `yaml:"enabled" default:"true"`
	Timeframe     string        `yaml:"timeframe" default:"1h"`
	EMAFast       int           `yaml:"ema_fast" default:"21"`
	EMASlow       int           `yaml:"ema_slow" default:"50"`
	BlockStrength int           `yaml:"block_strength" default:"60"`
	CacheTTL      time.Duration `yaml:"cache_ttl" default:"5m"`
}

// HTFService verifies trend direction on a higher timeframe before entries.
// Only a strong opposing trend blocks; missing data or errors fail open.
type HTFService struct {
	cfg   HTFConfig
	bars  BarProvider
	clock service.Clock
	log   *logger.Logger

	mu       sync.Mutex
	cache    map[string]models.TrendAnalysis
	cachedAt time.Time
}

// NewHTFService creates the higher-timeframe service.
func NewHTFService(cfg HTFConfig, bars BarProvider, clock service.Clock, log *logger.Logger) *HTFService {
	return &HTFService{
		cfg:   cfg,
		bars:  bars,
		clock: clock,
		log:   log,
		cache: make(map[string]models.TrendAnalysis),
	}
}

// AllowLong reports whether a long entry is permitted. Only a bullish-blocking
// case exists: a BEARISH higher-timeframe trend stronger than BlockStrength.
func (s *HTFService) AllowLong(symbol string) bool {
	if !s.cfg.Enabled {
		return true
	}
	a := s.Detailed(symbol)
	if a.Direction == models.TrendBearish && a.Strength > s.cfg.BlockStrength {
		s.log.Debug("long blocked by higher timeframe",
			logger.String("symbol", symbol), logger.Int("strength", a.Strength))
		return false
	}
	return true
}

// AllowShort mirrors AllowLong for short entries.
func (s *HTFService) AllowShort(symbol string) bool {
	if !s.cfg.Enabled {
		return true
	}
	a := s.Detailed(symbol)
	if a.Direction == models.TrendBullish && a.Strength > s.cfg.BlockStrength {
		s.log.Debug("short blocked by higher timeframe",
			logger.String("symbol", symbol), logger.Int("strength", a.Strength))
		return false
	}
	return true
}

// Detailed returns the trend verdict with a 0-100 strength, cached per
// symbol for CacheTTL.
func (s *HTFService) Detailed(symbol string) models.TrendAnalysis {
	if !s.cfg.Enabled {
		return models.TrendAnalysis{Direction: models.TrendNeutral}
	}

	now := s.clock.Now()
	s.mu.Lock()
	if now.Sub(s.cachedAt) < s.cfg.CacheTTL {
		if a, ok := s.cache[symbol]; ok {
			s.mu.Unlock()
			return a
		}
	} else {
		s.cache = make(map[string]models.TrendAnalysis)
	}
	s.mu.Unlock()

	a := s.analyze(symbol)

	s.mu.Lock()
	s.cache[symbol] = a
	s.cachedAt = now
	s.mu.Unlock()
	return a
}

// ClearCache drops cached verdicts so the next call recomputes.
func (s *HTFService) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]models.TrendAnalysis)
	s.cachedAt = time.Time{}
	s.mu.Unlock()
}

func (s *HTFService) analyze(symbol string) models.TrendAnalysis {
	neutral := models.TrendAnalysis{Direction: models.TrendNeutral}

	series, ok := s.bars.Bars(symbol, s.cfg.Timeframe, 100)
	if !ok || series == nil {
		return neutral
	}
	minBars := s.cfg.EMASlow
	if s.cfg.EMAFast > minBars {
		minBars = s.cfg.EMAFast
	}
	if series.Len() < minBars+5 {
		return neutral
	}

	closes := series.Closes()
	price := series.LastClose()

	fastS := indicator.EMA(closes, s.cfg.EMAFast)
	slowS := indicator.EMA(closes, s.cfg.EMASlow)
	macd, sig, okM := indicator.MACD(closes, indicator.MACDFast, indicator.MACDSlow, indicator.MACDSignal)
	if len(fastS) == 0 || len(slowS) == 0 || !okM {
		return neutral
	}
	fast := fastS[len(fastS)-1]
	slow := slowS[len(slowS)-1]

	direction := models.TrendNeutral
	switch {
	case price > fast && fast > slow && macd > sig:
		direction = models.TrendBullish
	case price < fast && fast < slow && macd < sig:
		direction = models.TrendBearish
	}

	strength := 0
	if direction != models.TrendNeutral {
		strength += 40
	}
	if price > 0 {
		emaDist := math.Abs(fast-slow) / price * 100
		if emaDist > 0.5 {
			pts := int(emaDist * 15)
			if pts > 30 {
				pts = 30
			}
			strength += pts
		}
	}
	if diff := math.Abs(macd - sig); diff > 0.001 {
		pts := int(diff * 1000)
		if pts > 20 {
			pts = 20
		}
		strength += pts
	}
	if n := series.Len(); n >= 2 {
		window := 20
		if n < window {
			window = n
		}
		var avg float64
		for i := n - window; i < n-1; i++ {
			avg += series.Bar(i).Volume
		}
		avg /= float64(window - 1)
		if last, _ := series.Last(); avg > 0 && last.Volume > avg*1.2 {
			strength += 10
		}
	}

	return models.TrendAnalysis{Direction: direction, Strength: strength}
}
