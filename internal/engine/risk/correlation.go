package risk

import (
	"context"
	"math"
	"sync"
	"time"

	"TrendEngine/internal/domain/service"
	"TrendEngine/pkg/logger"
)

// ReturnsProvider supplies hourly return series for correlation estimates.
// The live implementation reads the exchange kline endpoint; the backtest
// derives returns from the replayed data.
type ReturnsProvider interface {
	HourlyReturns(ctx context.Context, symbol string, periods int) ([]float64, error)
}

// CorrelationConfig tunes the correlation gate.
type CorrelationConfig struct {
	Enabled      bool          `yaml:"enabled" default:"true"`
	Threshold    float64       `yaml:"threshold" default:"0.75"`
	MinPositions int           `yaml:"min_positions" default:"3"`
	Periods      int           `yaml:"periods" default:"24"`
	CacheTTL     time.Duration `yaml:"cache_ttl" default:"1h"`
}

// CorrelationGate rejects entries whose mean absolute correlation with
// already-open same-direction positions is too high. Data problems never
// block a trade: unknown correlations count as zero.
type CorrelationGate struct {
	cfg     CorrelationConfig
	returns ReturnsProvider
	clock   service.Clock
	log     *logger.Logger

	mu       sync.Mutex
	cache    map[string]map[string]float64
	cachedAt time.Time
}

// NewCorrelationGate creates the gate.
func NewCorrelationGate(cfg CorrelationConfig, returns ReturnsProvider, clock service.Clock, log *logger.Logger) *CorrelationGate {
	return &CorrelationGate{
		cfg:     cfg,
		returns: returns,
		clock:   clock,
		log:     log,
		cache:   make(map[string]map[string]float64),
	}
}

// Enabled reports whether the gate is active.
func (g *CorrelationGate) Enabled() bool { return g.cfg.Enabled }

// MinPositions returns the open-position count below which the gate skips.
func (g *CorrelationGate) MinPositions() int { return g.cfg.MinPositions }

// Allow checks whether symbol may open given the symbols of same-direction
// open positions. Below MinPositions open positions the check is skipped.
func (g *CorrelationGate) Allow(ctx context.Context, symbol string, openSameSide []string) bool {
	if !g.cfg.Enabled {
		return true
	}
	if len(openSameSide) < g.cfg.MinPositions {
		return true
	}

	others := make([]string, 0, len(openSameSide))
	for _, s := range openSameSide {
		if s != symbol {
			others = append(others, s)
		}
	}
	if len(others) == 0 {
		return true
	}

	var sum float64
	var count int
	for _, other := range others {
		sum += math.Abs(g.Correlation(ctx, symbol, other))
		count++
	}
	avg := sum / float64(count)

	if avg > g.cfg.Threshold {
		g.log.Warn("entry rejected: too correlated with open positions",
			logger.String("symbol", symbol),
			logger.Float64("avg_correlation", avg),
			logger.Float64("threshold", g.cfg.Threshold),
			logger.Int("open_positions", len(openSameSide)))
		return false
	}
	return true
}

// Correlation returns the Pearson coefficient of hourly returns between two
// symbols, cached for CacheTTL. Errors report 0 so the gate fails open.
func (g *CorrelationGate) Correlation(ctx context.Context, a, b string) float64 {
	if a == b {
		return 1
	}

	now := g.clock.Now()
	g.mu.Lock()
	if now.Sub(g.cachedAt) < g.cfg.CacheTTL {
		if m, ok := g.cache[a]; ok {
			if v, ok := m[b]; ok {
				g.mu.Unlock()
				return v
			}
		}
	} else {
		g.cache = make(map[string]map[string]float64)
	}
	g.mu.Unlock()

	v := g.compute(ctx, a, b)

	g.mu.Lock()
	g.store(a, b, v)
	g.store(b, a, v)
	g.cachedAt = now
	g.mu.Unlock()
	return v
}

func (g *CorrelationGate) store(a, b string, v float64) {
	m, ok := g.cache[a]
	if !ok {
		m = make(map[string]float64)
		g.cache[a] = m
	}
	m[b] = v
}

func (g *CorrelationGate) compute(ctx context.Context, a, b string) float64 {
	ra, err := g.returns.HourlyReturns(ctx, a, g.cfg.Periods)
	if err != nil {
		g.log.Error("failed to fetch returns", logger.String("symbol", a), logger.Error(err))
		return 0
	}
	rb, err := g.returns.HourlyReturns(ctx, b, g.cfg.Periods)
	if err != nil {
		g.log.Error("failed to fetch returns", logger.String("symbol", b), logger.Error(err))
		return 0
	}
	return Pearson(ra, rb)
}

// ClearCache drops all cached coefficients.
func (g *CorrelationGate) ClearCache() {
	g.mu.Lock()
	g.cache = make(map[string]map[string]float64)
	g.cachedAt = time.Time{}
	g.mu.Unlock()
}

// Pearson computes the Pearson correlation coefficient of two equal-length
// series. Mismatched or degenerate inputs report 0.
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}
	n := float64(len(x))
	var meanX, meanY float64
	for i := range x {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= n
	meanY /= n

	var num, sqX, sqY float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		num += dx * dy
		sqX += dx * dx
		sqY += dy * dy
	}
	if sqX == 0 || sqY == 0 {
		return 0
	}
	return num / math.Sqrt(sqX*sqY)
}
