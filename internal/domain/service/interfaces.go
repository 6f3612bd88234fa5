package service

import (
	"context"
	"time"

	"TrendEngine/internal/domain/models"
)

// IndicatorEngine computes technical indicators for the latest bar of a series.
type IndicatorEngine interface {
	Compute(series *models.Series) models.IndicatorSnapshot
}

// TrendService resolves higher-timeframe trend verdicts for a symbol.
type TrendService interface {
	Analyze(ctx context.Context, symbol string, tf string) (models.TrendAnalysis, error)
}

// SignalValidator gives a second opinion on a qualified candidate before
// execution. Implementations must fail open: on error, approve.
type SignalValidator interface {
	Validate(ctx context.Context, c *models.SignalCandidate, snap models.IndicatorSnapshot) (bool, error)
}

// Clock abstracts time for deterministic replay. Live code uses the wall
// clock; the backtest advances it to each bar close.
type Clock interface {
	Now() time.Time
}

// WallClock is the real-time Clock.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

// SimClock is a manually advanced Clock for replay.
type SimClock struct {
	t time.Time
}

// NewSimClock starts a simulated clock at t.
func NewSimClock(t time.Time) *SimClock { return &SimClock{t: t} }

func (c *SimClock) Now() time.Time { return c.t }

// Set moves the simulated clock to t.
func (c *SimClock) Set(t time.Time) { c.t = t }
