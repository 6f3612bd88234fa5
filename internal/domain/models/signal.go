package models

import (
	"fmt"
	"time"
)

// Side is the direction of a trade or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// IsLong reports whether the side opens a long position.
func (s Side) IsLong() bool { return s == SideBuy }

// Rejection reason codes attached to signal events. Machine-readable; the
// detail field carries the human explanation.
const (
	ReasonFilterBlocked    = "FILTER_BLOCKED"
	ReasonMacroTrend       = "MACRO_TREND"
	ReasonHigherTimeframe  = "HTF_TREND"
	ReasonOrderBook        = "ORDER_BOOK"
	ReasonCorrelation      = "CORRELATION"
	ReasonRiskLimits       = "RISK_LIMITS"
	ReasonPositionSize     = "POSITION_SIZE"
	ReasonBalance          = "LOW_BALANCE"
	ReasonSlippage         = "SLIPPAGE"
	ReasonOrderFailed      = "ORDER_FAILED"
	ReasonExpired          = "EXPIRED"
	ReasonExecuted         = "EXECUTED"
	ReasonPending          = "PENDING"
	ReasonValidatorBlocked = "ML_VALIDATOR"
)

// SignalCandidate is a qualifying entry signal with its component scores.
// Each component is capped to its own budget so the total has a fixed ceiling
// of 100 points.
type SignalCandidate struct {
	Symbol string
	Side   Side
	Price  float64

	MomentumScore     float64 // 0-25
	ConfirmationScore float64 // 0-25
	TrendScore        float64 // 0-20
	VolumeScore       float64 // 0-15
	MacroScore        float64 // 0-10
	DepthScore        float64 // 0-5

	TotalScore float64

	CreatedAt time.Time
	TTL       time.Duration
}

// Finalize sums the component scores into TotalScore.
func (c *SignalCandidate) Finalize() {
	c.TotalScore = c.MomentumScore + c.ConfirmationScore + c.TrendScore +
		c.VolumeScore + c.MacroScore + c.DepthScore
}

// Expired reports whether the candidate is past its TTL at the given time.
// Expired candidates must never execute.
func (c *SignalCandidate) Expired(now time.Time) bool {
	return c.TTL > 0 && now.Sub(c.CreatedAt) > c.TTL
}

func (c *SignalCandidate) String() string {
	return fmt.Sprintf("%s %s @ %.4f | score %.1f (mom:%.1f conf:%.1f trend:%.1f vol:%.1f macro:%.1f depth:%.1f)",
		c.Symbol, c.Side, c.Price, c.TotalScore,
		c.MomentumScore, c.ConfirmationScore, c.TrendScore,
		c.VolumeScore, c.MacroScore, c.DepthScore)
}

// SignalEvent records a strategy decision (blocked, pending or executed) for
// the notification and persistence sinks.
type SignalEvent struct {
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Reason   string    `json:"reason"` // reason code
	Detail   string    `json:"detail"`
	Price    float64   `json:"price"`
	Executed bool      `json:"executed"`
	Time     time.Time `json:"time"`
}

// TrendAnalysis is a higher-timeframe trend verdict with a 0-100 strength.
type TrendAnalysis struct {
	Direction string // "BULLISH", "BEARISH", "NEUTRAL"
	Strength  int
}

const (
	TrendBullish = "BULLISH"
	TrendBearish = "BEARISH"
	TrendNeutral = "NEUTRAL"
)
