package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TradeEntry is one round trip in the backtest trade log.
type TradeEntry struct {
	Symbol     string    `json:"symbol"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	PnL        float64   `json:"pnl"`
	PnLPercent float64   `json:"pnl_percent"`
	ExitReason string    `json:"exit_reason"` // STOP_LOSS, TAKE_PROFIT, TRAILING_STOP, ...
	Commission float64   `json:"commission"`
}

// EquityPoint samples account balance over the simulation.
type EquityPoint struct {
	Timestamp       time.Time `json:"timestamp"`
	Balance         float64   `json:"balance"`
	DrawdownPercent float64   `json:"drawdown_percent"`
}

// BacktestReport aggregates the metrics and ordered trade log of one backtest
// run. It is derived once at run end and immutable afterwards.
type BacktestReport struct {
	Symbol         string
	Timeframe      string
	StartTime      time.Time
	EndTime        time.Time
	InitialBalance float64
	FinalBalance   float64

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // percent

	TotalProfit  float64
	TotalLoss    float64
	NetProfit    float64
	ProfitFactor float64
	AverageWin   float64
	AverageLoss  float64
	LargestWin   float64
	LargestLoss  float64

	MaxDrawdown        float64
	MaxDrawdownPercent float64
	SharpeRatio        float64

	Expectancy           float64
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	Trades      []TradeEntry
	EquityCurve []EquityPoint
}

// CalculateMetrics derives all aggregate metrics from the trade log and
// equity curve.
func (r *BacktestReport) CalculateMetrics() {
	if len(r.Trades) == 0 {
		return
	}

	r.TotalTrades = len(r.Trades)
	for _, t := range r.Trades {
		if t.PnL > 0 {
			r.WinningTrades++
			r.TotalProfit += t.PnL
		} else if t.PnL < 0 {
			r.LosingTrades++
			r.TotalLoss += -t.PnL
		}
		if t.PnL > r.LargestWin {
			r.LargestWin = t.PnL
		}
		if t.PnL < r.LargestLoss {
			r.LargestLoss = t.PnL
		}
	}
	r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades) * 100
	r.NetProfit = r.TotalProfit - r.TotalLoss
	r.FinalBalance = r.InitialBalance + r.NetProfit
	if r.TotalLoss > 0 {
		r.ProfitFactor = r.TotalProfit / r.TotalLoss
	}
	if r.WinningTrades > 0 {
		r.AverageWin = r.TotalProfit / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AverageLoss = r.TotalLoss / float64(r.LosingTrades)
	}

	winFrac := r.WinRate / 100
	r.Expectancy = winFrac*r.AverageWin - (1-winFrac)*r.AverageLoss

	r.calcStreaks()
	r.calcDrawdown()
	r.calcSharpe()
}

func (r *BacktestReport) calcStreaks() {
	streak := 0
	lastWin := false
	for i, t := range r.Trades {
		win := t.PnL > 0
		if i == 0 || win == lastWin {
			streak++
		} else {
			if lastWin {
				r.MaxConsecutiveWins = max(r.MaxConsecutiveWins, streak)
			} else {
				r.MaxConsecutiveLosses = max(r.MaxConsecutiveLosses, streak)
			}
			streak = 1
		}
		lastWin = win
	}
	if lastWin {
		r.MaxConsecutiveWins = max(r.MaxConsecutiveWins, streak)
	} else {
		r.MaxConsecutiveLosses = max(r.MaxConsecutiveLosses, streak)
	}
}

func (r *BacktestReport) calcDrawdown() {
	peak := r.InitialBalance
	for _, p := range r.EquityCurve {
		if p.Balance > peak {
			peak = p.Balance
		}
		dd := peak - p.Balance
		if dd > r.MaxDrawdown {
			r.MaxDrawdown = dd
			if peak > 0 {
				r.MaxDrawdownPercent = dd / peak * 100
			}
		}
	}
}

// calcSharpe computes an annualized Sharpe ratio from equity-curve returns,
// assuming 252 trading days.
func (r *BacktestReport) calcSharpe() {
	if len(r.EquityCurve) < 2 {
		return
	}
	returns := make([]float64, 0, len(r.EquityCurve)-1)
	for i := 1; i < len(r.EquityCurve); i++ {
		prev := r.EquityCurve[i-1].Balance
		if prev == 0 {
			continue
		}
		returns = append(returns, (r.EquityCurve[i].Balance-prev)/prev)
	}
	if len(returns) == 0 {
		return
	}
	var mean float64
	for _, v := range returns {
		mean += v
	}
	mean /= float64(len(returns))
	var variance float64
	for _, v := range returns {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(returns))
	if sd := math.Sqrt(variance); sd > 0 {
		r.SharpeRatio = mean / sd * math.Sqrt(252)
	}
}

// NetProfitPercent returns the net profit as a percentage of the initial balance.
func (r *BacktestReport) NetProfitPercent() float64 {
	if r.InitialBalance == 0 {
		return 0
	}
	return r.NetProfit / r.InitialBalance * 100
}

// Summary renders a human-readable report.
func (r *BacktestReport) Summary() string {
	var sb strings.Builder
	line := strings.Repeat("-", 60)
	fmt.Fprintf(&sb, "%s\n  BACKTEST REPORT\n%s\n", line, line)
	fmt.Fprintf(&sb, "Symbol: %s | Timeframe: %s\n", r.Symbol, r.Timeframe)
	fmt.Fprintf(&sb, "Period: %s to %s\n\n", r.StartTime.Format(time.RFC3339), r.EndTime.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Initial Balance: $%.2f\n", r.InitialBalance)
	fmt.Fprintf(&sb, "Final Balance:   $%.2f\n", r.FinalBalance)
	fmt.Fprintf(&sb, "Net Profit:      $%.2f (%.2f%%)\n", r.NetProfit, r.NetProfitPercent())
	fmt.Fprintf(&sb, "Total Trades:    %d (won %d, lost %d)\n", r.TotalTrades, r.WinningTrades, r.LosingTrades)
	fmt.Fprintf(&sb, "Win Rate:        %.1f%%\n", r.WinRate)
	fmt.Fprintf(&sb, "Profit Factor:   %.2f\n", r.ProfitFactor)
	fmt.Fprintf(&sb, "Expectancy:      $%.2f per trade\n", r.Expectancy)
	fmt.Fprintf(&sb, "Max Drawdown:    $%.2f (%.2f%%)\n", r.MaxDrawdown, r.MaxDrawdownPercent)
	fmt.Fprintf(&sb, "Sharpe Ratio:    %.2f\n", r.SharpeRatio)
	fmt.Fprintf(&sb, "%s\n", line)
	return sb.String()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
