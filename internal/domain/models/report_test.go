package models

import (
	"math"
	"strings"
	"testing"
	"time"
)

func trade(pnl float64) TradeEntry {
	return TradeEntry{Symbol: "BTCUSDT", Side: SideBuy, PnL: pnl}
}

func TestCalculateMetrics(t *testing.T) {
	r := &BacktestReport{
		InitialBalance: 1000,
		Trades: []TradeEntry{
			trade(10), trade(20), trade(-5), trade(-5), trade(-10), trade(30),
		},
	}
	r.CalculateMetrics()

	if r.TotalTrades != 6 || r.WinningTrades != 3 || r.LosingTrades != 3 {
		t.Fatalf("counts = %d/%d/%d, want 6/3/3", r.TotalTrades, r.WinningTrades, r.LosingTrades)
	}
	if r.WinRate != 50 {
		t.Errorf("WinRate = %.2f, want 50", r.WinRate)
	}
	if r.TotalProfit != 60 || r.TotalLoss != 20 {
		t.Errorf("profit/loss = %.2f/%.2f, want 60/20", r.TotalProfit, r.TotalLoss)
	}
	if r.NetProfit != 40 {
		t.Errorf("NetProfit = %.2f, want 40", r.NetProfit)
	}
	if r.FinalBalance != 1040 {
		t.Errorf("FinalBalance = %.2f, want 1040", r.FinalBalance)
	}
	if r.ProfitFactor != 3 {
		t.Errorf("ProfitFactor = %.2f, want 3", r.ProfitFactor)
	}
	if r.AverageWin != 20 {
		t.Errorf("AverageWin = %.2f, want 20", r.AverageWin)
	}
	if math.Abs(r.AverageLoss-20.0/3) > 1e-9 {
		t.Errorf("AverageLoss = %.4f, want 6.6667", r.AverageLoss)
	}
	if r.LargestWin != 30 || r.LargestLoss != -10 {
		t.Errorf("largest win/loss = %.2f/%.2f, want 30/-10", r.LargestWin, r.LargestLoss)
	}
	// 0.5*20 - 0.5*6.6667
	if math.Abs(r.Expectancy-(10-10.0/3)) > 1e-9 {
		t.Errorf("Expectancy = %.4f, want %.4f", r.Expectancy, 10-10.0/3)
	}
	if r.MaxConsecutiveWins != 2 {
		t.Errorf("MaxConsecutiveWins = %d, want 2", r.MaxConsecutiveWins)
	}
	if r.MaxConsecutiveLosses != 3 {
		t.Errorf("MaxConsecutiveLosses = %d, want 3", r.MaxConsecutiveLosses)
	}
	if math.Abs(r.NetProfitPercent()-4) > 1e-9 {
		t.Errorf("NetProfitPercent = %.2f, want 4", r.NetProfitPercent())
	}
}

func TestCalculateMetricsEmptyLog(t *testing.T) {
	r := &BacktestReport{InitialBalance: 1000}
	r.CalculateMetrics()
	if r.TotalTrades != 0 || r.FinalBalance != 0 {
		t.Fatalf("empty log mutated report: %+v", r)
	}
}

func TestDrawdownFromEquityCurve(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &BacktestReport{
		InitialBalance: 1000,
		Trades:         []TradeEntry{trade(1)},
		EquityCurve: []EquityPoint{
			{Timestamp: t0, Balance: 1000},
			{Timestamp: t0.Add(time.Hour), Balance: 1200},
			{Timestamp: t0.Add(2 * time.Hour), Balance: 900}, // 300 off the 1200 peak
			{Timestamp: t0.Add(3 * time.Hour), Balance: 1100},
		},
	}
	r.CalculateMetrics()

	if r.MaxDrawdown != 300 {
		t.Errorf("MaxDrawdown = %.2f, want 300", r.MaxDrawdown)
	}
	if math.Abs(r.MaxDrawdownPercent-25) > 1e-9 {
		t.Errorf("MaxDrawdownPercent = %.2f, want 25", r.MaxDrawdownPercent)
	}
}

func TestSummaryMentionsKeyFigures(t *testing.T) {
	r := &BacktestReport{
		Symbol: "BTCUSDT", Timeframe: "5m", InitialBalance: 1000,
		Trades: []TradeEntry{trade(50)},
	}
	r.CalculateMetrics()
	s := r.Summary()
	for _, want := range []string{"BTCUSDT", "5m", "1050.00"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}
