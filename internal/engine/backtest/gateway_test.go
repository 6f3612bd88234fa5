package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/service"
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

func TestSimGatewayRoundTripFees(t *testing.T) {
	clock := service.NewSimClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	g := NewSimGateway(1000, 0.001, clock, testLogger(t))
	ctx := context.Background()

	g.SetPrice("BTCUSDT", 100)
	if _, err := g.PlaceOrder(ctx, "BTCUSDT", models.SideBuy, 1); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	// entry fee 1*100*0.001 debited at open
	if got := g.Balance(); math.Abs(got-999.9) > 1e-9 {
		t.Fatalf("balance after open = %.4f, want 999.9", got)
	}
	if !g.HasPosition("BTCUSDT") {
		t.Fatal("position not recorded")
	}

	clock.Set(clock.Now().Add(time.Hour))
	g.SetPrice("BTCUSDT", 110)
	if _, err := g.ClosePosition(ctx, "BTCUSDT", models.SideBuy, 1); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}

	// gross +10, exit fee 0.11: balance 999.9 + 10 - 0.11
	if got := g.Balance(); math.Abs(got-1009.79) > 1e-9 {
		t.Fatalf("balance after close = %.4f, want 1009.79", got)
	}

	trades := g.Trades()
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	tr := trades[0]
	if math.Abs(tr.PnL-9.79) > 1e-9 {
		t.Errorf("trade PnL = %.4f, want 9.79", tr.PnL)
	}
	if math.Abs(tr.Commission-0.21) > 1e-9 {
		t.Errorf("commission = %.4f, want 0.21", tr.Commission)
	}
	if math.Abs(tr.PnLPercent-10) > 1e-9 {
		t.Errorf("PnLPercent = %.4f, want 10", tr.PnLPercent)
	}

	// the trade log reconciles with the balance
	if got := 1000 + tr.PnL; math.Abs(got-g.Balance()) > 1e-9 {
		t.Errorf("initial + pnl = %.4f, balance = %.4f", got, g.Balance())
	}
	if g.HasPosition("BTCUSDT") {
		t.Error("position survived a full close")
	}
}

func TestSimGatewayShortPnL(t *testing.T) {
	clock := service.NewSimClock(time.Now())
	g := NewSimGateway(1000, 0, clock, testLogger(t))
	ctx := context.Background()

	g.SetPrice("ETHUSDT", 2000)
	if _, err := g.PlaceOrder(ctx, "ETHUSDT", models.SideSell, 0.5); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	g.SetPrice("ETHUSDT", 1900)
	if _, err := g.ClosePosition(ctx, "ETHUSDT", models.SideSell, 0.5); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}

	// (2000-1900)*0.5 with zero fees
	if got := g.Balance(); math.Abs(got-1050) > 1e-9 {
		t.Fatalf("balance = %.4f, want 1050", got)
	}
}

func TestSimGatewayPartialClose(t *testing.T) {
	clock := service.NewSimClock(time.Now())
	g := NewSimGateway(1000, 0.001, clock, testLogger(t))
	ctx := context.Background()

	g.SetPrice("BTCUSDT", 100)
	if _, err := g.PlaceOrder(ctx, "BTCUSDT", models.SideBuy, 2); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	g.SetPrice("BTCUSDT", 101)
	if _, err := g.ClosePosition(ctx, "BTCUSDT", models.SideBuy, 1); err != nil {
		t.Fatalf("partial ClosePosition: %v", err)
	}

	trades := g.Trades()
	if len(trades) != 1 || trades[0].ExitReason != "PARTIAL_CLOSE" {
		t.Fatalf("trades = %+v, want one PARTIAL_CLOSE", trades)
	}
	// gross 1, entry fee prorated to 0.1, exit fee 0.101
	if got := trades[0].PnL; math.Abs(got-(1-0.1-0.101)) > 1e-9 {
		t.Errorf("partial PnL = %.4f, want 0.799", got)
	}
	if !g.HasPosition("BTCUSDT") {
		t.Fatal("position gone after a partial close")
	}

	// closing the remainder books the other half of the entry fee
	if _, err := g.ClosePosition(ctx, "BTCUSDT", models.SideBuy, 1); err != nil {
		t.Fatalf("final ClosePosition: %v", err)
	}
	trades = g.Trades()
	if len(trades) != 2 || trades[1].ExitReason != "CLOSE" {
		t.Fatalf("second trade = %+v, want CLOSE", trades[1])
	}
	if g.HasPosition("BTCUSDT") {
		t.Error("position survived the final close")
	}
}

func TestSimGatewayErrors(t *testing.T) {
	clock := service.NewSimClock(time.Now())
	g := NewSimGateway(1000, 0.001, clock, testLogger(t))
	ctx := context.Background()

	if _, err := g.PlaceOrder(ctx, "BTCUSDT", models.SideBuy, 1); err == nil {
		t.Error("order without price data should fail")
	}
	g.SetPrice("BTCUSDT", 100)
	if _, err := g.ClosePosition(ctx, "BTCUSDT", models.SideBuy, 1); err == nil {
		t.Error("close without an open position should fail")
	}
}

func TestSimGatewayReset(t *testing.T) {
	clock := service.NewSimClock(time.Now())
	g := NewSimGateway(1000, 0.001, clock, testLogger(t))
	ctx := context.Background()

	g.SetPrice("BTCUSDT", 100)
	_, _ = g.PlaceOrder(ctx, "BTCUSDT", models.SideBuy, 1)
	_, _ = g.ClosePosition(ctx, "BTCUSDT", models.SideBuy, 1)

	g.Reset(2000)
	if g.Balance() != 2000 {
		t.Errorf("balance after reset = %.2f, want 2000", g.Balance())
	}
	if len(g.Trades()) != 0 {
		t.Error("trade log survived reset")
	}
	if g.HasPosition("BTCUSDT") {
		t.Error("position survived reset")
	}
}
