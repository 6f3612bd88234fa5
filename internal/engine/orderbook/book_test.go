package orderbook

import (
	"math"
	"testing"
)

func ladder(start, step float64, qtys []float64) []Level {
	out := make([]Level, len(qtys))
	for i, q := range qtys {
		out[i] = Level{Price: start + step*float64(i), Quantity: q}
	}
	return out
}

func TestBookBestAndSpread(t *testing.T) {
	b := NewBook("BTCUSDT")
	b.Replace(
		[]Level{{Price: 99, Quantity: 1}, {Price: 99.5, Quantity: 2}},
		[]Level{{Price: 100.5, Quantity: 1}, {Price: 101, Quantity: 2}},
		42,
	)

	if bid, ok := b.BestBid(); !ok || bid != 99.5 {
		t.Errorf("BestBid = %.2f (ok=%v), want 99.5", bid, ok)
	}
	if ask, ok := b.BestAsk(); !ok || ask != 100.5 {
		t.Errorf("BestAsk = %.2f (ok=%v), want 100.5", ask, ok)
	}
	if got, want := b.SpreadPercent(), 1.0/100; math.Abs(got-want) > 1e-9 {
		t.Errorf("SpreadPercent = %.6f, want %.6f", got, want)
	}
	if b.LastUpdateID() != 42 {
		t.Errorf("LastUpdateID = %d, want 42", b.LastUpdateID())
	}

	// zero-quantity update removes the level
	b.UpdateBid(99.5, 0)
	if bid, _ := b.BestBid(); bid != 99 {
		t.Errorf("BestBid after removal = %.2f, want 99", bid)
	}

	if NewBook("EMPTY").SpreadPercent() != 0 {
		t.Error("empty book spread should be 0")
	}
}

func TestImbalance(t *testing.T) {
	b := NewBook("BTCUSDT")
	b.Replace(
		ladder(99, -0.1, []float64{10, 10, 10}), // 30 bid
		ladder(100, 0.1, []float64{5, 5}),       // 10 ask
		1,
	)
	if got := b.Imbalance(20); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Imbalance = %.4f, want 0.5", got)
	}
	// restricted to the top level only: 10 vs 5
	if got := b.Imbalance(1); math.Abs(got-1.0/3) > 1e-9 {
		t.Errorf("Imbalance(1) = %.4f, want 0.3333", got)
	}
	if NewBook("EMPTY").Imbalance(20) != 0 {
		t.Error("empty book imbalance should be 0")
	}
}

func TestWallDetection(t *testing.T) {
	b := NewBook("BTCUSDT")
	// uniform asks except one 100-lot level: an obvious wall
	asks := ladder(100, 0.1, []float64{1, 1, 1, 100, 1, 1})
	b.Replace(ladder(99, -0.1, []float64{1, 1, 1, 1, 1}), asks, 1)

	wall, ok := b.SellWall(2.0)
	if !ok {
		t.Fatal("sell wall not detected")
	}
	if math.Abs(wall-100.3) > 1e-9 {
		t.Errorf("sell wall at %.2f, want 100.3", wall)
	}

	// uniform bids have no wall
	if _, ok := b.BuyWall(2.0); ok {
		t.Error("wall detected in a uniform book")
	}

	// fewer than 5 levels: not enough statistics
	thin := NewBook("THIN")
	thin.Replace(nil, ladder(100, 0.1, []float64{1, 100, 1}), 1)
	if _, ok := thin.SellWall(2.0); ok {
		t.Error("wall detected on a 3-level book")
	}
}

func TestEstimateSlippage(t *testing.T) {
	b := NewBook("BTCUSDT")
	b.Replace(nil, []Level{
		{Price: 100, Quantity: 1},
		{Price: 101, Quantity: 1},
	}, 1)

	// fully filled at the best level: avg price equals current price
	if got := b.EstimateSlippage(true, 100, 100); got != 0 {
		t.Errorf("slippage on best-level fill = %.6f, want 0", got)
	}

	// 150 notional walks into the second level
	got := b.EstimateSlippage(true, 150, 100)
	filled := 1 + 50.0/101
	want := (150/filled - 100) / 100
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("slippage = %.6f, want %.6f", got, want)
	}

	// unfillable order reports full slippage
	if got := b.EstimateSlippage(true, 1e9, 100); got != 1.0 {
		t.Errorf("slippage on unfillable order = %.4f, want 1.0", got)
	}

	// empty side reports no information
	if got := b.EstimateSlippage(false, 100, 100); got != 0 {
		t.Errorf("slippage on empty bids = %.4f, want 0", got)
	}
}
