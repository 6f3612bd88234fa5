package risk

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

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

type stubReturns struct {
	series map[string][]float64
	err    error
	calls  int
}

func (s *stubReturns) HourlyReturns(_ context.Context, symbol string, _ int) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.series[symbol], nil
}

func TestPearson(t *testing.T) {
	tests := []struct {
		name string
		x, y []float64
		want float64
	}{
		{"perfect positive", []float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}, 1},
		{"perfect negative", []float64{1, 2, 3, 4}, []float64{8, 6, 4, 2}, -1},
		{"constant series", []float64{1, 1, 1}, []float64{1, 2, 3}, 0},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		if got := Pearson(tt.x, tt.y); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: Pearson = %.6f, want %.1f", tt.name, got, tt.want)
		}
	}
}

func TestCorrelationGateRejectsCorrelated(t *testing.T) {
	// every symbol shares identical returns, correlation 1 across the board
	same := []float64{0.01, -0.02, 0.005, 0.015, -0.01, 0.02}
	provider := &stubReturns{series: map[string][]float64{
		"AAAUSDT": same, "BBBUSDT": same, "CCCUSDT": same, "DDDUSDT": same,
	}}
	clock := service.NewSimClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	g := NewCorrelationGate(CorrelationConfig{
		Enabled: true, Threshold: 0.75, MinPositions: 3, Periods: 6, CacheTTL: time.Hour,
	}, provider, clock, testLogger(t))

	open := []string{"BBBUSDT", "CCCUSDT", "DDDUSDT"}
	if g.Allow(context.Background(), "AAAUSDT", open) {
		t.Fatal("fully correlated entry should be rejected")
	}

	// below MinPositions the gate does not even look at returns
	provider.calls = 0
	if !g.Allow(context.Background(), "AAAUSDT", []string{"BBBUSDT", "CCCUSDT"}) {
		t.Fatal("entry below MinPositions should pass")
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times below MinPositions", provider.calls)
	}
}

func TestCorrelationGateAllowsUncorrelated(t *testing.T) {
	provider := &stubReturns{series: map[string][]float64{
		"AAAUSDT": {0.01, -0.02, 0.005, 0.015, -0.01, 0.02},
		"BBBUSDT": {-0.003, 0.011, -0.02, 0.001, 0.004, -0.012},
		"CCCUSDT": {0.002, 0.001, -0.004, -0.001, 0.003, 0.0},
		"DDDUSDT": {-0.01, 0.02, 0.001, -0.005, 0.012, -0.002},
	}}
	clock := service.NewSimClock(time.Now())
	g := NewCorrelationGate(CorrelationConfig{
		Enabled: true, Threshold: 0.9, MinPositions: 3, Periods: 6, CacheTTL: time.Hour,
	}, provider, clock, testLogger(t))

	if !g.Allow(context.Background(), "AAAUSDT", []string{"BBBUSDT", "CCCUSDT", "DDDUSDT"}) {
		t.Fatal("weakly correlated entry should pass")
	}
}

func TestCorrelationGateFailsOpen(t *testing.T) {
	provider := &stubReturns{err: fmt.Errorf("exchange unavailable")}
	clock := service.NewSimClock(time.Now())
	g := NewCorrelationGate(CorrelationConfig{
		Enabled: true, Threshold: 0.75, MinPositions: 3, Periods: 24, CacheTTL: time.Hour,
	}, provider, clock, testLogger(t))

	if !g.Allow(context.Background(), "AAAUSDT", []string{"BBBUSDT", "CCCUSDT", "DDDUSDT"}) {
		t.Fatal("data errors must not block entries")
	}
}

func TestCorrelationCaching(t *testing.T) {
	same := []float64{0.01, -0.02, 0.005, 0.015}
	provider := &stubReturns{series: map[string][]float64{"AAAUSDT": same, "BBBUSDT": same}}
	clock := service.NewSimClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	g := NewCorrelationGate(CorrelationConfig{
		Enabled: true, Threshold: 0.75, MinPositions: 1, Periods: 4, CacheTTL: time.Hour,
	}, provider, clock, testLogger(t))

	ctx := context.Background()
	if v := g.Correlation(ctx, "AAAUSDT", "BBBUSDT"); math.Abs(v-1) > 1e-9 {
		t.Fatalf("correlation = %.4f, want 1", v)
	}
	fetched := provider.calls

	// second lookup inside the TTL hits the cache, both directions
	g.Correlation(ctx, "AAAUSDT", "BBBUSDT")
	g.Correlation(ctx, "BBBUSDT", "AAAUSDT")
	if provider.calls != fetched {
		t.Errorf("provider called %d more times despite warm cache", provider.calls-fetched)
	}

	// past the TTL the gate recomputes
	clock.Set(clock.Now().Add(2 * time.Hour))
	g.Correlation(ctx, "AAAUSDT", "BBBUSDT")
	if provider.calls == fetched {
		t.Error("expired cache entry was not recomputed")
	}

	if v := g.Correlation(ctx, "AAAUSDT", "AAAUSDT"); v != 1 {
		t.Errorf("self correlation = %.4f, want 1", v)
	}
}
