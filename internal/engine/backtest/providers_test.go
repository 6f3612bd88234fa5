package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/service"
	"TrendEngine/internal/engine/filter"
	"TrendEngine/internal/engine/position"
	"TrendEngine/internal/engine/risk"
	"TrendEngine/internal/engine/score"
	"TrendEngine/internal/engine/strategy"
	"TrendEngine/internal/engine/trend"
	"TrendEngine/internal/service/indicator"
)

// minimalEngine builds a strategy engine used only as a series container.
func minimalEngine(t *testing.T) *strategy.Engine {
	t.Helper()
	lg := testLogger(t)
	clock := service.NewSimClock(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	gateway := NewSimGateway(1000, 0, clock, lg)
	riskMgr := risk.NewManager(risk.Config{}, gateway, nil, clock, lg)
	tracker := position.NewTracker(position.Config{}, riskMgr.Trailing(), clock, nil, lg)
	riskMgr.SetPositionStore(tracker)
	ind := indicator.New()
	macro := trend.NewMacroCell()
	return strategy.NewEngine(strategy.Config{Symbols: "TESTUSDT", WarmupBars: 1000}, strategy.Deps{
		Chain:      filter.NewChain(lg, nil),
		Scorer:     score.New(score.Config{}),
		Risk:       riskMgr,
		Tracker:    tracker,
		Macro:      macro,
		MacroAn:    trend.NewMacroAnalyzer(macro, ind, lg),
		HTF:        trend.NewHTFService(trend.HTFConfig{Enabled: false}, nil, clock, lg),
		Indicators: ind,
		Gateway:    gateway,
		Clock:      clock,
		Log:        lg,
	})
}

func TestSeriesProviderUnbound(t *testing.T) {
	p := NewSeriesProvider()
	if _, ok := p.Bars("TESTUSDT", "1h", 10); ok {
		t.Error("unbound provider served bars")
	}
	if _, err := p.HourlyReturns(context.Background(), "TESTUSDT", 24); err == nil {
		t.Error("unbound provider served returns")
	}
}

func TestSeriesProviderAggregation(t *testing.T) {
	engine := minimalEngine(t)
	p := NewSeriesProvider()
	p.Bind(engine)

	// 24 five-minute bars spanning two clock hours
	t0 := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	s := engine.Series("TESTUSDT")
	for i := 0; i < 24; i++ {
		c := 100 + float64(i)
		s.Append(models.Bar{
			Symbol:    "TESTUSDT",
			OpenTime:  t0.Add(time.Duration(i) * 5 * time.Minute),
			CloseTime: t0.Add(time.Duration(i+1) * 5 * time.Minute),
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    2,
		})
	}

	agg, ok := p.Bars("TESTUSDT", "1h", 0)
	if !ok {
		t.Fatal("provider served no hourly bars")
	}
	if agg.Len() != 2 {
		t.Fatalf("hourly buckets = %d, want 2", agg.Len())
	}

	first := agg.Bar(0)
	if !first.OpenTime.Equal(t0) {
		t.Errorf("bucket open = %v, want %v", first.OpenTime, t0)
	}
	if !first.CloseTime.Equal(t0.Add(time.Hour)) {
		t.Errorf("bucket close = %v, want %v", first.CloseTime, t0.Add(time.Hour))
	}
	// bucket rolls up the 12 bars closing 100..111
	if first.Close != 111 {
		t.Errorf("bucket close price = %.2f, want 111", first.Close)
	}
	if first.High != 111.5 || first.Low != 99.5 {
		t.Errorf("bucket high/low = %.2f/%.2f, want 111.5/99.5", first.High, first.Low)
	}
	if first.Volume != 24 {
		t.Errorf("bucket volume = %.2f, want 24", first.Volume)
	}

	// limit keeps only the newest buckets
	trimmed, ok := p.Bars("TESTUSDT", "1h", 1)
	if !ok || trimmed.Len() != 1 {
		t.Fatalf("limited buckets = %d, want 1", trimmed.Len())
	}
	if trimmed.Bar(0).Close != 123 {
		t.Errorf("newest bucket close = %.2f, want 123", trimmed.Bar(0).Close)
	}
}

func TestSeriesProviderHourlyReturns(t *testing.T) {
	engine := minimalEngine(t)
	p := NewSeriesProvider()
	p.Bind(engine)

	// three hourly closes at 100, 110, 99
	t0 := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	s := engine.Series("TESTUSDT")
	for i, c := range []float64{100, 110, 99} {
		s.Append(models.Bar{
			Symbol:    "TESTUSDT",
			OpenTime:  t0.Add(time.Duration(i) * time.Hour),
			CloseTime: t0.Add(time.Duration(i+1) * time.Hour),
			Open:      c, High: c, Low: c, Close: c, Volume: 1,
		})
	}

	rets, err := p.HourlyReturns(context.Background(), "TESTUSDT", 24)
	if err != nil {
		t.Fatalf("HourlyReturns: %v", err)
	}
	if len(rets) != 2 {
		t.Fatalf("returns = %d, want 2", len(rets))
	}
	if math.Abs(rets[0]-0.1) > 1e-9 {
		t.Errorf("rets[0] = %.4f, want 0.1", rets[0])
	}
	if math.Abs(rets[1]-(-0.1)) > 1e-9 {
		t.Errorf("rets[1] = %.4f, want -0.1", rets[1])
	}

	if _, err := p.HourlyReturns(context.Background(), "EMPTY", 24); err == nil {
		t.Error("empty series should error")
	}
}
