package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/repository"
	"TrendEngine/internal/domain/service"
	"TrendEngine/internal/engine/backtest"
	"TrendEngine/internal/engine/filter"
	"TrendEngine/internal/engine/position"
	"TrendEngine/internal/engine/risk"
	"TrendEngine/internal/engine/score"
	"TrendEngine/internal/engine/strategy"
	"TrendEngine/internal/engine/trend"
	"TrendEngine/internal/service/indicator"
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

// inertEngine builds a decision engine whose warmup threshold keeps it from
// ever trading, so processor tests exercise only the persistence path.
func inertEngine(t *testing.T) *strategy.Engine {
	t.Helper()
	lg := testLogger(t)
	clock := service.NewSimClock(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	gateway := backtest.NewSimGateway(1000, 0, clock, lg)
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

type fakeHistory struct {
	mu     sync.Mutex
	stores int
	bars   []models.Bar
	err    error
}

func (h *fakeHistory) Init(context.Context) error { return nil }

func (h *fakeHistory) StoreTrade(context.Context, *models.TradeEntry) error { return nil }

func (h *fakeHistory) StoreBars(_ context.Context, bars []models.Bar) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.stores++
	h.bars = append(h.bars, bars...)
	return nil
}

func (h *fakeHistory) QueryTrades(context.Context, string, time.Time, time.Time, int) ([]models.TradeEntry, error) {
	return nil, nil
}

func (h *fakeHistory) QueryBars(context.Context, string, time.Time, time.Time, repository.Timeframe) ([]models.Bar, error) {
	return nil, nil
}

func (h *fakeHistory) Health(context.Context) error { return nil }
func (h *fakeHistory) Close() error                 { return nil }

type nopMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func (m *nopMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = make(map[string]int)
	}
	m.errors[kind]++
}

func (m *nopMetrics) RecordSignal(string, string)               {}
func (m *nopMetrics) RecordFilterBlock(string)                  {}
func (m *nopMetrics) RecordTradeClosed(string, string, float64) {}
func (m *nopMetrics) RecordLastPrice(string, float64)           {}
func (m *nopMetrics) RecordLatency(string, float64)             {}
func (m *nopMetrics) SetOpenPositions(int)                      {}
func (m *nopMetrics) SetCircuitBreaker(bool)                    {}

func procBar(i int) models.Bar {
	t0 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	return models.Bar{
		Symbol:    "TESTUSDT",
		OpenTime:  t0.Add(time.Duration(i) * 5 * time.Minute),
		CloseTime: t0.Add(time.Duration(i+1) * 5 * time.Minute),
		Open:      100, High: 101, Low: 99, Close: 100, Volume: 1,
	}
}

func TestBarProcessorFlushesBySize(t *testing.T) {
	history := &fakeHistory{}
	p := NewBarProcessor(inertEngine(t), history, &nopMetrics{}, 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := p.Process(ctx, procBar(i)); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if history.stores != 0 {
		t.Fatalf("flushed before the batch filled: %d stores", history.stores)
	}

	if err := p.Process(ctx, procBar(2)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if history.stores != 1 {
		t.Fatalf("stores = %d, want 1 after the batch filled", history.stores)
	}
	if len(history.bars) != 3 {
		t.Errorf("persisted bars = %d, want 3", len(history.bars))
	}
}

func TestBarProcessorFlushOnShutdown(t *testing.T) {
	history := &fakeHistory{}
	p := NewBarProcessor(inertEngine(t), history, &nopMetrics{}, 100, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := p.Process(ctx, procBar(i)); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if history.stores != 1 || len(history.bars) != 2 {
		t.Fatalf("stores/bars = %d/%d, want 1/2", history.stores, len(history.bars))
	}

	// nothing left: a second flush must not hit the store again
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("empty Flush: %v", err)
	}
	if history.stores != 1 {
		t.Errorf("empty flush reached the store")
	}
}

func TestBarProcessorWithoutHistory(t *testing.T) {
	p := NewBarProcessor(inertEngine(t), nil, &nopMetrics{}, 1, time.Second)
	ctx := context.Background()

	if err := p.Process(ctx, procBar(0)); err != nil {
		t.Fatalf("Process without history: %v", err)
	}
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("Flush without history: %v", err)
	}
}

func TestBarProcessorSurfacesStoreErrors(t *testing.T) {
	history := &fakeHistory{err: fmt.Errorf("clickhouse down")}
	metrics := &nopMetrics{}
	p := NewBarProcessor(inertEngine(t), history, metrics, 1, time.Hour)

	if err := p.Process(context.Background(), procBar(0)); err == nil {
		t.Fatal("store failure should surface")
	}
	if metrics.errors["persist_bars"] != 1 {
		t.Errorf("persist_bars errors = %d, want 1", metrics.errors["persist_bars"])
	}
}
