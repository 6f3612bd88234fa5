package risk

import (
	"context"
	"sync"
	"testing"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/service"
)

// fakeGateway records close calls and serves a fixed balance.
type fakeGateway struct {
	mu           sync.Mutex
	balance      float64
	balanceCalls int
	closes       []closeCall
}

type closeCall struct {
	symbol   string
	quantity float64
}

func (g *fakeGateway) PlaceOrder(_ context.Context, symbol string, side models.Side, qty float64) (*models.Fill, error) {
	return &models.Fill{Symbol: symbol, Side: side, Quantity: qty}, nil
}

func (g *fakeGateway) ClosePosition(_ context.Context, symbol string, _ models.Side, qty float64) (*models.Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closes = append(g.closes, closeCall{symbol: symbol, quantity: qty})
	return &models.Fill{Symbol: symbol, Quantity: qty}, nil
}

func (g *fakeGateway) AccountBalance(context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balanceCalls++
	return g.balance, nil
}

func (g *fakeGateway) balanceCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balanceCalls
}

func (g *fakeGateway) OpenPositions(context.Context) ([]models.ExternalPosition, error) {
	return nil, nil
}

func (g *fakeGateway) closeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.closes)
}

// fakeStore is an in-memory PositionStore that always answers Hold.
type fakeStore struct {
	mu        sync.Mutex
	positions map[string]*models.Position
	updated   map[string]float64
}

func newFakeStore(positions ...*models.Position) *fakeStore {
	s := &fakeStore{positions: make(map[string]*models.Position), updated: make(map[string]float64)}
	for _, p := range positions {
		s.positions[p.Symbol] = p
	}
	return s
}

func (s *fakeStore) Get(symbol string) (*models.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[symbol]
	return p, ok
}

func (s *fakeStore) All() map[string]*models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*models.Position, len(s.positions))
	for k, v := range s.positions {
		out[k] = v
	}
	return out
}

func (s *fakeStore) Check(string, float64) models.PositionAction { return models.ActionHold }

func (s *fakeStore) Remove(_ context.Context, symbol string, exitPrice float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[symbol]
	if !ok {
		return 0
	}
	delete(s.positions, symbol)
	if exitPrice <= 0 {
		return 0
	}
	return p.GrossPnL(exitPrice)
}

func (s *fakeStore) UpdateQuantity(symbol string, quantity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated[symbol] = quantity
	if p, ok := s.positions[symbol]; ok {
		p.Quantity = quantity
	}
}

func (s *fakeStore) UnrealizedPnL(symbol string, price float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[symbol]
	if !ok {
		return 0
	}
	return p.GrossPnL(price)
}

func longPosition(symbol string, entry, qty float64) *models.Position {
	return &models.Position{Symbol: symbol, Side: models.SideBuy, EntryPrice: entry, Quantity: qty}
}

func newTestManager(t *testing.T, cfg Config, gw *fakeGateway, store *fakeStore, clock service.Clock) *Manager {
	t.Helper()
	m := NewManager(cfg, gw, nil, clock, testLogger(t))
	m.SetPositionStore(store)
	return m
}

func TestCircuitBreakerTripsAndResumes(t *testing.T) {
	clock := service.NewSimClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	gw := &fakeGateway{balance: 10000}
	cfg := Config{
		MaxPositionSize: 1000, MaxConcurrent: 10, DailyLossLimit: 500,
		MaxTotalExposure: 0.6, MaxConsecutiveLosses: 3, PausePeriod: time.Hour,
	}
	m := newTestManager(t, cfg, gw, newFakeStore(), clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.RecordTrade(ctx, -10)
	}
	if m.CanOpen(ctx, 100) {
		t.Fatal("entry admitted while circuit breaker is active")
	}
	st := m.Snapshot()
	if !st.CircuitBreaker || st.ConsecutiveLosses != 3 {
		t.Fatalf("snapshot = %+v, want tripped breaker with 3 losses", st)
	}

	// still paused just before the window ends
	clock.Set(clock.Now().Add(59 * time.Minute))
	if m.CanOpen(ctx, 100) {
		t.Fatal("entry admitted before pause period elapsed")
	}

	// past the pause the breaker resets and the streak clears
	clock.Set(clock.Now().Add(2 * time.Minute))
	if !m.CanOpen(ctx, 100) {
		t.Fatal("entry rejected after pause period elapsed")
	}
	if st := m.Snapshot(); st.CircuitBreaker || st.ConsecutiveLosses != 0 {
		t.Fatalf("snapshot after resume = %+v, want clean", st)
	}
}

func TestWinResetsLossStreak(t *testing.T) {
	clock := service.NewSimClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	m := newTestManager(t, Config{
		MaxPositionSize: 1000, MaxConcurrent: 10, DailyLossLimit: 500,
		MaxTotalExposure: 0.6, MaxConsecutiveLosses: 3, PausePeriod: time.Hour,
	}, &fakeGateway{balance: 10000}, newFakeStore(), clock)
	ctx := context.Background()

	m.RecordTrade(ctx, -10)
	m.RecordTrade(ctx, -10)
	m.RecordTrade(ctx, 5)
	m.RecordTrade(ctx, -10)

	st := m.Snapshot()
	if st.CircuitBreaker {
		t.Fatal("breaker tripped despite a win in between")
	}
	if st.ConsecutiveLosses != 1 {
		t.Fatalf("consecutive losses = %d, want 1", st.ConsecutiveLosses)
	}
	if st.DailyLoss != 30 {
		t.Fatalf("daily loss = %.2f, want 30 (wins do not offset)", st.DailyLoss)
	}
}

func TestDailyLossLimitHaltsAndLiquidates(t *testing.T) {
	clock := service.NewSimClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	gw := &fakeGateway{balance: 10000}
	store := newFakeStore(longPosition("BTCUSDT", 100, 1), longPosition("ETHUSDT", 2000, 0.1))
	m := newTestManager(t, Config{
		MaxPositionSize: 1000, MaxConcurrent: 10, DailyLossLimit: 50,
		MaxTotalExposure: 0.9, MaxConsecutiveLosses: 100, PausePeriod: time.Hour,
	}, gw, store, clock)
	ctx := context.Background()

	m.RecordTrade(ctx, -60)

	if got := gw.closeCount(); got != 2 {
		t.Fatalf("emergency exit closed %d positions, want 2", got)
	}
	if len(store.All()) != 0 {
		t.Fatal("positions survived the emergency exit")
	}
	if m.CanOpen(ctx, 10) {
		t.Fatal("entry admitted while halted")
	}
	if st := m.Snapshot(); !st.Halted {
		t.Fatalf("snapshot = %+v, want halted", st)
	}

	// the halt clears on the next UTC day
	clock.Set(time.Date(2025, 3, 2, 0, 1, 0, 0, time.UTC))
	if !m.CanOpen(ctx, 10) {
		t.Fatal("entry rejected after the daily counters rolled")
	}
}

func TestCanOpenLimits(t *testing.T) {
	clock := service.NewSimClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	gw := &fakeGateway{balance: 1000}
	store := newFakeStore(longPosition("BTCUSDT", 100, 5)) // notional 500
	m := newTestManager(t, Config{
		MaxPositionSize: 300, MaxConcurrent: 10, DailyLossLimit: 500,
		MaxTotalExposure: 0.6, MaxConsecutiveLosses: 3, PausePeriod: time.Hour,
	}, gw, store, clock)
	ctx := context.Background()

	if !m.CanOpen(ctx, 50) {
		t.Error("small entry within all limits rejected")
	}
	// 500 existing + 200 new > 1000 * 0.6
	if m.CanOpen(ctx, 200) {
		t.Error("entry over the exposure limit admitted")
	}
	if m.CanOpen(ctx, 400) {
		t.Error("entry over the per-position size limit admitted")
	}

	mOne := newTestManager(t, Config{
		MaxPositionSize: 300, MaxConcurrent: 1, DailyLossLimit: 500,
		MaxTotalExposure: 0.6, MaxConsecutiveLosses: 3, PausePeriod: time.Hour,
	}, gw, store, clock)
	if mOne.CanOpen(ctx, 50) {
		t.Error("entry admitted at the concurrent position cap")
	}
}

func TestCanOpenChecksLimitsInOrder(t *testing.T) {
	clock := service.NewSimClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	gw := &fakeGateway{balance: 10000}
	m := newTestManager(t, Config{
		MaxPositionSize: 1000, MaxConcurrent: 10, DailyLossLimit: 500,
		MaxTotalExposure: 0.6, MaxConsecutiveLosses: 3, PausePeriod: time.Hour,
	}, gw, newFakeStore(), clock)
	ctx := context.Background()

	// count, size and exposure are evaluated before the loss gate, so a
	// halted manager still fetches the balance on the way to rejecting
	m.Halt("manual")
	if m.CanOpen(ctx, 50) {
		t.Fatal("entry admitted while halted")
	}
	if gw.balanceCount() != 1 {
		t.Errorf("balance calls = %d, want 1 (exposure checked before the loss gate)", gw.balanceCount())
	}
}

func TestPartialTakeProfitFiresOnce(t *testing.T) {
	clock := service.NewSimClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	gw := &fakeGateway{balance: 10000}
	store := newFakeStore(longPosition("BTCUSDT", 100, 10))
	cfg := Config{
		MaxPositionSize: 10000, MaxConcurrent: 10, DailyLossLimit: 500,
		MaxTotalExposure: 0.9, MaxConsecutiveLosses: 3, PausePeriod: time.Hour,
		TrailingStop: 0.002, TrailingActivation: 0.002,
		PartialTPEnabled: true, PartialTPThreshold: 0.003, PartialTPClosePercent: 0.5,
	}
	m := newTestManager(t, cfg, gw, store, clock)
	m.Trailing().Register("BTCUSDT", true, 100, cfg.TrailingStop)
	ctx := context.Background()

	// +0.4% crosses the partial threshold: half the position closes
	m.OnPriceUpdate(ctx, "BTCUSDT", 100.4)
	if got := gw.closeCount(); got != 1 {
		t.Fatalf("gateway closes = %d, want 1 partial", got)
	}
	if gw.closes[0].quantity != 5 {
		t.Errorf("partial quantity = %.2f, want 5", gw.closes[0].quantity)
	}
	if store.updated["BTCUSDT"] != 5 {
		t.Errorf("remaining quantity = %.2f, want 5", store.updated["BTCUSDT"])
	}

	// same price again: the one-shot must not re-fire
	m.OnPriceUpdate(ctx, "BTCUSDT", 100.4)
	if got := gw.closeCount(); got != 1 {
		t.Fatalf("partial fired again, closes = %d", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	clock := service.NewSimClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	gw := &fakeGateway{balance: 10000}
	store := newFakeStore(longPosition("BTCUSDT", 100, 1))
	cfg := Config{
		MaxPositionSize: 10000, MaxConcurrent: 10, DailyLossLimit: 500,
		MaxTotalExposure: 0.9, MaxConsecutiveLosses: 5, PausePeriod: time.Hour,
		TrailingStop: 0.002, TrailingActivation: 0.002,
	}
	m := newTestManager(t, cfg, gw, store, clock)
	m.Trailing().Register("BTCUSDT", true, 100, cfg.TrailingStop)
	ctx := context.Background()

	m.OnPriceUpdate(ctx, "BTCUSDT", 100.3) // activates the trail
	m.OnPriceUpdate(ctx, "BTCUSDT", 99)    // through the stop, at a loss
	if gw.closeCount() != 1 {
		t.Fatalf("closes = %d, want 1", gw.closeCount())
	}
	st := m.Snapshot()
	if st.ConsecutiveLosses != 1 || st.DailyLoss != 1 {
		t.Fatalf("counters after close = %+v, want one loss of 1", st)
	}

	// a second tick at the same price must be a no-op: no duplicate order,
	// no double-counted loss
	m.OnPriceUpdate(ctx, "BTCUSDT", 99)
	if gw.closeCount() != 1 {
		t.Fatalf("duplicate close submitted, closes = %d", gw.closeCount())
	}
	if st := m.Snapshot(); st.DailyLoss != 1 || st.ConsecutiveLosses != 1 {
		t.Fatalf("loss double-counted: %+v", st)
	}
}

func TestTrailingStopClosesPosition(t *testing.T) {
	clock := service.NewSimClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	gw := &fakeGateway{balance: 10000}
	store := newFakeStore(longPosition("BTCUSDT", 100, 1))
	cfg := Config{
		MaxPositionSize: 10000, MaxConcurrent: 10, DailyLossLimit: 500,
		MaxTotalExposure: 0.9, MaxConsecutiveLosses: 3, PausePeriod: time.Hour,
		TrailingStop: 0.002, TrailingActivation: 0.002,
	}
	m := newTestManager(t, cfg, gw, store, clock)
	m.Trailing().Register("BTCUSDT", true, 100, cfg.TrailingStop)
	ctx := context.Background()

	m.OnPriceUpdate(ctx, "BTCUSDT", 101) // arms and ratchets the trail
	if gw.closeCount() != 0 {
		t.Fatal("position closed while price holds above the stop")
	}

	m.OnPriceUpdate(ctx, "BTCUSDT", 100.7) // through 101*(1-0.002)
	if gw.closeCount() != 1 {
		t.Fatal("trailing stop did not close the position")
	}
	if _, ok := store.Get("BTCUSDT"); ok {
		t.Error("position still tracked after the trailing exit")
	}
	if m.Trailing().Tracked("BTCUSDT") {
		t.Error("trailing state survived the exit")
	}
}
