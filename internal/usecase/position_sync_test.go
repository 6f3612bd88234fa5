package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/service"
	"TrendEngine/internal/engine/position"
	"TrendEngine/internal/engine/risk"
)

type syncGateway struct {
	mu    sync.Mutex
	calls int
	ext   []models.ExternalPosition
	err   error
}

func (g *syncGateway) PlaceOrder(context.Context, string, models.Side, float64) (*models.Fill, error) {
	return nil, fmt.Errorf("not supported")
}

func (g *syncGateway) ClosePosition(context.Context, string, models.Side, float64) (*models.Fill, error) {
	return nil, fmt.Errorf("not supported")
}

func (g *syncGateway) AccountBalance(context.Context) (float64, error) { return 1000, nil }

func (g *syncGateway) OpenPositions(context.Context) ([]models.ExternalPosition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.ext, g.err
}

func (g *syncGateway) set(ext []models.ExternalPosition) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ext = ext
}

func syncTracker(t *testing.T) *position.Tracker {
	t.Helper()
	clock := service.NewSimClock(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	cfg := position.Config{StopLossPercent: 0.003, TrailingStop: 0.002, DustFloor: 5}
	return position.NewTracker(cfg, risk.NewTrailingBook(0.002), clock, nil, testLogger(t))
}

func TestPositionSyncAdoptsOnStartup(t *testing.T) {
	tracker := syncTracker(t)
	gw := &syncGateway{ext: []models.ExternalPosition{
		{Symbol: "BTCUSDT", Amount: 0.5, EntryPrice: 100},
	}}
	s := NewPositionSync(tracker, gw, time.Hour, testLogger(t))

	s.Start(context.Background())
	defer s.Stop()

	if !tracker.Has("BTCUSDT") {
		t.Fatal("startup sync did not adopt the exchange position")
	}
	pos, _ := tracker.Get("BTCUSDT")
	if pos.Side != models.SideBuy || pos.Quantity != 0.5 {
		t.Errorf("adopted position = %s qty %.2f, want BUY 0.5", pos.Side, pos.Quantity)
	}
}

func TestPositionSyncToleratesGatewayErrors(t *testing.T) {
	tracker := syncTracker(t)
	tracker.Track("BTCUSDT", models.SideBuy, 100, 1)
	gw := &syncGateway{err: fmt.Errorf("exchange down")}
	s := NewPositionSync(tracker, gw, time.Hour, testLogger(t))

	s.Start(context.Background())
	defer s.Stop()

	if !tracker.Has("BTCUSDT") {
		t.Fatal("a failed sync must leave tracked state alone")
	}
}

func TestPositionSyncPeriodicallyDropsClosed(t *testing.T) {
	tracker := syncTracker(t)
	tracker.Track("BTCUSDT", models.SideBuy, 100, 1)
	gw := &syncGateway{}
	s := NewPositionSync(tracker, gw, 10*time.Millisecond, testLogger(t))

	// the exchange reports the position as closed
	gw.set([]models.ExternalPosition{{Symbol: "BTCUSDT", Amount: 0}})
	s.Start(context.Background())
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for tracker.Has("BTCUSDT") {
		select {
		case <-deadline:
			t.Fatal("periodic sync never dropped the exchange-closed position")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
