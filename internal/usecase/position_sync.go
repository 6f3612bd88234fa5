package usecase

import (
	"context"
	"sync"
	"time"

	drepo "TrendEngine/internal/domain/repository"
	"TrendEngine/internal/engine/position"
	"TrendEngine/pkg/logger"
)

// PositionSync reconciles tracked positions against the exchange report:
// once at startup, then periodically. A restart adopts positions opened
// before the crash, and positions closed out-of-band stop being tracked.
type PositionSync struct {
	tracker  *position.Tracker
	gateway  drepo.ExecutionGateway
	interval time.Duration
	log      *logger.Logger

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewPositionSync creates the reconciler. interval <= 0 falls back to one
// minute.
func NewPositionSync(tracker *position.Tracker, gateway drepo.ExecutionGateway,
	interval time.Duration, log *logger.Logger) *PositionSync {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PositionSync{
		tracker:  tracker,
		gateway:  gateway,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the startup reconciliation and launches the periodic loop.
// A failing exchange call is logged, not fatal: the next tick retries.
func (s *PositionSync) Start(ctx context.Context) {
	if err := s.SyncOnce(ctx); err != nil {
		s.log.Warn("startup position sync failed", logger.Error(err))
	}
	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *PositionSync) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				s.log.Warn("position sync failed", logger.Error(err))
			}
		}
	}
}

// SyncOnce fetches the exchange position report and reconciles the tracker.
func (s *PositionSync) SyncOnce(ctx context.Context) error {
	external, err := s.gateway.OpenPositions(ctx)
	if err != nil {
		return err
	}
	s.tracker.Sync(ctx, external)
	return nil
}

// Stop halts the periodic loop and waits for it to exit.
func (s *PositionSync) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
