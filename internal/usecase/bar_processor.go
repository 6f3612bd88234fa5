package usecase

import (
	"context"
	"sync"
	"time"

	"TrendEngine/internal/domain/models"
	drepo "TrendEngine/internal/domain/repository"
	"TrendEngine/internal/engine/strategy"
)

// BarProcessor routes each closed bar to the decision engine and batches it
// for history persistence. The engine call is synchronous; persistence is
// flushed by size or age so a slow store never delays decisions.
type BarProcessor struct {
	engine  *strategy.Engine
	history drepo.TradeHistory
	metrics drepo.Metrics
	batchSz int
	batchTO time.Duration

	mu        sync.Mutex
	pending   []models.Bar
	lastFlush time.Time
}

// NewBarProcessor creates a processor. history may be nil when persistence
// is disabled.
func NewBarProcessor(engine *strategy.Engine, history drepo.TradeHistory,
	metrics drepo.Metrics, batchSz int, batchTO time.Duration) *BarProcessor {
	if batchSz <= 0 {
		batchSz = 100
	}
	if batchTO <= 0 {
		batchTO = 30 * time.Second
	}
	return &BarProcessor{
		engine:    engine,
		history:   history,
		metrics:   metrics,
		batchSz:   batchSz,
		batchTO:   batchTO,
		lastFlush: time.Now(),
	}
}

// Process handles a single closed bar.
func (p *BarProcessor) Process(ctx context.Context, bar models.Bar) error {
	start := time.Now()

	p.engine.OnBar(ctx, bar)

	if p.history != nil {
		if err := p.buffer(ctx, bar); err != nil {
			p.metrics.RecordError("persist_bars")
			return err
		}
	}

	p.metrics.RecordLatency("bar_process", time.Since(start).Seconds())
	return nil
}

func (p *BarProcessor) buffer(ctx context.Context, bar models.Bar) error {
	p.mu.Lock()
	p.pending = append(p.pending, bar)
	flush := len(p.pending) >= p.batchSz || time.Since(p.lastFlush) >= p.batchTO
	var batch []models.Bar
	if flush {
		batch = p.pending
		p.pending = nil
		p.lastFlush = time.Now()
	}
	p.mu.Unlock()

	if !flush {
		return nil
	}
	return p.history.StoreBars(ctx, batch)
}

// Flush persists any buffered bars. Called on shutdown.
func (p *BarProcessor) Flush(ctx context.Context) error {
	if p.history == nil {
		return nil
	}
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.lastFlush = time.Now()
	p.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	return p.history.StoreBars(ctx, batch)
}
