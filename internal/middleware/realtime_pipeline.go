package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TrendEngine/internal/domain/models"
	domrepo "TrendEngine/internal/domain/repository"
)

// Proc is the minimal bar processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, bar models.Bar) error
}

// BarPipeline sits between the websocket feed and the decision engine. It
// validates incoming bars, throttles malformed bursts per symbol, fans bars
// out to one worker per symbol so a slow decision on one symbol never delays
// the others, and buffers bars whose downstream processing failed so a
// ClickHouse hiccup does not lose candles. Bars for a single symbol stay
// ordered: each symbol's worker drains its queue sequentially.
type BarPipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	maxRPS    int
	bufSize   int
	workerBuf int
	bufCh     chan models.Bar
	stopCh    chan struct{}
	started   bool
	mu        sync.Mutex
	lastSeen  map[string]time.Time

	wmu     sync.Mutex
	workers map[string]chan models.Bar
	wg      sync.WaitGroup
}

type PipelineOption func(*BarPipeline)

// WithMaxRPS sets the max bars per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size for failed bars.
func WithBufferSize(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithWorkerQueue sets the per-symbol queue depth.
func WithWorkerQueue(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.workerBuf = n
		}
	}
}

// NewBarPipeline creates a new pipeline.
func NewBarPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *BarPipeline {
	p := &BarPipeline{
		proc:      proc,
		metrics:   metrics,
		maxRPS:    20,
		bufSize:   1000,
		workerBuf: 64,
		bufCh:     make(chan models.Bar, 1000),
		stopCh:    make(chan struct{}),
		lastSeen:  make(map[string]time.Time),
		workers:   make(map[string]chan models.Bar),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan models.Bar, p.bufSize)
	}
	return p
}

// Start launches background retry of buffered bars.
func (p *BarPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case bar := <-p.bufCh:
				if err := p.proc.Process(ctx, bar); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					select {
					case p.bufCh <- bar:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the retry loop and the symbol workers, waiting for in-flight
// bars to finish.
func (p *BarPipeline) Stop() {
	p.mu.Lock()
	p.started = false
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Process validates and throttles one bar, then hands it to the symbol's
// worker. Downstream failures surface through metrics and the retry buffer,
// never back to the feed loop.
func (p *BarPipeline) Process(ctx context.Context, bar models.Bar) error {
	now := time.Now()
	if err := validateBar(bar); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(bar.Symbol, now) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	p.dispatch(ctx, bar)
	return nil
}

// dispatch routes the bar to its symbol's worker, spawning one on first
// sight of the symbol. A full queue drops the bar rather than stalling the
// feed.
func (p *BarPipeline) dispatch(ctx context.Context, bar models.Bar) {
	p.wmu.Lock()
	ch, ok := p.workers[bar.Symbol]
	if !ok {
		ch = make(chan models.Bar, p.workerBuf)
		p.workers[bar.Symbol] = ch
		p.wg.Add(1)
		go p.worker(ctx, ch)
	}
	p.wmu.Unlock()

	select {
	case ch <- bar:
	default:
		p.metrics.RecordError("pipeline_symbol_backlog")
	}
}

func (p *BarPipeline) worker(ctx context.Context, ch <-chan models.Bar) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case bar := <-ch:
			p.handle(ctx, bar)
		}
	}
}

func (p *BarPipeline) handle(ctx context.Context, bar models.Bar) {
	start := time.Now()
	if err := p.proc.Process(ctx, bar); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- bar:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
}

func validateBar(bar models.Bar) error {
	if bar.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if bar.CloseTime.IsZero() || bar.CloseTime.Before(bar.OpenTime) {
		return fmt.Errorf("bar times invalid")
	}
	if bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 || bar.Close <= 0 {
		return fmt.Errorf("non-positive price")
	}
	if bar.High < bar.Low || bar.Volume < 0 {
		return fmt.Errorf("inconsistent bar")
	}
	return nil
}

func (p *BarPipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[symbol]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
