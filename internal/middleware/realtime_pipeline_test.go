package middleware

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"TrendEngine/internal/domain/models"
)

type countingProc struct {
	mu   sync.Mutex
	bars []models.Bar
	err  error
}

func (p *countingProc) Process(_ context.Context, bar models.Bar) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.bars = append(p.bars, bar)
	return nil
}

func (p *countingProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bars)
}

func (p *countingProc) countSymbol(symbol string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.bars {
		if b.Symbol == symbol {
			n++
		}
	}
	return n
}

func (p *countingProc) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: make(map[string]int)}
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func (m *countingMetrics) RecordSignal(string, string)               {}
func (m *countingMetrics) RecordFilterBlock(string)                  {}
func (m *countingMetrics) RecordTradeClosed(string, string, float64) {}
func (m *countingMetrics) RecordLastPrice(string, float64)           {}
func (m *countingMetrics) RecordLatency(string, float64)             {}
func (m *countingMetrics) SetOpenPositions(int)                      {}
func (m *countingMetrics) SetCircuitBreaker(bool)                    {}

func validTestBar(symbol string, i int) models.Bar {
	t0 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	return models.Bar{
		Symbol:    symbol,
		OpenTime:  t0.Add(time.Duration(i) * 5 * time.Minute),
		CloseTime: t0.Add(time.Duration(i+1) * 5 * time.Minute),
		Open:      100, High: 101, Low: 99, Close: 100.5, Volume: 10,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPipelineForwardsValidBars(t *testing.T) {
	proc := &countingProc{}
	mtr := newCountingMetrics()
	p := NewBarPipeline(proc, mtr)
	defer p.Stop()

	if err := p.Process(context.Background(), validTestBar("BTCUSDT", 0)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	waitFor(t, func() bool { return proc.count() == 1 }, "bar never reached the processor")
}

func TestPipelineRejectsMalformedBars(t *testing.T) {
	proc := &countingProc{}
	mtr := newCountingMetrics()
	p := NewBarPipeline(proc, mtr)
	defer p.Stop()
	ctx := context.Background()

	bad := []models.Bar{
		{},                 // no symbol
		func() models.Bar { // close before open
			b := validTestBar("BTCUSDT", 0)
			b.CloseTime = b.OpenTime.Add(-time.Minute)
			return b
		}(),
		func() models.Bar { // non-positive price
			b := validTestBar("BTCUSDT", 0)
			b.Close = 0
			return b
		}(),
		func() models.Bar { // high under low
			b := validTestBar("BTCUSDT", 0)
			b.High, b.Low = 99, 101
			return b
		}(),
		func() models.Bar { // negative volume
			b := validTestBar("BTCUSDT", 0)
			b.Volume = -1
			return b
		}(),
	}
	for i, b := range bad {
		if err := p.Process(ctx, b); err == nil {
			t.Errorf("malformed bar %d accepted", i)
		}
	}
	if proc.count() != 0 {
		t.Fatalf("malformed bars reached the processor: %d", proc.count())
	}
	if mtr.errorCount("pipeline_validate") != len(bad) {
		t.Errorf("validate errors = %d, want %d", mtr.errorCount("pipeline_validate"), len(bad))
	}
}

func TestPipelineThrottlesBursts(t *testing.T) {
	proc := &countingProc{}
	mtr := newCountingMetrics()
	p := NewBarPipeline(proc, mtr, WithMaxRPS(1))
	defer p.Stop()
	ctx := context.Background()

	// two bars in the same instant: the second is dropped, not errored
	if err := p.Process(ctx, validTestBar("BTCUSDT", 0)); err != nil {
		t.Fatalf("first bar: %v", err)
	}
	if err := p.Process(ctx, validTestBar("BTCUSDT", 1)); err != nil {
		t.Fatalf("throttled bar should not error: %v", err)
	}
	waitFor(t, func() bool { return proc.count() == 1 }, "first bar never forwarded")
	if mtr.errorCount("pipeline_throttle") != 1 {
		t.Errorf("throttle drops = %d, want 1", mtr.errorCount("pipeline_throttle"))
	}

	// a different symbol is not affected by the burst
	if err := p.Process(ctx, validTestBar("ETHUSDT", 0)); err != nil {
		t.Fatalf("other symbol: %v", err)
	}
	waitFor(t, func() bool { return proc.count() == 2 }, "other symbol never forwarded")
}

func TestPipelineBuffersDownstreamFailures(t *testing.T) {
	proc := &countingProc{err: fmt.Errorf("store down")}
	mtr := newCountingMetrics()
	p := NewBarPipeline(proc, mtr, WithBufferSize(4))
	ctx := context.Background()

	if err := p.Process(ctx, validTestBar("BTCUSDT", 0)); err != nil {
		t.Fatalf("downstream failure must not surface to the feed: %v", err)
	}
	waitFor(t, func() bool { return mtr.errorCount("pipeline_process") == 1 },
		"downstream failure never recorded")

	// once downstream recovers, the retry loop drains the buffered bar
	proc.setErr(nil)
	p.Start(ctx)
	defer p.Stop()
	waitFor(t, func() bool { return proc.count() == 1 }, "buffered bar never replayed")
}

type stallingProc struct {
	countingProc
	stall string
	gate  chan struct{}
}

func (p *stallingProc) Process(ctx context.Context, bar models.Bar) error {
	if bar.Symbol == p.stall {
		<-p.gate
	}
	return p.countingProc.Process(ctx, bar)
}

func TestPipelineSymbolsRunIndependently(t *testing.T) {
	// one symbol's slow decision must not delay another symbol's bar
	proc := &stallingProc{stall: "SLOWUSDT", gate: make(chan struct{})}
	mtr := newCountingMetrics()
	p := NewBarPipeline(proc, mtr)
	defer p.Stop()
	ctx := context.Background()

	if err := p.Process(ctx, validTestBar("SLOWUSDT", 0)); err != nil {
		t.Fatalf("slow symbol: %v", err)
	}
	if err := p.Process(ctx, validTestBar("FASTUSDT", 0)); err != nil {
		t.Fatalf("fast symbol: %v", err)
	}

	waitFor(t, func() bool { return proc.countSymbol("FASTUSDT") == 1 },
		"fast symbol stuck behind the stalled one")
	if proc.countSymbol("SLOWUSDT") != 0 {
		t.Error("stalled symbol completed unexpectedly")
	}

	close(proc.gate)
	waitFor(t, func() bool { return proc.countSymbol("SLOWUSDT") == 1 },
		"stalled symbol never completed")
}

func TestPipelineKeepsPerSymbolOrder(t *testing.T) {
	proc := &countingProc{}
	mtr := newCountingMetrics()
	p := NewBarPipeline(proc, mtr, WithMaxRPS(0))
	defer p.Stop()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := p.Process(ctx, validTestBar("BTCUSDT", i)); err != nil {
			t.Fatalf("Process bar %d: %v", i, err)
		}
	}
	waitFor(t, func() bool { return proc.count() == 5 }, "bars never drained")

	proc.mu.Lock()
	defer proc.mu.Unlock()
	for i := 1; i < len(proc.bars); i++ {
		if !proc.bars[i].OpenTime.After(proc.bars[i-1].OpenTime) {
			t.Fatalf("bars out of order at %d", i)
		}
	}
}