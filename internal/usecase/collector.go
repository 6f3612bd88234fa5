package usecase

import (
	"context"

	"TrendEngine/internal/domain/models"
	drepo "TrendEngine/internal/domain/repository"
	mid "TrendEngine/internal/middleware"
)

// BarCollector connects the market feed and pumps closed bars through the
// pipeline into the decision engine.
type BarCollector struct {
	feed    drepo.MarketFeed
	pipe    *mid.BarPipeline
	metrics drepo.Metrics
	symbols []string
}

// NewBarCollector creates a collector for the symbol universe.
func NewBarCollector(feed drepo.MarketFeed, pipe *mid.BarPipeline, metrics drepo.Metrics, symbols []string) *BarCollector {
	return &BarCollector{feed: feed, pipe: pipe, metrics: metrics, symbols: symbols}
}

// IsConnected reports feed connectivity.
func (c *BarCollector) IsConnected() bool {
	return c.feed.IsConnected()
}

// Start connects, subscribes and begins consuming.
func (c *BarCollector) Start(ctx context.Context) error {
	if err := c.feed.Connect(ctx); err != nil {
		return err
	}
	if err := c.feed.Subscribe(ctx, c.symbols); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	bars, errs := c.feed.Read(ctx)
	go c.consume(ctx, bars, errs)
	return nil
}

func (c *BarCollector) consume(ctx context.Context, bars <-chan models.Bar, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			if err != nil {
				c.metrics.RecordError("stream")
				if rerr := c.feed.Reconnect(ctx); rerr == nil {
					bars, errs = c.feed.Read(ctx)
				}
			}
		case bar, ok := <-bars:
			if !ok {
				return
			}
			_ = c.pipe.Process(ctx, bar)
		}
	}
}

// Shutdown stops the pipeline and closes the feed.
func (c *BarCollector) Shutdown(ctx context.Context) error {
	c.pipe.Stop()
	return c.feed.Close()
}
