package filter

import (
	"TrendEngine/internal/domain/models"
	"TrendEngine/internal/domain/repository"
	"TrendEngine/pkg/logger"
)

// Input is everything a filter may inspect for one evaluation. Filters treat
// it as read-only.
type Input struct {
	Symbol   string
	Side     models.Side
	Price    float64
	Series   *models.Series
	Snapshot models.IndicatorSnapshot
}

// Filter is one named check in the chain. Check returns pass and, when
// blocking, a short human-readable detail.
type Filter struct {
	Name  string
	Check func(in Input) (bool, string)
}

// Verdict is the outcome of running a chain.
type Verdict struct {
	Passed    bool
	BlockedBy string // name of the first failing filter, empty when passed
	Detail    string
}

// Chain runs filters in registration order and stops at the first failure.
// Later filters never observe inputs that an earlier filter rejected.
type Chain struct {
	filters []Filter
	log     *logger.Logger
	metrics repository.Metrics
}

// NewChain builds a chain over the given filters in order.
func NewChain(log *logger.Logger, metrics repository.Metrics, filters ...Filter) *Chain {
	return &Chain{filters: filters, log: log, metrics: metrics}
}

// Names returns the filter names in evaluation order.
func (c *Chain) Names() []string {
	out := make([]string, len(c.filters))
	for i, f := range c.filters {
		out[i] = f.Name
	}
	return out
}

// Evaluate runs the chain and returns the verdict of the first failure, or a
// passing verdict when every filter approves.
func (c *Chain) Evaluate(in Input) Verdict {
	for _, f := range c.filters {
		ok, detail := f.Check(in)
		if ok {
			continue
		}
		if c.metrics != nil {
			c.metrics.RecordFilterBlock(f.Name)
		}
		if c.log != nil {
			c.log.Debug("signal blocked by filter",
				logger.String("symbol", in.Symbol),
				logger.String("side", string(in.Side)),
				logger.String("filter", f.Name),
				logger.String("detail", detail))
		}
		return Verdict{Passed: false, BlockedBy: f.Name, Detail: detail}
	}
	return Verdict{Passed: true}
}
