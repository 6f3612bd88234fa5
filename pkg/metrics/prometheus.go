package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signals        *prometheus.CounterVec
	filterBlocks   *prometheus.CounterVec
	tradesClosed   *prometheus.CounterVec
	tradePnL       *prometheus.GaugeVec
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
	openPositions  prometheus.Gauge
	circuitBreaker prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signals: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trend_signals_total",
				Help: "Signal pipeline outcomes by symbol and reason code",
			},
			[]string{"symbol", "outcome"},
		),
		filterBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trend_filter_blocks_total",
				Help: "Entry signals blocked, by filter name",
			},
			[]string{"filter"},
		),
		tradesClosed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trend_trades_closed_total",
				Help: "Closed trades by symbol and exit reason",
			},
			[]string{"symbol", "reason"},
		),
		tradePnL: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trend_trade_pnl_usdt",
				Help: "Cumulative realized PnL in quote units, by symbol",
			},
			[]string{"symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trend_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trend_last_price",
				Help: "Last observed close price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trend_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		openPositions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "trend_open_positions",
				Help: "Number of currently open positions",
			},
		),
		circuitBreaker: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "trend_circuit_breaker_active",
				Help: "1 while the loss circuit breaker is pausing entries",
			},
		),
	}
}

// RecordSignal records a pipeline outcome for a symbol.
func (r *Recorder) RecordSignal(symbol, outcome string) {
	r.signals.WithLabelValues(symbol, outcome).Inc()
}

// RecordFilterBlock records an entry blocked by a named filter.
func (r *Recorder) RecordFilterBlock(filter string) {
	r.filterBlocks.WithLabelValues(filter).Inc()
}

// RecordTradeClosed records a closed trade and its realized PnL.
func (r *Recorder) RecordTradeClosed(symbol, reason string, pnl float64) {
	r.tradesClosed.WithLabelValues(symbol, reason).Inc()
	r.tradePnL.WithLabelValues(symbol).Add(pnl)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// SetOpenPositions sets the open position count.
func (r *Recorder) SetOpenPositions(n int) {
	r.openPositions.Set(float64(n))
}

// SetCircuitBreaker flags whether the circuit breaker is active.
func (r *Recorder) SetCircuitBreaker(active bool) {
	v := 0.0
	if active {
		v = 1
	}
	r.circuitBreaker.Set(v)
}
