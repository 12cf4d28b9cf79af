package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microtrend_cycles_total",
			Help: "Strategy cycles run, by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "microtrend_cycle_duration_seconds",
			Help:    "Wall time of one strategy cycle.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microtrend_orders_submitted_total",
			Help: "Orders handed to an executor, by mode, side and venue (paper or live).",
		},
		[]string{"mode", "side", "venue"},
	)

	OrdersFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microtrend_orders_failed_total",
			Help: "Orders the executor rejected.",
		},
		[]string{"mode", "venue"},
	)

	GateDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microtrend_gate_denials_total",
			Help: "Trades blocked by a daily risk gate.",
		},
		[]string{"gate"},
	)

	PositionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microtrend_positions_closed_total",
			Help: "Positions closed, by exit reason.",
		},
		[]string{"reason"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "microtrend_positions_open",
			Help: "Open positions tracked by the engine.",
		},
	)

	PaperBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "microtrend_paper_balance_usd",
			Help: "Paper ledger balance.",
		},
	)

	DailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "microtrend_daily_pnl_usd",
			Help: "Realized P&L since the last daily reset.",
		},
	)

	Indicator = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "microtrend_indicator",
			Help: "Last indicator reading per symbol (rsi, atr, funding_rate).",
		},
		[]string{"symbol", "name"},
	)

	ExchangeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microtrend_exchange_requests_total",
			Help: "Exchange REST calls by endpoint and result.",
		},
		[]string{"endpoint", "result"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microtrend_cache_lookups_total",
			Help: "Market data cache lookups by kind and result (hit, miss, error).",
		},
		[]string{"kind", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal, CycleDuration, OrdersSubmitted, OrdersFailed, GateDenials,
		PositionsClosed, PositionsOpen, PaperBalance, DailyPnL, Indicator, ExchangeRequests,
		CacheLookups,
	)
}
