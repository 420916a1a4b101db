// Package metrics registers the Prometheus series the engine updates during
// operation, served at /metrics by the web server:
//
//	engine_orders_total{side,status}      – orders by side and terminal status
//	engine_rejections_total               – risk-ledger rejections
//	engine_exit_decisions_total{decision} – exit-voter verdicts
//	engine_emergency_stop                 – 1 while trading is halted
//	engine_daily_trades                   – today's trade count snapshot
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_total",
			Help: "Orders submitted, by side and terminal status",
		},
		[]string{"side", "status"},
	)

	Rejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_rejections_total",
			Help: "Risk validation rejections",
		},
	)

	ExitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_exit_decisions_total",
			Help: "Exit voter verdicts",
		},
		[]string{"decision"},
	)

	EmergencyStop = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_emergency_stop",
			Help: "1 while the emergency stop is active",
		},
	)

	DailyTrades = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_daily_trades",
			Help: "Trade count recorded today",
		},
	)
)

func init() {
	prometheus.MustRegister(Orders, Rejections, ExitDecisions, EmergencyStop, DailyTrades)
}
