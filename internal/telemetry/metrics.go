package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	// Decisions counts trend signals by action.
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_decisions_total",
			Help: "Trend decisions taken",
		},
		[]string{"action"},
	)

	// TradesOpened counts opened trades by mode and side.
	TradesOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_trades_opened_total",
			Help: "Trades opened",
		},
		[]string{"mode", "side"},
	)

	// TradesClosed counts settled trades by result.
	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_trades_closed_total",
			Help: "Trades settled, split by result",
		},
		[]string{"mode", "result"}, // result: win|loss
	)

	// Insights counts generated insights by provenance.
	Insights = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_insights_total",
			Help: "Insights generated, split by provenance",
		},
		[]string{"provenance"},
	)

	// Balance tracks the current balance per account mode.
	Balance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pilot_balance",
			Help: "Account balance per mode",
		},
		[]string{"mode"},
	)

	// AutopilotEnabled is 1 while autonomous entries are allowed.
	AutopilotEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pilot_autopilot_enabled",
			Help: "Whether autopilot is currently enabled",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Decisions,
		TradesOpened,
		TradesClosed,
		Insights,
		Balance,
		AutopilotEnabled,
	)
}
