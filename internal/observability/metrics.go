// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	RawEventsReceived *prometheus.CounterVec
	EventErrors       *prometheus.CounterVec

	// Admission metrics
	CandidatesProcessed *prometheus.CounterVec
	GateFailures        *prometheus.CounterVec
	ScoreValue          prometheus.Histogram

	// Budget metrics
	Reservations      *prometheus.CounterVec
	CommittedExposure prometheus.Gauge
	RealizedPnL       prometheus.Gauge
	CircuitBreaker    prometheus.Gauge

	// Execution metrics
	Executions       *prometheus.CounterVec
	ExecutionLatency *prometheus.HistogramVec
	RPCCallLatency   *prometheus.HistogramVec

	// Position metrics
	OpenPositions prometheus.Gauge
	Exits         *prometheus.CounterVec
	ExitRetries   prometheus.Counter

	// Alert metrics
	AlertsEmitted *prometheus.CounterVec
	AlertsDropped prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered on reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "graduation_engine"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		RawEventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "raw_events_total",
			Help:      "Total number of raw candidate events received by source",
		}, []string{"source"}),
		EventErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "event_errors_total",
			Help:      "Total number of events that failed normalization or persistence",
		}, []string{"stage"}),

		CandidatesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "candidates_total",
			Help:      "Total number of candidates processed by outcome",
		}, []string{"outcome"}),
		GateFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "failures_total",
			Help:      "Total number of gate failures by gate",
		}, []string{"gate"}),
		ScoreValue: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "score",
			Help:      "Distribution of computed Graduation Scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),

		Reservations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "reservations_total",
			Help:      "Total number of reservation attempts by result",
		}, []string{"result"}),
		CommittedExposure: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "committed_usd",
			Help:      "Capital currently reserved by open positions in USD",
		}),
		RealizedPnL: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "realized_pnl_usd",
			Help:      "Realized P&L of the current trading day in USD",
		}),
		CircuitBreaker: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "circuit_breaker",
			Help:      "1 when the daily loss circuit breaker is tripped",
		}),

		Executions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_total",
			Help:      "Total number of orders by mode, side and result",
		}, []string{"mode", "side", "result"}),
		ExecutionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "latency_seconds",
			Help:      "Order routing latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"mode"}),
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		OpenPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "open",
			Help:      "Number of positions not yet closed",
		}),
		Exits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "exits_total",
			Help:      "Total number of closed positions by exit reason",
		}, []string{"reason"}),
		ExitRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "exit_retries_total",
			Help:      "Total number of failed exit attempts that were retried",
		}),

		AlertsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "emitted_total",
			Help:      "Total number of alerts queued by kind",
		}, []string{"kind"}),
		AlertsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "dropped_total",
			Help:      "Total number of alerts dropped on a full queue",
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordRawEvent counts a raw candidate event.
func RecordRawEvent(source string) {
	DefaultMetrics.RawEventsReceived.WithLabelValues(source).Inc()
}

// RecordEventError counts an event that failed at stage.
func RecordEventError(stage string) {
	DefaultMetrics.EventErrors.WithLabelValues(stage).Inc()
}

// RecordCandidate counts a processed candidate by outcome.
func RecordCandidate(outcome string) {
	DefaultMetrics.CandidatesProcessed.WithLabelValues(outcome).Inc()
}

// RecordGateFailure counts a failed gate.
func RecordGateFailure(gate string) {
	DefaultMetrics.GateFailures.WithLabelValues(gate).Inc()
}

// RecordScore observes a computed score.
func RecordScore(value float64) {
	DefaultMetrics.ScoreValue.Observe(value)
}

// RecordReservation counts a reservation attempt. result is "ok" or a rejection reason.
func RecordReservation(result string) {
	DefaultMetrics.Reservations.WithLabelValues(result).Inc()
}

// UpdateLedger sets the ledger gauges.
func UpdateLedger(committedUSD, realizedPnLUSD float64, breaker bool) {
	DefaultMetrics.CommittedExposure.Set(committedUSD)
	DefaultMetrics.RealizedPnL.Set(realizedPnLUSD)
	if breaker {
		DefaultMetrics.CircuitBreaker.Set(1)
	} else {
		DefaultMetrics.CircuitBreaker.Set(0)
	}
}

// RecordExecution records an order result and its latency.
func RecordExecution(mode, side, result string, seconds float64) {
	DefaultMetrics.Executions.WithLabelValues(mode, side, result).Inc()
	DefaultMetrics.ExecutionLatency.WithLabelValues(mode).Observe(seconds)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// SetOpenPositions sets the open positions gauge.
func SetOpenPositions(n int) {
	DefaultMetrics.OpenPositions.Set(float64(n))
}

// RecordExit counts a closed position.
func RecordExit(reason string) {
	DefaultMetrics.Exits.WithLabelValues(reason).Inc()
}

// RecordExitRetry counts a failed exit attempt.
func RecordExitRetry() {
	DefaultMetrics.ExitRetries.Inc()
}

// RecordAlert counts a queued alert.
func RecordAlert(kind string) {
	DefaultMetrics.AlertsEmitted.WithLabelValues(kind).Inc()
}

// RecordAlertDropped counts an alert dropped on overflow.
func RecordAlertDropped() {
	DefaultMetrics.AlertsDropped.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
