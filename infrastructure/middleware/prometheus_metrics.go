// Package middleware provides cross-cutting concerns for the ranking engine:
// metrics, tracing and write pacing for the realtime channel.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-podium/internal/ports"
)

// Metric names understood by PrometheusMetrics. Unknown names fall back to
// the generic operation vectors.
const (
	MetricBallotsSubmitted = "ballots_submitted_total"
	MetricResultsPublished = "results_published_total"
	MetricCompareRounds    = "compare_rounds_total"
	MetricActiveSessions   = "compare_active_sessions"
	MetricPendingSeats     = "compare_pending_seats"
	MetricGroupsRanked     = "groups_ranked"
	MetricVotedResultSize  = "voted_result_size"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It tracks ballot flow, compare rounds, publishes and the
// latency of every engine operation.
type PrometheusMetrics struct {
	ballotsSubmitted *prometheus.CounterVec
	resultsPublished *prometheus.CounterVec
	compareRounds    *prometheus.CounterVec
	executionLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
	valueHistograms  *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance and
// registers all metrics with reg. A nil reg uses the global Prometheus
// registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		ballotsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "podium_ballots_submitted_total",
				Help: "Total number of runoff ballots written by judges.",
			},
			[]string{"contest_id", "grade_id"},
		),
		resultsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "podium_results_published_total",
				Help: "Total number of ranking publishes by outcome.",
			},
			[]string{"contest_id", "grade_id", "outcome"},
		),
		compareRounds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "podium_compare_rounds_total",
				Help: "Total number of compare rounds by terminal state.",
			},
			[]string{"contest_id", "grade_id", "status"},
		),

		executionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "podium_operation_duration_seconds",
				Help:    "Execution time of ranking engine operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "grade_id"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "podium_operations_total",
				Help: "Total number of ranking engine operations by status.",
			},
			[]string{"operation", "status", "grade_id"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "podium_system_state",
				Help: "Current state values of the ranking engine.",
			},
			[]string{"metric", "grade_id"},
		),
		valueHistograms: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "podium_value_distribution",
				Help:    "Distribution of per-operation values such as group and ballot counts.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"metric", "grade_id"},
		),
	}
}

func gradeLabel(labels map[string]string) string {
	if g := labels["grade_id"]; g != "" {
		return g
	}
	return "unknown"
}

func statusLabel(labels map[string]string) string {
	if s := labels["status"]; s != "" {
		return s
	}
	return "success"
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.executionLatency.WithLabelValues(operation, gradeLabel(labels)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	grade := gradeLabel(labels)

	switch metric {
	case MetricBallotsSubmitted:
		pm.ballotsSubmitted.WithLabelValues(labels["contest_id"], grade).Add(value)
	case MetricResultsPublished:
		pm.resultsPublished.WithLabelValues(labels["contest_id"], grade, labels["outcome"]).Add(value)
	case MetricCompareRounds:
		pm.compareRounds.WithLabelValues(labels["contest_id"], grade, labels["status"]).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, statusLabel(labels), grade).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric, gradeLabel(labels)).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	pm.valueHistograms.WithLabelValues(metric, gradeLabel(labels)).Observe(value)
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
