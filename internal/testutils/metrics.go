package testutils

import (
	"maps"
	"sync"
	"time"

	"github.com/ahrav/go-podium/internal/ports"
)

var _ ports.MetricsCollector = (*RecordingMetrics)(nil)

// MetricCall is one recorded MetricsCollector invocation.
type MetricCall struct {
	Kind     string
	Name     string
	Value    float64
	Duration time.Duration
	Labels   map[string]string
}

// RecordingMetrics is a MetricsCollector that keeps every call for
// assertions.
type RecordingMetrics struct {
	mu    sync.Mutex
	calls []MetricCall
}

// NewRecordingMetrics creates an empty RecordingMetrics.
func NewRecordingMetrics() *RecordingMetrics { return &RecordingMetrics{} }

func (r *RecordingMetrics) record(c MetricCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Labels = maps.Clone(c.Labels)
	r.calls = append(r.calls, c)
}

// RecordLatency implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordLatency(operation string, d time.Duration, labels map[string]string) {
	r.record(MetricCall{Kind: "latency", Name: operation, Duration: d, Labels: labels})
}

// RecordCounter implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	r.record(MetricCall{Kind: "counter", Name: metric, Value: value, Labels: labels})
}

// RecordGauge implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	r.record(MetricCall{Kind: "gauge", Name: metric, Value: value, Labels: labels})
}

// RecordHistogram implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	r.record(MetricCall{Kind: "histogram", Name: metric, Value: value, Labels: labels})
}

// Calls returns the recorded calls of the given kind and name. An empty
// name matches every call of the kind.
func (r *RecordingMetrics) Calls(kind, name string) []MetricCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []MetricCall
	for _, c := range r.calls {
		if c.Kind == kind && (name == "" || c.Name == name) {
			out = append(out, c)
		}
	}
	return out
}
