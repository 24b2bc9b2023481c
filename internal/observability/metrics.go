package observability

import (
	stderrors "errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/partcat/partcat/internal/errors"
)

// Outcome labels for dispatcher calls that did not fail with a catalog error.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// DispatchMetrics holds the dispatcher's Prometheus collectors. They are
// registered on an injected registerer so tests and embedders can use their
// own registry. A nil *DispatchMetrics records nothing.
type DispatchMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	results  *prometheus.CounterVec
	batch    *prometheus.CounterVec
}

// NewDispatchMetrics creates the collectors under namespace.
func NewDispatchMetrics(namespace string) *DispatchMetrics {
	return &DispatchMetrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_calls_total",
				Help:      "Total number of connector calls by catalog, operation and outcome",
			},
			[]string{"catalog", "operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_call_duration_seconds",
				Help:      "Connector call latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"catalog", "operation"},
		),
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_results_total",
				Help:      "Total number of items returned by connector calls",
			},
			[]string{"catalog", "operation"},
		),
		batch: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_batch_failures_total",
				Help:      "Total number of individual partitions that failed inside batch operations",
			},
			[]string{"catalog", "operation"},
		),
	}
}

func (m *DispatchMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.calls, m.duration, m.results, m.batch}
}

// Register registers every collector on reg. On failure the collectors that
// were registered are removed again.
func (m *DispatchMetrics) Register(reg prometheus.Registerer) error {
	var done []prometheus.Collector
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			for _, d := range done {
				reg.Unregister(d)
			}
			return err
		}
		done = append(done, c)
	}
	return nil
}

// Unregister removes every collector from reg.
func (m *DispatchMetrics) Unregister(reg prometheus.Registerer) {
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

// ObserveCall records one call that started at start and ended with err.
func (m *DispatchMetrics) ObserveCall(catalog, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(catalog, operation, Outcome(err)).Inc()
	m.duration.WithLabelValues(catalog, operation).Observe(time.Since(start).Seconds())
	if be, ok := errors.AsBatchError(err); ok {
		m.batch.WithLabelValues(catalog, operation).Add(float64(be.Len()))
	}
}

// AddResults records n items returned by a call.
func (m *DispatchMetrics) AddResults(catalog, operation string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.results.WithLabelValues(catalog, operation).Add(float64(n))
}

// Outcome maps an error to a low-cardinality label: "ok", the lower-cased
// catalog error code, "batch" for partial failures, or "error".
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var be *errors.BatchError
	if stderrors.As(err, &be) {
		return "batch"
	}
	if code := errors.GetCode(err); code != "" {
		return strings.ToLower(code)
	}
	return OutcomeError
}
