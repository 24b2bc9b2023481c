package observability

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/partcat/partcat/internal/errors"
)

func TestDispatchMetricsObserveCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics("partcat")
	if err := m.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}

	start := time.Now()
	m.ObserveCall("hive", "getPartitions", start, nil)
	m.ObserveCall("hive", "getPartitions", start, errors.NewUnsupportedOperation("getPartitions"))
	m.ObserveCall("hive", "getPartitions", start, fmt.Errorf("boom"))
	m.AddResults("hive", "getPartitions", 7)

	if got := testutil.ToFloat64(m.calls.WithLabelValues("hive", "getPartitions", OutcomeOK)); got != 1 {
		t.Errorf("expected 1 ok call, got %v", got)
	}
	if got := testutil.ToFloat64(m.calls.WithLabelValues("hive", "getPartitions", "unsupported_operation")); got != 1 {
		t.Errorf("expected 1 unsupported call, got %v", got)
	}
	if got := testutil.ToFloat64(m.calls.WithLabelValues("hive", "getPartitions", OutcomeError)); got != 1 {
		t.Errorf("expected 1 plain error call, got %v", got)
	}
	if got := testutil.ToFloat64(m.results.WithLabelValues("hive", "getPartitions")); got != 7 {
		t.Errorf("expected 7 results, got %v", got)
	}

	// Registering twice on the same registry fails and leaves the first set in place.
	if err := NewDispatchMetrics("partcat").Register(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	m.Unregister(reg)
	if err := NewDispatchMetrics("partcat").Register(reg); err != nil {
		t.Errorf("expected registration after unregister to succeed: %v", err)
	}
}

func TestDispatchMetricsBatchFailures(t *testing.T) {
	m := NewDispatchMetrics("partcat")
	be := errors.NewBatchError("deletePartitions")
	be.Add("dt=1", fmt.Errorf("gone"))
	be.Add("dt=2", fmt.Errorf("gone"))

	m.ObserveCall("local", "deletePartitions", time.Now(), be)
	if got := testutil.ToFloat64(m.batch.WithLabelValues("local", "deletePartitions")); got != 2 {
		t.Errorf("expected 2 batch failures, got %v", got)
	}
	if got := testutil.ToFloat64(m.calls.WithLabelValues("local", "deletePartitions", "batch")); got != 1 {
		t.Errorf("expected batch outcome, got %v", got)
	}
}

func TestNilDispatchMetrics(t *testing.T) {
	var m *DispatchMetrics
	m.ObserveCall("c", "op", time.Now(), nil)
	m.AddResults("c", "op", 1)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("x"), "error"},
		{errors.NewConnectorError(errors.CodeTimeout, "slow", nil), "timeout"},
		{fmt.Errorf("wrapped: %w", errors.NewSyntaxError("a =", nil)), "syntax_error"},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestPoolCollector(t *testing.T) {
	c := NewPoolCollector("partcat")
	c.Add("warehouse", func() sql.DBStats {
		return sql.DBStats{OpenConnections: 5, InUse: 2, Idle: 3, WaitCount: 9}
	})

	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	want := map[string]float64{
		"partcat_pool_connections_total":  5,
		"partcat_pool_connections_active": 2,
		"partcat_pool_connections_idle":   3,
		"partcat_pool_wait_count_total":   9,
	}
	for name, value := range want {
		m := findMetric(families, name, "warehouse")
		if m == nil {
			t.Errorf("metric %s not found", name)
			continue
		}
		if got := metricValue(m); got != value {
			t.Errorf("%s = %v, want %v", name, got, value)
		}
	}

	c.Remove("warehouse")
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Errorf("expected no metrics after remove, got %d", n)
	}
	if len(c.Pools()) != 0 {
		t.Errorf("expected no pools, got %v", c.Pools())
	}
}

func findMetric(families []*dto.MetricFamily, name, pool string) *dto.Metric {
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "pool" && l.GetValue() == pool {
					return m
				}
			}
		}
	}
	return nil
}

func metricValue(m *dto.Metric) float64 {
	if g := m.GetGauge(); g != nil {
		return g.GetValue()
	}
	return m.GetCounter().GetValue()
}
