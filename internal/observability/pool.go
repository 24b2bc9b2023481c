package observability

import (
	"database/sql"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolStatsFunc reports the current state of a connection pool.
type PoolStatsFunc func() sql.DBStats

// PoolCollector exports connection pool gauges for every registered pool:
// <namespace>_pool_connections_{total,active,idle}{pool} and the number of
// waits for a connection.
type PoolCollector struct {
	mu    sync.RWMutex
	pools map[string]PoolStatsFunc

	total     *prometheus.Desc
	active    *prometheus.Desc
	idle      *prometheus.Desc
	waitCount *prometheus.Desc
}

// NewPoolCollector creates an empty collector under namespace.
func NewPoolCollector(namespace string) *PoolCollector {
	labels := []string{"pool"}
	return &PoolCollector{
		pools: make(map[string]PoolStatsFunc),
		total: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "connections_total"),
			"Open connections in the pool", labels, nil),
		active: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "connections_active"),
			"Connections currently in use", labels, nil),
		idle: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "connections_idle"),
			"Idle connections", labels, nil),
		waitCount: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "wait_count_total"),
			"Total number of waits for a connection", labels, nil),
	}
}

// Add starts exporting the pool named name. Adding a name again replaces it.
func (c *PoolCollector) Add(name string, stats PoolStatsFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools[name] = stats
}

// Remove stops exporting the pool named name.
func (c *PoolCollector) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pools, name)
}

// Pools returns the registered pool names in order.
func (c *PoolCollector) Pools() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.pools))
	for name := range c.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.active
	ch <- c.idle
	ch <- c.waitCount
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, statsFn := range c.pools {
		s := statsFn()
		ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.OpenConnections), name)
		ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(s.InUse), name)
		ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle), name)
		ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(s.WaitCount), name)
	}
}

var _ prometheus.Collector = (*PoolCollector)(nil)
