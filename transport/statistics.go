package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "idpointer"

// PoolStatistics is a prometheus collector reporting per-endpoint pool
// gauges: acquired connections, queued waiters, and idle connections.
type PoolStatistics struct {
	pools *PoolMap

	acquiredDesc *prometheus.Desc
	pendingDesc  *prometheus.Desc
	idleDesc     *prometheus.Desc
}

var _ prometheus.Collector = (*PoolStatistics)(nil)

// NewPoolStatistics returns a collector over the manager's pools.
func NewPoolStatistics(m *Manager) *PoolStatistics {
	labels := []string{"endpoint"}
	return &PoolStatistics{
		pools: m.Pools(),
		acquiredDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "acquired_connections"),
			"Number of connections currently handed out.",
			labels, nil),
		pendingDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "pending_acquires"),
			"Number of callers queued for a connection.",
			labels, nil),
		idleDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "idle_connections"),
			"Number of connections resting in the idle reservoir.",
			labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (s *PoolStatistics) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.acquiredDesc
	ch <- s.pendingDesc
	ch <- s.idleDesc
}

// Collect implements prometheus.Collector.
func (s *PoolStatistics) Collect(ch chan<- prometheus.Metric) {
	s.pools.Each(func(ep Endpoint, p *FixedPool) {
		endpoint := ep.String()
		ch <- prometheus.MustNewConstMetric(s.acquiredDesc, prometheus.GaugeValue, float64(p.AcquiredCount()), endpoint)
		ch <- prometheus.MustNewConstMetric(s.pendingDesc, prometheus.GaugeValue, float64(p.PendingCount()), endpoint)
		ch <- prometheus.MustNewConstMetric(s.idleDesc, prometheus.GaugeValue, float64(p.IdleCount()), endpoint)
	})
}
