// Package metrics holds the Prometheus metrics for the reconciliation
// engine's Update Loop (H), per §4.8.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lido-go/registry-reconciler/internal/registry"
)

// Metrics holds the observability counters emitted after each update cycle.
type Metrics struct {
	LastBlockNumber    *prometheus.GaugeVec
	LastBlockTimestamp *prometheus.GaugeVec
	UpdateDuration     *prometheus.HistogramVec
	UpdateTotal        *prometheus.CounterVec
}

// New creates and registers the reconciler's metrics under the
// "registry_reconciler" namespace/subsystem.
func New(namespace, subsystem string) *Metrics {
	if namespace == "" {
		namespace = "registry"
	}
	if subsystem == "" {
		subsystem = "reconciler"
	}

	return &Metrics{
		LastBlockNumber: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_block_number",
			Help:      "Block number of the last successfully reconciled snapshot.",
		}, []string{"module_address"}),
		LastBlockTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_block_timestamp",
			Help:      "Block timestamp of the last successfully reconciled snapshot.",
		}, []string{"module_address"}),
		UpdateDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "update_duration_seconds",
			Help:      "Duration of one update cycle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"module_address"}),
		UpdateTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "update_total",
			Help:      "Count of update cycles by result.",
		}, []string{"module_address", "result"}),
	}
}

// ObserveCycle implements registry.Observer, recording the outcome of one
// update cycle. A non-nil meta with a nil err is "committed"; a nil meta
// with a nil err is a stale-snapshot no-op; a non-nil err is "failed".
func (m *Metrics) ObserveCycle(moduleAddress string, meta *registry.Meta, err error) {
	result := "committed"
	switch {
	case err != nil:
		result = "failed"
	case meta == nil:
		result = "noop"
	}
	m.UpdateTotal.WithLabelValues(moduleAddress, result).Inc()

	if meta == nil {
		return
	}
	m.LastBlockNumber.WithLabelValues(moduleAddress).Set(float64(meta.BlockNumber))
	m.LastBlockTimestamp.WithLabelValues(moduleAddress).Set(float64(meta.Timestamp))
}

// ObserveDuration records how long one update cycle took.
func (m *Metrics) ObserveDuration(moduleAddress string, seconds float64) {
	m.UpdateDuration.WithLabelValues(moduleAddress).Observe(seconds)
}

var _ registry.Observer = (*Metrics)(nil)
