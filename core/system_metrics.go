// SPDX-License-Identifier: BUSL-1.1
//
// Node metrics over an owned prometheus registry: no default-registry
// globals, the NodeContext carries the registry.
package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the node's counters and gauges.
type Metrics struct {
	Registry *prometheus.Registry

	BlocksCommitted prometheus.Counter
	ChainHeight     prometheus.Gauge
	MempoolAdmitted prometheus.Counter
	MempoolEvicted  *prometheus.CounterVec
	ViewChanges     prometheus.Counter
	GasConsumed     prometheus.Counter
}

// NewMetrics builds and registers the full metric set on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}
	m.BlocksCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "neo", Subsystem: "chain", Name: "blocks_committed_total",
		Help: "Blocks durably committed to storage.",
	})
	m.ChainHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "neo", Subsystem: "chain", Name: "height",
		Help: "Current persisted chain height.",
	})
	m.MempoolAdmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "neo", Subsystem: "mempool", Name: "admitted_total",
		Help: "Transactions admitted to the mempool.",
	})
	m.MempoolEvicted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neo", Subsystem: "mempool", Name: "removed_total",
		Help: "Transactions removed from the mempool, by reason.",
	}, []string{"reason"})
	m.ViewChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "neo", Subsystem: "consensus", Name: "view_changes_total",
		Help: "dBFT view changes entered.",
	})
	m.GasConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "neo", Subsystem: "vm", Name: "gas_consumed_total",
		Help: "Gas consumed by committed transaction executions.",
	})
	m.Registry.MustRegister(
		m.BlocksCommitted, m.ChainHeight,
		m.MempoolAdmitted, m.MempoolEvicted,
		m.ViewChanges, m.GasConsumed,
	)
	return m
}
