// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"time"

	"github.com/lnsim/ln-network-runner/network/node/status"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const metricsNamespace = "lnr"

// Metrics of the lifecycle controller. A nil *Metrics records nothing.
type Metrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	networks    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lifecycle_operations_total",
			Help:      "Lifecycle operations by operation and result",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "lifecycle_operation_duration_seconds",
			Help:      "Time spent in lifecycle operations",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"op"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "node_status_transitions_total",
			Help:      "Node status transitions by target status",
		}, []string{"to"}),
		networks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "networks",
			Help:      "Number of registered networks",
		}),
	}
	err := multierr.Combine(
		reg.Register(m.operations),
		reg.Register(m.duration),
		reg.Register(m.transitions),
		reg.Register(m.networks),
	)
	return m, err
}

func (m *Metrics) observeOp(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case IsValidation(err):
		result = "rejected"
	default:
		result = "failed"
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeTransition(to status.Status) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to.String()).Inc()
}

func (m *Metrics) setNetworks(n int) {
	if m == nil {
		return
	}
	m.networks.Set(float64(n))
}
