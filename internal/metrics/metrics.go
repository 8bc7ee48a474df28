// Package metrics exposes Prometheus counters for bot and engine activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the application's Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	UpdatesTotal       *prometheus.CounterVec
	PoolsCreatedTotal  prometheus.Counter
	SelfReportsTotal   *prometheus.CounterVec
	ConfirmationsTotal prometheus.Counter
	StoreFailuresTotal prometheus.Counter
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		UpdatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Telegram updates processed, labeled by kind.",
		}, []string{"kind"}),
		PoolsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pools_created_total",
			Help: "Pools created since process start.",
		}),
		SelfReportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_self_reported_total",
			Help: "Participant payment self-reports, labeled by method.",
		}, []string{"method"}),
		ConfirmationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "payments_confirmed_total",
			Help: "Owner payment confirmations.",
		}),
		StoreFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "store_failures_total",
			Help: "Unexpected persistence-layer failures.",
		}),
	}
}

// Registry returns the registry backing the collectors, for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
