// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the risk pipeline.
type Metrics struct {
	PointsIngested      *prometheus.CounterVec
	MalformedPayloads   *prometheus.CounterVec
	InterruptsFired     prometheus.Counter
	BroadcastFailures   prometheus.Counter
	GenerationFallbacks *prometheus.CounterVec
	CompositeScore      prometheus.Gauge
	ConnectedClients    prometheus.Gauge
	ListenerReconnects  *prometheus.CounterVec
}

// New creates and registers all pipeline metrics on reg. Passing a fresh
// registry keeps tests isolated from the default global one.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PointsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riskconsole_points_ingested_total",
			Help: "Total data points routed through the pipeline",
		}, []string{"source"}),

		MalformedPayloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riskconsole_malformed_payloads_total",
			Help: "Upstream payloads dropped because they could not be decoded",
		}, []string{"source"}),

		InterruptsFired: factory.NewCounter(prometheus.CounterOpts{
			Name: "riskconsole_interrupts_fired_total",
			Help: "Interrupt events fired by the controller",
		}),

		BroadcastFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "riskconsole_broadcast_failures_total",
			Help: "Client connections dropped after a failed write",
		}),

		GenerationFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riskconsole_generation_fallbacks_total",
			Help: "Times canned content replaced a failed generation call",
		}, []string{"kind"}),

		CompositeScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "riskconsole_composite_risk_score",
			Help: "Current composite risk score (0-100)",
		}),

		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "riskconsole_connected_clients",
			Help: "Currently registered client connections",
		}),

		ListenerReconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "riskconsole_listener_reconnects_total",
			Help: "Reconnection attempts per upstream feed",
		}, []string{"source"}),
	}
}
