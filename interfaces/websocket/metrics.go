package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the relay's Prometheus instruments.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	MessagesRelayed   *prometheus.CounterVec
	MessagesDropped   prometheus.Counter
	OpsRejected       *prometheus.CounterVec
}

// NewMetrics registers the relay metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pagesync",
			Subsystem: "relay",
			Name:      "active_connections",
			Help:      "Number of open WebSocket connections.",
		}),
		MessagesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagesync",
			Subsystem: "relay",
			Name:      "messages_relayed_total",
			Help:      "Envelopes fanned out to rooms, by message type.",
		}, []string{"type"}),
		MessagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pagesync",
			Subsystem: "relay",
			Name:      "messages_dropped_total",
			Help:      "Envelopes dropped because a client's send buffer was full.",
		}),
		OpsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagesync",
			Subsystem: "relay",
			Name:      "operations_rejected_total",
			Help:      "Element operations rejected before application, by error code.",
		}, []string{"code"}),
	}
}
