package metrics

import "github.com/prometheus/client_golang/prometheus"

// GatewayMetrics covers websocket sessions, the group registry and broadcast fan-out.
type GatewayMetrics struct {
	ActiveSessions   prometheus.Gauge
	AuthFailures     *prometheus.CounterVec
	InboundMessages  *prometheus.CounterVec
	Subscriptions    prometheus.Gauge
	Published        prometheus.Counter
	Delivered        prometheus.Counter
	DeliveryFailures *prometheus.CounterVec
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "active_sessions",
			Help:      "Number of authenticated websocket sessions.",
		}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "auth_failures_total",
			Help:      "Rejected websocket handshakes by reason.",
		}, []string{"reason"}),
		InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "inbound_messages_total",
			Help:      "Client messages by action.",
		}, []string{"action"}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "memberships",
			Help:      "Number of (symbol, session) memberships in the group registry.",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "published_total",
			Help:      "Payloads handed to the broadcast bus.",
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "delivered_total",
			Help:      "Payloads enqueued to a recipient.",
		}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "delivery_failures_total",
			Help:      "Per-recipient delivery failures by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.ActiveSessions, m.AuthFailures, m.InboundMessages, m.Subscriptions,
		m.Published, m.Delivered, m.DeliveryFailures)
	return m
}
