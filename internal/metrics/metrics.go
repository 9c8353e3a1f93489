package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps the Prometheus collectors the router daemon exposes.
type Registry struct {
	Sessions sessionGauges
	Routing  routingCounters
	Calls    callObservations
}

type sessionGauges struct {
	Active       prometheus.Gauge
	RealmsActive prometheus.Gauge
}

type routingCounters struct {
	MessagesIn        prometheus.Counter
	EventsDelivered   prometheus.Counter
	PublishesReceived prometheus.Counter
	HandshakeErrors   prometheus.Counter
	ProtocolErrors    prometheus.Counter
}

type callObservations struct {
	CallsRouted   prometheus.Counter
	CallsCanceled prometheus.Counter
	CallLatency   prometheus.Histogram
}

// NewRegistry creates Prometheus metrics collectors.
func NewRegistry() *Registry {
	return &Registry{
		Sessions: sessionGauges{
			Active: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "wampgo_sessions_active",
				Help: "Number of attached WAMP sessions",
			}),
			RealmsActive: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "wampgo_realms_active",
				Help: "Number of realms currently hosted",
			}),
		},
		Routing: routingCounters{
			MessagesIn: promauto.NewCounter(prometheus.CounterOpts{
				Name: "wampgo_messages_in_total",
				Help: "Total WAMP messages received from clients",
			}),
			EventsDelivered: promauto.NewCounter(prometheus.CounterOpts{
				Name: "wampgo_events_delivered_total",
				Help: "Total EVENT messages fanned out to subscribers",
			}),
			PublishesReceived: promauto.NewCounter(prometheus.CounterOpts{
				Name: "wampgo_publishes_received_total",
				Help: "Total PUBLISH messages accepted for routing",
			}),
			HandshakeErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "wampgo_handshake_errors_total",
				Help: "Total raw-socket handshake failures",
			}),
			ProtocolErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "wampgo_protocol_errors_total",
				Help: "Total sessions aborted for protocol violations",
			}),
		},
		Calls: callObservations{
			CallsRouted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "wampgo_calls_routed_total",
				Help: "Total CALL messages forwarded to callees",
			}),
			CallsCanceled: promauto.NewCounter(prometheus.CounterOpts{
				Name: "wampgo_calls_canceled_total",
				Help: "Total calls terminated by CANCEL or timeout",
			}),
			CallLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "wampgo_call_latency_seconds",
				Help:    "Latency from CALL receipt to final RESULT/ERROR",
				Buckets: prometheus.DefBuckets,
			}),
		},
	}
}

// Handler returns an HTTP handler exposing Prometheus metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}
