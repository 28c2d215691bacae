package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTransportMetrics() {
	r.TransportRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsub_transport_requests_total",
			Help: "Inbound peer RPCs, by method and status",
		},
		[]string{"method", "status"},
	)

	r.TransportRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pubsub_transport_request_duration_seconds",
			Help:    "Inbound peer RPC handling time",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"method"},
	)

	r.HTTPRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsub_http_requests_total",
			Help: "Admin API requests, by path and status",
		},
		[]string{"path", "status"},
	)
}
