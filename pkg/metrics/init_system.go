package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSystemMetrics() {
	factory := promauto.With(r.registry)

	r.UptimeSeconds = factory.NewGauge(prometheus.GaugeOpts{
		Name: "pubsub_uptime_seconds",
		Help: "Seconds since the node process started",
	})
	r.GoRoutines = factory.NewGauge(prometheus.GaugeOpts{
		Name: "pubsub_goroutines",
		Help: "Goroutines running in the node process",
	})
	factory.NewGauge(prometheus.GaugeOpts{
		Name: "pubsub_start_time_seconds",
		Help: "Unix time the node process started",
	}).Set(float64(r.startTime.Unix()))
}
