package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initReplicaMetrics() {
	r.ReplicaUpdatesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsub_replica_updates_total",
			Help: "Updates applied to the topic database, by operation and origin",
		},
		[]string{"op", "origin"},
	)

	r.ReplicaSyncsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsub_replica_syncs_total",
			Help: "Snapshot transfers pulled from a fresher peer, by result",
		},
		[]string{"result"},
	)

	r.ReplicaObserverFailures = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "pubsub_replica_observer_failures_total",
			Help: "Updates the master failed to push to a slave",
		},
	)

	r.ReplicaTopicsTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "pubsub_replica_topics",
			Help: "Topics in the local replica",
		},
	)

	r.SlavesReapedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "pubsub_replica_slaves_reaped_total",
			Help: "Slaves declared unreachable by the health monitor",
		},
	)

	r.ReplicaFeedDropped = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "pubsub_replica_feed_dropped",
			Help: "Change events dropped because a watcher fell behind",
		},
	)
}
