package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initClusterMetrics() {
	r.ElectionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsub_cluster_elections_total",
			Help: "Master activations attempted by this node as coordinator, by result",
		},
		[]string{"result"},
	)

	r.MergeContinueDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pubsub_cluster_activation_duration_seconds",
			Help:    "Time from quorum decision to all members ready",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
	)

	r.RecoveriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsub_cluster_recoveries_total",
			Help: "Transitions back to inactive, by reason",
		},
		[]string{"reason"},
	)

	r.InvitationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsub_cluster_invitations_total",
			Help: "Inbound group invitations, by outcome",
		},
		[]string{"result"},
	)

	r.PeerCallFailuresTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pubsub_cluster_peer_call_failures_total",
			Help: "Outbound peer calls that failed, by method",
		},
		[]string{"method"},
	)

	r.Generation = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "pubsub_cluster_generation",
			Help: "Current replication generation (-1 while inactive)",
		},
	)

	r.GroupSize = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "pubsub_cluster_group_size",
			Help: "Members in the group this node coordinates, including itself",
		},
	)

	r.MaxKnownSize = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "pubsub_cluster_max_known_size",
			Help: "Largest group size this node has observed",
		},
	)

	r.UpdatesInFlight = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "pubsub_cluster_updates_in_flight",
			Help: "Operations admitted by the update gate and not yet finished",
		},
	)

	r.NodeState = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pubsub_cluster_node_state",
			Help: "Coordination state (1 for the current state, 0 otherwise)",
		},
		[]string{"state"},
	)

	r.NodeRole = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pubsub_cluster_node_role",
			Help: "Node role in its group (1 for the current role, 0 otherwise)",
		},
		[]string{"role"},
	)
}
