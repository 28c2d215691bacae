package metrics

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	nodeStates = []string{"inactive", "election", "reorganization", "normal"}
	nodeRoles  = []string{"coordinator", "slave"}
)

// SetNodeState marks state as the current coordination state.
func (r *Registry) SetNodeState(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range nodeStates {
		r.NodeState.WithLabelValues(s).Set(0)
	}
	r.NodeState.WithLabelValues(state).Set(1)
}

// SetNodeRole marks the node as coordinator or slave of its group.
func (r *Registry) SetNodeRole(role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range nodeRoles {
		r.NodeRole.WithLabelValues(s).Set(0)
	}
	r.NodeRole.WithLabelValues(role).Set(1)
}

// UpdateGroupMetrics records the shape of the group after a transition.
func (r *Registry) UpdateGroupMetrics(generation int64, groupSize, maxKnown int) {
	r.Generation.Set(float64(generation))
	r.GroupSize.Set(float64(groupSize))
	r.MaxKnownSize.Set(float64(maxKnown))
}

// RecordActivation records the outcome of a mergeContinue round.
func (r *Registry) RecordActivation(result string, duration time.Duration) {
	r.ElectionsTotal.WithLabelValues(result).Inc()
	if result == "won" {
		r.MergeContinueDuration.Observe(duration.Seconds())
	}
}

func (r *Registry) RecordRecovery(reason string) {
	r.RecoveriesTotal.WithLabelValues(reason).Inc()
}

func (r *Registry) RecordInvitation(result string) {
	r.InvitationsTotal.WithLabelValues(result).Inc()
}

func (r *Registry) RecordPeerFailure(method string) {
	r.PeerCallFailuresTotal.WithLabelValues(method).Inc()
}

func (r *Registry) RecordReplicaUpdate(op, origin string) {
	r.ReplicaUpdatesTotal.WithLabelValues(op, origin).Inc()
}

func (r *Registry) RecordReplicaSync(err error) {
	if err != nil {
		r.ReplicaSyncsTotal.WithLabelValues("error").Inc()
		return
	}
	r.ReplicaSyncsTotal.WithLabelValues("success").Inc()
}

// RecordTransportRequest records one handled peer RPC.
func (r *Registry) RecordTransportRequest(method, status string, duration time.Duration) {
	r.TransportRequestsTotal.WithLabelValues(method, status).Inc()
	r.TransportRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (r *Registry) RecordHTTPRequest(path string, status int) {
	r.HTTPRequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

// UpdateSystemMetrics refreshes the process gauges. Called on each scrape.
func (r *Registry) UpdateSystemMetrics() {
	r.UptimeSeconds.Set(time.Since(r.startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	inner := promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.UpdateSystemMetrics()
		inner.ServeHTTP(w, req)
	})
}
