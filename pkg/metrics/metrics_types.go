package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric exported by a node process.
type Registry struct {
	// Coordination (pkg/cluster)
	ElectionsTotal        *prometheus.CounterVec // result: won, quorum_lost, sync_failed, init_failed, ready_failed
	MergeContinueDuration prometheus.Histogram
	RecoveriesTotal       *prometheus.CounterVec // reason
	InvitationsTotal      *prometheus.CounterVec // result
	PeerCallFailuresTotal *prometheus.CounterVec // method
	Generation            prometheus.Gauge
	GroupSize             prometheus.Gauge
	MaxKnownSize          prometheus.Gauge
	UpdatesInFlight       prometheus.Gauge
	NodeState             *prometheus.GaugeVec // state
	NodeRole              *prometheus.GaugeVec // role: coordinator, slave

	// Replica store (pkg/replica)
	ReplicaUpdatesTotal     *prometheus.CounterVec // op, origin: master, observer
	ReplicaSyncsTotal       *prometheus.CounterVec // result
	ReplicaObserverFailures prometheus.Counter
	ReplicaTopicsTotal      prometheus.Gauge
	SlavesReapedTotal       prometheus.Counter
	ReplicaFeedDropped      prometheus.Gauge // watch events lost to full buffers

	// Transport (pkg/transport) and admin API (pkg/api)
	TransportRequestsTotal   *prometheus.CounterVec // method, status
	TransportRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal        *prometheus.CounterVec // path, status

	// Process
	UptimeSeconds prometheus.Gauge
	GoRoutines    prometheus.Gauge

	startTime time.Time
	registry  *prometheus.Registry
	mu        sync.Mutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with all metrics initialized. Tests create
// their own so counters start from zero.
func NewRegistry() *Registry {
	r := &Registry{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	r.initClusterMetrics()
	r.initReplicaMetrics()
	r.initTransportMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
