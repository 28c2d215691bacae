package health

import (
	"context"
	"sync"
	"time"

	"github.com/dd0wney/cluso-pubsub/pkg/logging"
	"github.com/dd0wney/cluso-pubsub/pkg/metrics"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the result of one named health check.
type Check struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ms"`
}

// CheckFunc performs a health check.
type CheckFunc func() Check

type checkKind int

const (
	kindGeneral checkKind = iota
	kindReadiness
	kindLiveness
)

// HealthChecker aggregates the process's registered checks.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[checkKind]map[string]CheckFunc
	started time.Time
}

// Response is the aggregated result served over HTTP.
type Response struct {
	Status    Status           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Uptime    time.Duration    `json:"uptime_seconds"`
}

// MemberSource lists the slaves of the group this node masters.
type MemberSource interface {
	SlaveIDs() []int
}

// Prober checks that a slave is alive and still in the group.
type Prober interface {
	ProbeSlave(ctx context.Context, id int) error
}

// MonitorConfig configures a SlaveMonitor.
type MonitorConfig struct {
	Interval     time.Duration // Time between probe rounds
	ProbeTimeout time.Duration // Bound on one probe round
	MaxFailures  int           // Consecutive failures before a slave is reaped
	ClusterSize  int           // Number of nodes in the peer directory
}

// DefaultMonitorConfig returns production settings for a cluster of size nodes.
func DefaultMonitorConfig(size int) MonitorConfig {
	return MonitorConfig{
		Interval:     5 * time.Second,
		ProbeTimeout: 2 * time.Second,
		MaxFailures:  3,
		ClusterSize:  size,
	}
}

// SlaveMonitor probes the master's slaves independently of the election
// engine and reaps the ones that stop answering.
type SlaveMonitor struct {
	mu       sync.Mutex
	config   MonitorConfig
	tracked  map[int]int // slave id -> consecutive failures
	reaped   []int
	logger   logging.Logger
	metrics  *metrics.Registry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}
