package health

import (
	"context"
	"slices"
	"time"

	"github.com/dd0wney/cluso-pubsub/pkg/logging"
	"github.com/dd0wney/cluso-pubsub/pkg/metrics"
	"github.com/dd0wney/cluso-pubsub/pkg/parallel"
)

// MonitorStatus summarizes a SlaveMonitor.
type MonitorStatus struct {
	Tracked       int `json:"tracked"`
	Healthy       int `json:"healthy"`
	PendingReaped int `json:"pending_reaped"`
}

// NewSlaveMonitor creates a stopped monitor.
func NewSlaveMonitor(cfg MonitorConfig, logger logging.Logger, reg *metrics.Registry) *SlaveMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = cfg.Interval
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 1
	}
	if logger == nil {
		logger = &logging.NopLogger{}
	}
	return &SlaveMonitor{
		config:  cfg,
		tracked: make(map[int]int),
		logger:  logger.With(logging.Component("slave-monitor")),
		metrics: reg,
		stopCh:  make(chan struct{}),
	}
}

// Start probes the slaves listed by source every Interval until Stop.
func (m *SlaveMonitor) Start(source MemberSource, prober Prober) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), m.config.ProbeTimeout)
				m.ProbeOnce(ctx, source, prober)
				cancel()
			}
		}
	}()
}

// Stop ends the probe loop and waits for it.
func (m *SlaveMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// ProbeOnce runs a single probe round.
func (m *SlaveMonitor) ProbeOnce(ctx context.Context, source MemberSource, prober Prober) {
	ids := source.SlaveIDs()

	m.mu.Lock()
	for id := range m.tracked {
		if !slices.Contains(ids, id) {
			delete(m.tracked, id)
		}
	}
	probe := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := m.tracked[id]; !ok && !slices.Contains(m.reaped, id) {
			m.tracked[id] = 0
		}
		if _, ok := m.tracked[id]; ok {
			probe = append(probe, id)
		}
	}
	m.mu.Unlock()

	errs := parallel.Map(len(probe), probe, func(id int) error {
		return prober.ProbeSlave(ctx, id)
	})
	for i, id := range probe {
		err := errs[i]

		m.mu.Lock()
		failures, ok := m.tracked[id]
		if !ok {
			m.mu.Unlock()
			continue
		}
		if err == nil {
			m.tracked[id] = 0
			m.mu.Unlock()
			continue
		}
		failures++
		m.tracked[id] = failures
		m.logger.Warn("slave probe failed",
			logging.Peer(id),
			logging.Count(failures),
			logging.Error(err))
		if failures >= m.config.MaxFailures {
			m.reapLocked(id)
		}
		m.mu.Unlock()
	}
}

// MarkFailed reaps slave id at once. The replica calls it when a push to
// the slave fails.
func (m *SlaveMonitor) MarkFailed(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapLocked(id)
}

func (m *SlaveMonitor) reapLocked(id int) {
	delete(m.tracked, id)
	if slices.Contains(m.reaped, id) {
		return
	}
	m.reaped = append(m.reaped, id)
	m.logger.Warn("slave reaped", logging.Peer(id))
	if m.metrics != nil {
		m.metrics.SlavesReapedTotal.Inc()
	}
}

// ReapedSlaves returns the slaves reaped since the last call and forgets them.
func (m *SlaveMonitor) ReapedSlaves() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.reaped
	m.reaped = nil
	return out
}

// Check reports whether enough slaves are healthy for the master to keep
// a majority. With nothing tracked there is nothing to judge.
func (m *SlaveMonitor) Check() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tracked) == 0 {
		return true
	}
	majority := (m.config.ClusterSize + 1) / 2
	return m.healthyLocked()+1 >= majority
}

// Status returns counts for health reporting.
func (m *SlaveMonitor) Status() MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MonitorStatus{
		Tracked:       len(m.tracked),
		Healthy:       m.healthyLocked(),
		PendingReaped: len(m.reaped),
	}
}

func (m *SlaveMonitor) healthyLocked() int {
	n := 0
	for _, failures := range m.tracked {
		if failures == 0 {
			n++
		}
	}
	return n
}
