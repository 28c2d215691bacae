package health

import (
	"fmt"
	"runtime"
	"time"

	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
)

// SimpleCheck returns a check that is always healthy.
func SimpleCheck(name string) Check {
	return Check{
		Name:        name,
		Status:      StatusHealthy,
		LastChecked: time.Now(),
	}
}

// AliveCheck is a liveness check that passes while the process runs.
func AliveCheck() CheckFunc {
	return func() Check { return SimpleCheck("alive") }
}

// CoordinationCheck reports the node's place in its replica group. Only a
// settled node is healthy; an election in progress is degraded.
func CoordinationCheck(query func() cluster.QueryInfo) CheckFunc {
	return func() Check {
		info := query()
		check := Check{
			Name: "coordination",
			Details: map[string]any{
				"state":       info.State.String(),
				"coordinator": info.Coordinator,
				"generation":  info.Generation,
				"group":       info.Group,
			},
		}

		switch info.State {
		case cluster.StateNormal:
			check.Status = StatusHealthy
			if info.Coordinator == info.ID {
				check.Message = fmt.Sprintf("master of %d slaves", len(info.Members))
			} else {
				check.Message = fmt.Sprintf("slave of node %d", info.Coordinator)
			}
		case cluster.StateElection, cluster.StateReorganization:
			check.Status = StatusDegraded
			check.Message = "election in progress"
		default:
			check.Status = StatusUnhealthy
			check.Message = "no coordinator"
		}
		return check
	}
}

// SlavesCheck reports what the slave monitor has seen.
func SlavesCheck(m *SlaveMonitor) CheckFunc {
	return func() Check {
		st := m.Status()
		check := Check{
			Name: "slaves",
			Details: map[string]any{
				"tracked": st.Tracked,
				"healthy": st.Healthy,
				"reaped":  st.PendingReaped,
			},
		}

		switch {
		case !m.Check():
			check.Status = StatusUnhealthy
			check.Message = "too few healthy slaves"
		case st.Healthy < st.Tracked || st.PendingReaped > 0:
			check.Status = StatusDegraded
			check.Message = "some slaves failing"
		case st.Tracked == 0:
			check.Status = StatusHealthy
			check.Message = "no slaves to watch"
		default:
			check.Status = StatusHealthy
			check.Message = "all slaves healthy"
		}
		return check
	}
}

// RuntimeMemory reads heap allocation and memory obtained from the OS.
func RuntimeMemory() (alloc, sys uint64) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Alloc, ms.Sys
}

// MemoryCheck reports heap usage relative to memory held from the OS.
func MemoryCheck(getUsage func() (alloc, sys uint64)) CheckFunc {
	return func() Check {
		alloc, sys := getUsage()
		check := Check{
			Name: "memory",
			Details: map[string]any{
				"alloc_bytes": alloc,
				"sys_bytes":   sys,
			},
		}

		if sys > 0 && float64(alloc)/float64(sys) > 0.9 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}
		return check
	}
}
