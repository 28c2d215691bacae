package cluster

import (
	"context"
	"time"

	"github.com/dd0wney/cluso-pubsub/pkg/timer"
)

// Replica is the replicated data store the node activates. The node never
// reads replicated data itself; it only decides who is master and who has
// the freshest copy.
type Replica interface {
	LastLogUpdate() LogUpdate
	// InitMaster makes this replica master over members starting at llu.
	InitMaster(ctx context.Context, members []GroupMember, llu LogUpdate) error
	// Sync replaces local content with the content behind from.
	Sync(ctx context.Context, from Handle) error
	Observer() Handle
	SyncHandle() Handle
	// Proxy is the handle slaves use to reach this replica while it is master.
	Proxy() Handle
}

// HealthChecker watches the master's slaves independently of the engine.
type HealthChecker interface {
	// Check is false when too few slaves are currently healthy.
	Check() bool
	// ReapedSlaves returns, and forgets, the slaves found unreachable.
	ReapedSlaves() []int
}

// Scheduler is the timer service shared by the process.
type Scheduler interface {
	Schedule(fn func(), delay time.Duration) *timer.Task
	ScheduleRepeated(fn func(), interval time.Duration) *timer.Task
	Cancel(t *timer.Task) timer.CancelResult
}

type healthyAlways struct{}

func (healthyAlways) Check() bool         { return true }
func (healthyAlways) ReapedSlaves() []int { return nil }
