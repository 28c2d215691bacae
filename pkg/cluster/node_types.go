package cluster

import (
	"sync"

	"github.com/dd0wney/cluso-pubsub/pkg/logging"
	"github.com/dd0wney/cluso-pubsub/pkg/metrics"
	"github.com/dd0wney/cluso-pubsub/pkg/timer"
)

// Dependencies are the collaborators a Node drives. Peers, Replica and
// Timer are required; Health, Logger and Metrics may be nil.
type Dependencies struct {
	Peers   *PeerDirectory
	Replica Replica
	Health  HealthChecker
	Timer   Scheduler
	Logger  logging.Logger
	Metrics *metrics.Registry
}

// Node elects a coordinator among a fixed set of peers, merges rival groups
// and activates replication on the winner.
type Node struct {
	mu   sync.Mutex
	cond *sync.Cond

	id      int
	config  Config
	peers   *PeerDirectory
	replica Replica
	health  HealthChecker
	timer   Scheduler
	logger  logging.Logger
	metrics *metrics.Registry

	state            NodeState
	coordinator      int
	group            string
	members          map[int]GroupMember
	invitesIssued    map[int]struct{}
	invitesAccepted  map[int]struct{}
	max              int
	generation       int64
	updateCounter    int
	destroyed        bool
	coordinatorProxy Handle // set while this node is a slave

	// round changes whenever a merge, invitation or recovery takes over
	// the record. A step that released the lock compares it on return to
	// learn whether it has been superseded.
	round uint64
	// mergeRound is the round of the latest merge; its mergeContinue and
	// the accepts it collects belong to that round only.
	mergeRound uint64

	// onMutate, when set, is called under the lock whenever a step changes
	// the record, with the round that step belongs to.
	onMutate func(step string, round uint64)

	checkTask         *timer.Task
	mergeTask         *timer.Task
	mergeContinueTask *timer.Task
	timeoutTask       *timer.Task
}
