package cluster

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-pubsub/pkg/logging"
	"github.com/dd0wney/cluso-pubsub/pkg/timer"
)

// NewNode creates a node in StateInactive. Call Start to begin discovery.
func NewNode(cfg Config, deps Dependencies) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Peers == nil || deps.Replica == nil || deps.Timer == nil {
		return nil, ErrMissingDependency
	}
	if deps.Peers.Self() != cfg.NodeID {
		return nil, fmt.Errorf("%w: node %d", ErrSelfNotInDirectory, cfg.NodeID)
	}

	health := deps.Health
	if health == nil {
		health = healthyAlways{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = &logging.NopLogger{}
	}

	n := &Node{
		id:              cfg.NodeID,
		config:          cfg.normalized(),
		peers:           deps.Peers,
		replica:         deps.Replica,
		health:          health,
		timer:           deps.Timer,
		logger:          logger.With(logging.Component("node"), logging.NodeID(cfg.NodeID)),
		metrics:         deps.Metrics,
		state:           StateInactive,
		coordinator:     cfg.NodeID,
		members:         make(map[int]GroupMember),
		invitesIssued:   make(map[int]struct{}),
		invitesAccepted: make(map[int]struct{}),
		generation:      -1,
	}
	n.cond = sync.NewCond(&n.mu)
	n.group = n.newGroupID()
	return n, nil
}

// Start creates the initial self-coordinated group and schedules the first
// check. Higher ids check sooner so that they tend to win the first merge.
func (n *Node) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return
	}
	n.coordinator = n.id
	n.group = n.newGroupID()

	stagger := max(0, n.peers.Size()-n.id) * 2
	delay := time.Duration(stagger) * n.config.TimeUnit
	n.checkTask = n.timer.Schedule(n.check, delay)

	n.publishLocked()
	n.logger.Info("node started",
		logging.Group(n.group),
		logging.Count(n.peers.Size()),
		logging.Duration("first_check", delay))
}

// Destroy waits for in-flight updates, then stops the node for good.
// Blocked gate callers are released with ErrShuttingDown.
func (n *Node) Destroy() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return
	}
	for n.updateCounter > 0 {
		n.cond.Wait()
	}
	n.destroyed = true
	n.cond.Broadcast()

	n.cancelLocked(&n.checkTask)
	n.cancelLocked(&n.mergeTask)
	n.cancelLocked(&n.mergeContinueTask)
	n.cancelLocked(&n.timeoutTask)

	n.logger.Info("node destroyed")
}

// ID returns this node's identifier.
func (n *Node) ID() int { return n.id }

// Nodes returns the ids of the whole peer directory in increasing order.
func (n *Node) Nodes() []int { return n.peers.IDs() }

// State returns the current coordination state.
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Query returns a snapshot of the coordination record.
func (n *Node) Query() QueryInfo {
	n.mu.Lock()
	defer n.mu.Unlock()

	info := QueryInfo{
		ID:          n.id,
		Coordinator: n.coordinator,
		Group:       n.group,
		State:       n.state,
		Generation:  n.generation,
		Max:         n.max,
		Members:     make([]MemberInfo, 0, len(n.members)),
		Replica:     n.replica.Observer(),
	}
	for _, id := range slices.Sorted(maps.Keys(n.members)) {
		m := n.members[id]
		info.Members = append(info.Members, MemberInfo{ID: m.ID, LastLogUpdate: m.LastLogUpdate})
	}
	return info
}

// AreYouCoordinator reports whether this node is a settled coordinator.
func (n *Node) AreYouCoordinator() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state != StateElection && n.state != StateReorganization && n.coordinator == n.id
}

// AreYouThere reports whether this node coordinates group and counts id
// among its members.
func (n *Node) AreYouThere(group string, id int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.group != group || n.coordinator != n.id {
		return false
	}
	_, ok := n.members[id]
	return ok
}

// Sync returns the handle peers use to fetch this node's replicated data.
func (n *Node) Sync() Handle {
	return n.replica.SyncHandle()
}

// SlaveIDs returns the members of the group while this node is its
// settled master, and nil otherwise.
func (n *Node) SlaveIDs() []int {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed || n.state != StateNormal || n.coordinator != n.id {
		return nil
	}
	return slices.Sorted(maps.Keys(n.members))
}

// ProbeSlave asks slave id for its record and checks that it still follows
// this node's group.
func (n *Node) ProbeSlave(ctx context.Context, id int) error {
	p := n.peers.Peer(id)
	if p == nil || id == n.id {
		return fmt.Errorf("%w: node %d", ErrUnknownPeer, id)
	}

	n.mu.Lock()
	group := n.group
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, n.config.RPCTimeout)
	defer cancel()
	info, err := p.Query(ctx)
	if err != nil {
		n.peerFailed("query", id, err)
		return fmt.Errorf("%w: node %d: %w", ErrPeerUnreachable, id, err)
	}
	if info.Coordinator != n.id || info.Group != group {
		return fmt.Errorf("%w: node %d follows %d", ErrLeftGroup, id, info.Coordinator)
	}
	return nil
}

func (n *Node) newGroupID() string {
	return fmt.Sprintf("%d:%s", n.id, uuid.NewString())
}

// setStateLocked moves to s. Entering StateNormal wakes gate callers.
func (n *Node) setStateLocked(s NodeState) {
	if n.state != s {
		n.logger.Debug("state transition",
			logging.String("from", n.state.String()),
			logging.State(s.String()),
			logging.Group(n.group))
	}
	n.state = s
	if s == StateNormal {
		n.cond.Broadcast()
	}
	n.publishLocked()
}

func (n *Node) publishLocked() {
	if n.metrics == nil {
		return
	}
	n.metrics.SetNodeState(n.state.String())
	if n.coordinator == n.id {
		n.metrics.SetNodeRole("coordinator")
	} else {
		n.metrics.SetNodeRole("slave")
	}
	n.metrics.UpdateGroupMetrics(n.generation, len(n.members)+1, n.max)
	n.metrics.UpdatesInFlight.Set(float64(n.updateCounter))
}

// waitForUpdatesLocked blocks until no update is in flight or the node is
// destroyed. The lock is released while waiting.
func (n *Node) waitForUpdatesLocked() {
	for n.updateCounter > 0 && !n.destroyed {
		n.cond.Wait()
	}
}

func (n *Node) mutatedLocked(step string, round uint64) {
	if n.onMutate != nil {
		n.onMutate(step, round)
	}
}

// scheduleCheckLocked schedules check unless one is already pending.
func (n *Node) scheduleCheckLocked(delay time.Duration) {
	if n.destroyed || n.checkTask != nil {
		return
	}
	n.checkTask = n.timer.Schedule(n.check, delay)
}

func (n *Node) cancelLocked(t **timer.Task) timer.CancelResult {
	if *t == nil {
		return timer.NotScheduled
	}
	res := n.timer.Cancel(*t)
	*t = nil
	return res
}

func (n *Node) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), n.config.RPCTimeout)
}

func (n *Node) peerFailed(method string, peer int, err error) {
	n.logger.Warn("peer call failed",
		logging.Method(method),
		logging.Peer(peer),
		logging.Error(err))
	if n.metrics != nil {
		n.metrics.RecordPeerFailure(method)
	}
}

func (n *Node) recordRecovery(reason string) {
	if n.metrics != nil {
		n.metrics.RecordRecovery(reason)
	}
}

func (n *Node) recordInvitation(result string) {
	if n.metrics != nil {
		n.metrics.RecordInvitation(result)
	}
}

func (n *Node) recordActivation(result string, d time.Duration) {
	if n.metrics != nil {
		n.metrics.RecordActivation(result, d)
	}
}
