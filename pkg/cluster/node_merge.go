package cluster

import (
	"context"
	"maps"
	"slices"

	"github.com/dd0wney/cluso-pubsub/pkg/logging"
	"github.com/dd0wney/cluso-pubsub/pkg/timer"
)

// merge starts a new group coordinated by this node and invites candidates
// together with the current members.
func (n *Node) merge(candidates []int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.mergeTask = nil
	if n.destroyed || n.state == StateElection || n.state == StateReorganization {
		return
	}

	n.round++
	round := n.round
	n.mergeRound = round
	n.mutatedLocked("merge", round)
	n.setStateLocked(StateElection)
	n.waitForUpdatesLocked()
	if n.destroyed || n.round != round {
		return
	}

	invited := make(map[int]struct{}, len(candidates)+len(n.members))
	for _, id := range candidates {
		if id != n.id && n.peers.Has(id) {
			invited[id] = struct{}{}
		}
	}
	for id := range n.members {
		invited[id] = struct{}{}
	}

	n.group = n.newGroupID()
	n.coordinator = n.id
	n.coordinatorProxy = ""
	clear(n.members)
	clear(n.invitesIssued)
	clear(n.invitesAccepted)
	n.cancelLocked(&n.timeoutTask)
	n.mutatedLocked("merge", round)
	n.publishLocked()

	group := n.group
	targets := slices.Sorted(maps.Keys(invited))
	n.logger.Info("merging groups", logging.Group(group), logging.Peers(targets))

	n.mu.Unlock()
	sent := make([]int, 0, len(targets))
	for _, id := range targets {
		ctx, cancel := n.callContext()
		err := n.peers.OneWay(id).Invitation(ctx, n.id, group)
		cancel()
		if err != nil {
			n.peerFailed("invitation", id, err)
			continue
		}
		sent = append(sent, id)
	}
	n.mu.Lock()

	if n.destroyed || n.round != round || n.state != StateElection {
		return
	}
	for _, id := range sent {
		n.invitesIssued[id] = struct{}{}
	}
	n.mutatedLocked("merge", round)

	delay := n.config.MergeTimeout
	if n.allInvitesAcceptedLocked() {
		delay = 0
	}
	n.cancelLocked(&n.mergeContinueTask)
	n.mergeContinueTask = n.timer.Schedule(func() { n.mergeContinue(round) }, delay)
}

// allInvitesAcceptedLocked reports whether every issued invite has been
// accepted.
func (n *Node) allInvitesAcceptedLocked() bool {
	if len(n.invitesIssued) != len(n.invitesAccepted) {
		return false
	}
	for id := range n.invitesIssued {
		if _, ok := n.invitesAccepted[id]; !ok {
			return false
		}
	}
	return true
}

// Accept records from as a member of group. It only has an effect while
// this node coordinates group and is still collecting replies.
func (n *Node) Accept(from int, group string, forwarded []int, observer Handle, llu LogUpdate, peerMax int) error {
	if from == n.id || !n.peers.Has(from) {
		return ErrUnknownPeer
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return ErrShuttingDown
	}
	if n.state != StateElection || n.coordinator != n.id || n.group != group || n.round != n.mergeRound {
		n.logger.Debug("ignoring stale accept", logging.Peer(from), logging.Group(group))
		return nil
	}

	round := n.mergeRound
	n.mutatedLocked("accept", round)
	n.members[from] = GroupMember{ID: from, LastLogUpdate: llu, Observer: observer}
	n.invitesAccepted[from] = struct{}{}
	n.max = max(n.max, peerMax)
	for _, id := range forwarded {
		if id != n.id && n.peers.Has(id) {
			n.invitesIssued[id] = struct{}{}
		}
	}
	n.logger.Debug("member accepted",
		logging.Peer(from),
		logging.Group(group),
		logging.String("llu", llu.String()))
	n.publishLocked()

	if len(n.members)+1 == n.peers.Size() || n.allInvitesAcceptedLocked() {
		if n.mergeContinueTask != nil && n.timer.Cancel(n.mergeContinueTask) == timer.Cancelled {
			n.mergeContinueTask = n.timer.Schedule(func() { n.mergeContinue(round) }, 0)
		}
	}
	return nil
}

// mergeContinue settles the group collected by the merge of round: it
// checks quorum, moves the freshest data onto this node and activates the
// slaves. A task that fired after its round was superseded does nothing.
func (n *Node) mergeContinue(round uint64) {
	n.mu.Lock()
	if n.round != round {
		n.mu.Unlock()
		return
	}
	n.mergeContinueTask = nil
	if n.destroyed || n.state != StateElection || n.coordinator != n.id {
		n.mu.Unlock()
		return
	}

	n.mutatedLocked("merge_continue", round)
	n.setStateLocked(StateReorganization)
	op := logging.StartTimer(n.logger, "group activated", logging.Group(n.group))

	inGroup := len(n.members)
	if n.max != n.peers.Size() && inGroup+1 < n.peers.Majority() {
		n.logger.Warn("not enough members for quorum",
			logging.Count(inGroup+1),
			logging.Int("majority", n.peers.Majority()),
			logging.Int("max", n.max))
		n.recordActivation("no_quorum", op.Elapsed())
		n.recoveryLocked("quorum_lost")
		n.mu.Unlock()
		return
	}

	winner := n.id
	best := n.replica.LastLogUpdate()
	for _, id := range slices.Sorted(maps.Keys(n.members)) {
		if m := n.members[id]; best.Less(m.LastLogUpdate) {
			winner, best = id, m.LastLogUpdate
		}
	}
	n.max = max(n.max, inGroup+1)

	members := make([]GroupMember, 0, inGroup)
	for _, id := range slices.Sorted(maps.Keys(n.members)) {
		members = append(members, n.members[id])
	}
	group, peerMax := n.group, n.max
	llu := LogUpdate{Generation: best.Generation + 1, Iteration: 0}
	n.mu.Unlock()

	reason, err := n.activate(winner, group, members, llu, peerMax)

	n.mu.Lock()
	defer n.mu.Unlock()

	if err != nil {
		op.EndError(err, logging.String("reason", reason))
		n.recordActivation("failed", op.Elapsed())
		if !n.destroyed && n.round == round {
			n.recoveryLocked(reason)
		}
		return
	}
	if n.destroyed || n.round != round || n.state != StateReorganization {
		n.recordActivation("superseded", op.Elapsed())
		return
	}

	n.mutatedLocked("merge_continue", round)
	n.generation = llu.Generation
	n.coordinatorProxy = ""
	n.setStateLocked(StateNormal)
	n.scheduleCheckLocked(n.config.ElectionTimeout)

	n.recordActivation("won", op.Elapsed())
	op.End(logging.Generation(n.generation), logging.Count(len(members)+1))
}

// activate runs the network half of mergeContinue without the lock held.
func (n *Node) activate(winner int, group string, members []GroupMember, llu LogUpdate, peerMax int) (string, error) {
	if winner != n.id {
		ctx, cancel := n.callContext()
		h, err := n.peers.Peer(winner).Sync(ctx)
		cancel()
		if err != nil {
			n.peerFailed("sync", winner, err)
			return "sync_failed", err
		}
		if err := n.replica.Sync(context.Background(), h); err != nil {
			return "sync_failed", err
		}
		n.logger.Info("synchronized from freshest member", logging.Peer(winner))
	}

	if err := n.replica.InitMaster(context.Background(), members, llu); err != nil {
		return "init_failed", err
	}

	proxy := n.replica.Proxy()
	for _, m := range members {
		ctx, cancel := n.callContext()
		err := n.peers.Peer(m.ID).Ready(ctx, n.id, group, proxy, peerMax, llu.Generation)
		cancel()
		if err != nil {
			n.peerFailed("ready", m.ID, err)
			return "ready_failed", err
		}
	}
	return "", nil
}

// Ready completes activation on a slave.
func (n *Node) Ready(from int, group string, coordinatorProxy Handle, peerMax int, generation int64) error {
	if from == n.id || !n.peers.Has(from) {
		return ErrUnknownPeer
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return ErrShuttingDown
	}
	if n.state != StateReorganization || n.group != group || n.coordinator != from {
		n.logger.Debug("ignoring stale ready", logging.Peer(from), logging.Group(group))
		return nil
	}

	n.mutatedLocked("ready", n.round)
	n.max = max(n.max, peerMax)
	n.generation = generation
	n.coordinatorProxy = coordinatorProxy
	n.setStateLocked(StateNormal)
	n.scheduleCheckLocked(n.config.ElectionTimeout)

	n.logger.Info("joined group",
		logging.Peer(from),
		logging.Group(group),
		logging.Generation(generation))
	return nil
}
