package cluster

import (
	"maps"
	"slices"

	"github.com/dd0wney/cluso-pubsub/pkg/logging"
	"github.com/dd0wney/cluso-pubsub/pkg/timer"
)

// Invitation asks this node to join group, coordinated by from. It is a
// one-way call: rejections are logged, never reported to the inviter.
func (n *Node) Invitation(from int, group string) {
	if from == n.id || !n.peers.Has(from) {
		n.logger.Warn("invitation from unknown peer", logging.Peer(from), logging.Group(group))
		n.recordInvitation("unknown_peer")
		return
	}

	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return
	}
	if n.state == StateElection || n.state == StateReorganization {
		n.logger.Debug("invitation rejected, election in progress",
			logging.Peer(from), logging.Group(group))
		n.recordInvitation("busy")
		n.mu.Unlock()
		return
	}
	if n.mergeTask != nil {
		if n.timer.Cancel(n.mergeTask) == timer.AlreadyFired {
			n.logger.Debug("invitation rejected, own merge already running",
				logging.Peer(from), logging.Group(group))
			n.recordInvitation("merging")
			n.mu.Unlock()
			return
		}
		n.mergeTask = nil
	}

	n.round++
	round := n.round
	n.mutatedLocked("invitation", round)
	n.setStateLocked(StateElection)
	n.waitForUpdatesLocked()
	if n.destroyed || n.round != round {
		n.mu.Unlock()
		return
	}

	var former []int
	if n.coordinator == n.id {
		for _, id := range slices.Sorted(maps.Keys(n.members)) {
			if id != from {
				former = append(former, id)
			}
		}
	}
	n.mu.Unlock()

	forwarded := make([]int, 0, len(former))
	for _, id := range former {
		ctx, cancel := n.callContext()
		err := n.peers.OneWay(id).Invitation(ctx, from, group)
		cancel()
		if err != nil {
			n.peerFailed("invitation", id, err)
			continue
		}
		forwarded = append(forwarded, id)
	}

	n.mu.Lock()
	if n.destroyed || n.round != round {
		n.mu.Unlock()
		return
	}

	n.mutatedLocked("invitation", round)
	n.coordinator = from
	n.group = group
	n.coordinatorProxy = ""
	clear(n.members)
	clear(n.invitesIssued)
	clear(n.invitesAccepted)
	n.cancelLocked(&n.mergeContinueTask)
	n.setStateLocked(StateReorganization)
	if n.timeoutTask == nil {
		n.timeoutTask = n.timer.ScheduleRepeated(n.timeout, n.config.MasterTimeout)
	}

	observer := n.replica.Observer()
	llu := n.replica.LastLogUpdate()
	peerMax := n.max
	n.logger.Info("accepting invitation",
		logging.Peer(from),
		logging.Group(group),
		logging.Peers(forwarded))
	n.mu.Unlock()

	ctx, cancel := n.callContext()
	err := n.peers.Peer(from).Accept(ctx, n.id, group, forwarded, observer, llu, peerMax)
	cancel()

	if err == nil {
		n.recordInvitation("accepted")
		return
	}

	n.peerFailed("accept", from, err)
	n.recordInvitation("accept_failed")
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.destroyed && n.round == round {
		n.recoveryLocked("accept_failed")
	}
}

// timeout is the slave's watchdog on its coordinator.
func (n *Node) timeout() {
	n.mu.Lock()
	if n.destroyed || n.coordinator == n.id {
		n.mu.Unlock()
		return
	}
	coordinator, group, round := n.coordinator, n.group, n.round
	n.mu.Unlock()

	ctx, cancel := n.callContext()
	there, err := n.peers.Peer(coordinator).AreYouThere(ctx, group, n.id)
	cancel()
	if err == nil && there {
		return
	}

	if err != nil {
		n.peerFailed("are_you_there", coordinator, err)
	} else {
		n.logger.Warn("coordinator no longer lists this node",
			logging.Peer(coordinator), logging.Group(group))
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.destroyed && n.round == round && n.coordinator == coordinator {
		n.recoveryLocked("coordinator_lost")
	}
}
