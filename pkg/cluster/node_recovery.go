package cluster

import (
	"github.com/dd0wney/cluso-pubsub/pkg/logging"
)

// Recover abandons the current group and falls back to a group of one.
func (n *Node) Recover() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return
	}
	n.recoveryLocked("requested")
}

// RecoverGeneration is Recover for a failure observed while generation was
// current. It returns false, without touching the node, when a later
// election has already replaced that generation.
func (n *Node) RecoverGeneration(generation int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return false
	}
	if generation != n.generation {
		n.logger.Debug("ignoring recovery for stale generation",
			logging.Generation(generation),
			logging.Int64("current", n.generation))
		return false
	}
	n.recoveryLocked("requested")
	return true
}

func (n *Node) recoveryLocked(reason string) {
	n.round++
	round := n.round
	n.mutatedLocked("recovery", round)
	n.setStateLocked(StateInactive)
	n.waitForUpdatesLocked()
	if n.destroyed || n.round != round {
		return
	}
	n.mutatedLocked("recovery", round)

	n.group = n.newGroupID()
	n.generation = -1
	n.coordinator = n.id
	n.coordinatorProxy = ""
	clear(n.members)
	clear(n.invitesIssued)
	clear(n.invitesAccepted)

	n.cancelLocked(&n.mergeTask)
	n.cancelLocked(&n.mergeContinueTask)
	n.cancelLocked(&n.timeoutTask)
	n.scheduleCheckLocked(n.config.ElectionTimeout)

	n.publishLocked()
	n.recordRecovery(reason)
	n.logger.Warn("recovered to a group of one",
		logging.String("reason", reason),
		logging.Group(n.group))
}
