package cluster

import (
	"slices"
	"time"

	"github.com/dd0wney/cluso-pubsub/pkg/logging"
	"github.com/dd0wney/cluso-pubsub/pkg/parallel"
)

// check looks for rival coordinators and schedules a merge when it finds
// any. It runs on the timer service.
func (n *Node) check() {
	n.mu.Lock()
	n.checkTask = nil
	if n.destroyed {
		n.mu.Unlock()
		return
	}
	if n.state == StateElection || n.state == StateReorganization || n.coordinator != n.id {
		n.scheduleCheckLocked(n.config.ElectionTimeout)
		n.mu.Unlock()
		return
	}

	if reaped := n.health.ReapedSlaves(); len(reaped) > 0 {
		removed := 0
		for _, id := range reaped {
			if _, ok := n.members[id]; ok {
				delete(n.members, id)
				removed++
			}
		}
		if removed > 0 {
			n.logger.Warn("reaped slaves removed from group",
				logging.Peers(reaped), logging.Count(len(n.members)))
			n.publishLocked()
			if len(n.members)+1 < n.peers.Majority() {
				n.recoveryLocked("quorum_lost")
				n.mu.Unlock()
				return
			}
		}
	}
	if n.state == StateNormal && !n.health.Check() {
		n.logger.Warn("slave health check failed")
		n.recoveryLocked("health_check")
		n.mu.Unlock()
		return
	}

	state, group, round := n.state, n.group, n.round
	n.mu.Unlock()

	others := n.peers.Others()
	answers := parallel.Map(len(others), others, func(id int) bool {
		ctx, cancel := n.callContext()
		defer cancel()
		yes, err := n.peers.Peer(id).AreYouCoordinator(ctx)
		if err != nil {
			n.peerFailed("are_you_coordinator", id, err)
			return false
		}
		return yes
	})

	var rivals []int
	maxRival := -1
	for i, yes := range answers {
		if yes {
			rivals = append(rivals, others[i])
			maxRival = max(maxRival, others[i])
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed || n.round != round || n.state != state || n.group != group || n.coordinator != n.id {
		return
	}
	if len(rivals) == 0 {
		n.scheduleCheckLocked(n.config.ElectionTimeout)
		return
	}

	var delay time.Duration
	if n.id < maxRival {
		delay = n.config.MergeTimeout * time.Duration(1+maxRival-n.id)
	}
	candidates := rivals
	for id := range n.members {
		if !slices.Contains(candidates, id) {
			candidates = append(candidates, id)
		}
	}
	slices.Sort(candidates)

	n.logger.Info("rival coordinators found",
		logging.Peers(rivals),
		logging.Duration("merge_delay", delay))

	n.cancelLocked(&n.mergeTask)
	n.mergeTask = n.timer.Schedule(func() { n.merge(candidates) }, delay)
}
