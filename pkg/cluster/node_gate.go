package cluster

import (
	"fmt"
)

// StartUpdate admits an update from the service layer. It blocks until the
// node is settled and returns the coordinator's proxy (empty when this node
// is master) and the current generation. Every successful call must be
// paired with FinishUpdate.
func (n *Node) StartUpdate() (Handle, int64, error) {
	return n.admit()
}

// StartCachedRead admits a read of locally replicated data. It has the same
// contract as StartUpdate.
func (n *Node) StartCachedRead() (Handle, int64, error) {
	return n.admit()
}

func (n *Node) admit() (Handle, int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for !n.destroyed && n.state != StateNormal {
		n.cond.Wait()
	}
	if n.destroyed {
		return "", 0, ErrShuttingDown
	}
	n.incrementLocked()
	return n.coordinatorProxy, n.generation, nil
}

// UpdateMaster admits a write on the master's own path without blocking.
// It returns false when this node is not a settled master.
func (n *Node) UpdateMaster() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed || n.coordinator != n.id || n.state != StateNormal {
		return false
	}
	n.incrementLocked()
	return true
}

// FinishUpdate ends an update admitted by StartUpdate, StartCachedRead,
// UpdateMaster or StartObserverUpdate.
func (n *Node) FinishUpdate() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.updateCounter == 0 {
		n.logger.Error("FinishUpdate without a matching start")
		return
	}
	n.updateCounter--
	if n.updateCounter == 0 {
		n.cond.Broadcast()
	}
	if n.metrics != nil {
		n.metrics.UpdatesInFlight.Set(float64(n.updateCounter))
	}
}

// StartObserverUpdate admits an update pushed by the master to this slave
// for generation. Pair a successful call with FinishUpdate.
func (n *Node) StartObserverUpdate(generation int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return ErrShuttingDown
	}
	if n.state != StateNormal {
		return fmt.Errorf("%w: observer update while %s", ErrProtocolViolation, n.state)
	}
	if n.coordinator == n.id {
		return fmt.Errorf("%w: observer update on master", ErrProtocolViolation)
	}
	if generation != n.generation {
		return fmt.Errorf("%w: observer update for generation %d, current %d",
			ErrProtocolViolation, generation, n.generation)
	}
	n.incrementLocked()
	return nil
}

// CheckObserverInit validates the initial state push from master, which
// only arrives while this slave waits for Ready from that same master. A
// new activation always starts a generation above the one this node last
// joined.
func (n *Node) CheckObserverInit(from int, generation int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.destroyed {
		return ErrShuttingDown
	}
	if n.state != StateReorganization || n.coordinator == n.id {
		return fmt.Errorf("%w: observer init for generation %d while %s",
			ErrProtocolViolation, generation, n.state)
	}
	if from != n.coordinator {
		return fmt.Errorf("%w: observer init from %d, coordinator is %d",
			ErrProtocolViolation, from, n.coordinator)
	}
	if generation <= n.generation {
		return fmt.Errorf("%w: observer init for generation %d, last joined %d",
			ErrProtocolViolation, generation, n.generation)
	}
	return nil
}

func (n *Node) incrementLocked() {
	n.updateCounter++
	if n.metrics != nil {
		n.metrics.UpdatesInFlight.Set(float64(n.updateCounter))
	}
}
