package replica

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
	"github.com/dd0wney/cluso-pubsub/pkg/logging"
)

// InitMaster activates the store as master of members at llu and pushes
// the full state to every member's observer.
func (s *Store) InitMaster(ctx context.Context, members []cluster.GroupMember, llu cluster.LogUpdate) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	s.master = true
	s.llu = llu
	s.generation = llu.Generation
	clear(s.observers)
	for _, m := range members {
		s.observers[m.ID] = m.Observer
	}
	snapshot, err := s.snapshotLocked()
	topics := len(s.topics)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, m := range members {
		if err := s.remote.Init(ctx, m.Observer, s.id, llu.Generation, llu, snapshot); err != nil {
			return fmt.Errorf("init observer %d: %w", m.ID, err)
		}
	}

	if s.metrics != nil {
		s.metrics.ReplicaTopicsTotal.Set(float64(topics))
	}
	s.logger.Info("replica activated as master",
		logging.Generation(llu.Generation),
		logging.Count(len(members)),
		logging.Int("topics", topics))
	return nil
}

// Sync replaces the local content with the content of the replica at from.
func (s *Store) Sync(ctx context.Context, from cluster.Handle) error {
	b, err := s.remote.Snapshot(ctx, from)
	if err == nil {
		err = s.Restore(b)
	}
	if s.metrics != nil {
		s.metrics.RecordReplicaSync(err)
	}
	if err != nil {
		return fmt.Errorf("sync from %s: %w", from, err)
	}
	s.logger.Info("replica synchronized",
		logging.String("from", string(from)),
		logging.String("llu", s.LastLogUpdate().String()))
	return nil
}

// HandleInit installs the state pushed by master from on a slave during
// activation.
func (s *Store) HandleInit(from int, generation int64, llu cluster.LogUpdate, snapshot []byte) error {
	gate, err := s.boundGate()
	if err != nil {
		return err
	}
	if err := gate.CheckObserverInit(from, generation); err != nil {
		return err
	}

	topics, _, err := decodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.topics = topics
	s.llu = llu
	s.generation = generation
	s.master = false
	clear(s.observers)
	count := len(s.topics)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ReplicaTopicsTotal.Set(float64(count))
	}
	s.logger.Debug("replica initialized by master", logging.Generation(generation), logging.Int("topics", count))
	return nil
}

// HandleApply applies an update pushed by the master. Updates at or below
// the current watermark have already been applied and are skipped.
func (s *Store) HandleApply(generation int64, llu cluster.LogUpdate, u Update) error {
	if err := u.Validate(); err != nil {
		return err
	}
	gate, err := s.boundGate()
	if err != nil {
		return err
	}
	if err := gate.StartObserverUpdate(generation); err != nil {
		return err
	}
	defer gate.FinishUpdate()

	s.mu.Lock()
	if !s.llu.Less(llu) {
		s.mu.Unlock()
		return nil
	}
	if err := s.applyLocked(u); err != nil {
		// The master applied it, so divergence here means a missed update.
		s.logger.Error("slave diverged from master",
			logging.String("op", string(u.Op)),
			logging.Topic(u.Topic),
			logging.Error(err))
	}
	s.llu = llu
	s.mu.Unlock()

	s.published(u, llu, "master")
	return nil
}
