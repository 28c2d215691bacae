package replica

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
	"github.com/dd0wney/cluso-pubsub/pkg/logging"
	"github.com/dd0wney/cluso-pubsub/pkg/metrics"
	"github.com/dd0wney/cluso-pubsub/pkg/parallel"
	"github.com/dd0wney/cluso-pubsub/pkg/pubsub"
)

const feedTopic = "changes"

// NewStore creates an empty replica. It must be bound to a gate before it
// accepts reads or writes.
func NewStore(cfg Config, remote Remote, logger logging.Logger, reg *metrics.Registry) *Store {
	if logger == nil {
		logger = &logging.NopLogger{}
	}
	return &Store{
		topics:     make(map[string]*Topic),
		llu:        cluster.EmptyLogUpdate,
		generation: -1,
		observers:  make(map[int]cluster.Handle),
		id:         cfg.NodeID,
		self:       cfg.Address,
		remote:     remote,
		feed:       pubsub.NewBroker[Event](0),
		logger:     logger.With(logging.Component("replica"), logging.NodeID(cfg.NodeID)),
		metrics:    reg,
	}
}

// Bind attaches the store to its node. reaper may be nil.
func (s *Store) Bind(gate Gate, reaper Reaper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = gate
	s.reaper = reaper
}

// Close ends every Watch subscription.
func (s *Store) Close() {
	s.feed.Shutdown()
}

func (s *Store) LastLogUpdate() cluster.LogUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.llu
}

func (s *Store) Observer() cluster.Handle   { return s.self }
func (s *Store) SyncHandle() cluster.Handle { return s.self }
func (s *Store) Proxy() cluster.Handle      { return s.self }

// IsMaster reports whether the store was last activated as master.
func (s *Store) IsMaster() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.master
}

// Watch subscribes to changes applied to this replica.
func (s *Store) Watch(ctx context.Context) (*pubsub.Subscription[Event], error) {
	return s.feed.Subscribe(ctx, feedTopic)
}

func (s *Store) CreateTopic(ctx context.Context, name string) error {
	return s.submit(ctx, Update{Op: OpCreateTopic, Topic: name})
}

func (s *Store) DestroyTopic(ctx context.Context, name string) error {
	return s.submit(ctx, Update{Op: OpDestroyTopic, Topic: name})
}

func (s *Store) Subscribe(ctx context.Context, topic string, sub Subscriber) error {
	return s.submit(ctx, Update{Op: OpSubscribe, Topic: topic, Subscriber: &sub})
}

func (s *Store) Unsubscribe(ctx context.Context, topic, subscriberID string) error {
	return s.submit(ctx, Update{Op: OpUnsubscribe, Topic: topic, Subscriber: &Subscriber{ID: subscriberID}})
}

// Topics returns every topic, sorted by name.
func (s *Store) Topics() ([]Topic, error) {
	gate, err := s.boundGate()
	if err != nil {
		return nil, err
	}
	if _, _, err := gate.StartCachedRead(); err != nil {
		return nil, err
	}
	defer gate.FinishUpdate()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Topic, 0, len(s.topics))
	for _, name := range slices.Sorted(maps.Keys(s.topics)) {
		out = append(out, s.topics[name].clone())
	}
	return out, nil
}

// Topic returns one topic.
func (s *Store) Topic(name string) (Topic, error) {
	gate, err := s.boundGate()
	if err != nil {
		return Topic{}, err
	}
	if _, _, err := gate.StartCachedRead(); err != nil {
		return Topic{}, err
	}
	defer gate.FinishUpdate()

	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[name]
	if !ok {
		return Topic{}, fmt.Errorf("%w: %s", ErrTopicNotFound, name)
	}
	return t.clone(), nil
}

// submit routes a write through the gate: applied here when this node is
// master, forwarded to the master otherwise.
func (s *Store) submit(ctx context.Context, u Update) error {
	if err := u.Validate(); err != nil {
		return err
	}
	gate, err := s.boundGate()
	if err != nil {
		return err
	}

	if gate.UpdateMaster() {
		defer gate.FinishUpdate()
		return s.applyMaster(ctx, u, "local")
	}

	proxy, generation, err := gate.StartUpdate()
	if err != nil {
		return err
	}
	if proxy == "" {
		defer gate.FinishUpdate()
		return s.applyMaster(ctx, u, "local")
	}

	err = s.remote.Forward(ctx, proxy, u)
	// Recovery waits for open updates, so the admission is released first.
	gate.FinishUpdate()
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && masterLost(err) {
		s.logger.Warn("master unreachable, requesting recovery",
			logging.String("master", string(proxy)),
			logging.Generation(generation),
			logging.Error(err))
		gate.RecoverGeneration(generation)
	}
	return fmt.Errorf("forward %s to master: %w", u.Op, err)
}

// masterLost reports whether a forward failed because the master could not
// apply it at all, as opposed to rejecting the update itself.
func masterLost(err error) bool {
	switch {
	case errors.Is(err, ErrTopicExists),
		errors.Is(err, ErrTopicNotFound),
		errors.Is(err, ErrSubscriberNotFound),
		errors.Is(err, ErrInvalidUpdate):
		return false
	}
	return true
}

// HandleForward applies a write forwarded by a slave.
func (s *Store) HandleForward(ctx context.Context, u Update) error {
	if err := u.Validate(); err != nil {
		return err
	}
	gate, err := s.boundGate()
	if err != nil {
		return err
	}
	if !gate.UpdateMaster() {
		return ErrNotMaster
	}
	defer gate.FinishUpdate()
	return s.applyMaster(ctx, u, "forward")
}

// applyMaster applies u, advances the watermark and pushes the update to
// every observer. Observers that fail are handed to the reaper.
func (s *Store) applyMaster(ctx context.Context, u Update, origin string) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if !s.master {
		s.mu.Unlock()
		return ErrNotMaster
	}
	if err := s.applyLocked(u); err != nil {
		s.mu.Unlock()
		return err
	}
	s.llu.Iteration++
	llu, generation := s.llu, s.generation
	observers := maps.Clone(s.observers)
	s.mu.Unlock()

	s.published(u, llu, origin)

	ids := slices.Sorted(maps.Keys(observers))
	errs := parallel.Map(len(ids), ids, func(id int) error {
		return s.remote.Apply(ctx, observers[id], generation, llu, u)
	})
	for i, err := range errs {
		if err != nil {
			s.observerFailed(ids[i], err)
		}
	}
	return nil
}

func (s *Store) observerFailed(id int, err error) {
	s.logger.Warn("observer update failed", logging.Peer(id), logging.Error(err))

	s.mu.Lock()
	delete(s.observers, id)
	reaper := s.reaper
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ReplicaObserverFailures.Inc()
	}
	if reaper != nil {
		reaper.MarkFailed(id)
	}
}

// applyLocked changes the topic map. The caller holds s.mu.
func (s *Store) applyLocked(u Update) error {
	switch u.Op {
	case OpCreateTopic:
		if _, ok := s.topics[u.Topic]; ok {
			return fmt.Errorf("%w: %s", ErrTopicExists, u.Topic)
		}
		s.topics[u.Topic] = &Topic{Name: u.Topic, Subscribers: make(map[string]Subscriber)}
	case OpDestroyTopic:
		if _, ok := s.topics[u.Topic]; !ok {
			return fmt.Errorf("%w: %s", ErrTopicNotFound, u.Topic)
		}
		delete(s.topics, u.Topic)
	case OpSubscribe:
		t, ok := s.topics[u.Topic]
		if !ok {
			return fmt.Errorf("%w: %s", ErrTopicNotFound, u.Topic)
		}
		t.Subscribers[u.Subscriber.ID] = *u.Subscriber
	case OpUnsubscribe:
		t, ok := s.topics[u.Topic]
		if !ok {
			return fmt.Errorf("%w: %s", ErrTopicNotFound, u.Topic)
		}
		if _, ok := t.Subscribers[u.Subscriber.ID]; !ok {
			return fmt.Errorf("%w: %s on %s", ErrSubscriberNotFound, u.Subscriber.ID, u.Topic)
		}
		delete(t.Subscribers, u.Subscriber.ID)
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidUpdate, u.Op)
	}
	return nil
}

func (s *Store) published(u Update, llu cluster.LogUpdate, origin string) {
	s.feed.Publish(feedTopic, Event{Update: u, LastLogUpdate: llu, Origin: origin})
	if s.metrics != nil {
		s.metrics.RecordReplicaUpdate(string(u.Op), origin)
		s.metrics.ReplicaFeedDropped.Set(float64(s.feed.Dropped()))
		s.mu.RLock()
		s.metrics.ReplicaTopicsTotal.Set(float64(len(s.topics)))
		s.mu.RUnlock()
	}
}

func (s *Store) boundGate() (Gate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.gate == nil {
		return nil, ErrNotBound
	}
	return s.gate, nil
}
