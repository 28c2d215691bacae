package replica

import (
	"context"
	"fmt"
	"sync"

	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
	"github.com/dd0wney/cluso-pubsub/pkg/logging"
	"github.com/dd0wney/cluso-pubsub/pkg/metrics"
	"github.com/dd0wney/cluso-pubsub/pkg/pubsub"
)

// Op names a change to the topic database.
type Op string

const (
	OpCreateTopic  Op = "create_topic"
	OpDestroyTopic Op = "destroy_topic"
	OpSubscribe    Op = "subscribe"
	OpUnsubscribe  Op = "unsubscribe"
)

// Subscriber is an endpoint that receives a topic's messages.
type Subscriber struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint,omitempty"`
}

// Topic is a named channel and its subscribers.
type Topic struct {
	Name        string                `json:"name"`
	Subscribers map[string]Subscriber `json:"subscribers"`
}

func (t *Topic) clone() Topic {
	out := Topic{Name: t.Name, Subscribers: make(map[string]Subscriber, len(t.Subscribers))}
	for id, s := range t.Subscribers {
		out.Subscribers[id] = s
	}
	return out
}

// Update is one replicated change.
type Update struct {
	Op         Op          `json:"op"`
	Topic      string      `json:"topic"`
	Subscriber *Subscriber `json:"subscriber,omitempty"`
}

// Validate checks that u is well formed.
func (u Update) Validate() error {
	if u.Topic == "" {
		return fmt.Errorf("%w: empty topic name", ErrInvalidUpdate)
	}
	switch u.Op {
	case OpCreateTopic, OpDestroyTopic:
		return nil
	case OpSubscribe, OpUnsubscribe:
		if u.Subscriber == nil || u.Subscriber.ID == "" {
			return fmt.Errorf("%w: %s needs a subscriber id", ErrInvalidUpdate, u.Op)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidUpdate, u.Op)
	}
}

// Event is published on the local change feed after an update is applied.
type Event struct {
	Update        Update            `json:"update"`
	LastLogUpdate cluster.LogUpdate `json:"llu"`
	Origin        string            `json:"origin"` // local, forward, master or sync
}

// Gate is the admission side of the coordination node.
type Gate interface {
	StartUpdate() (cluster.Handle, int64, error)
	StartCachedRead() (cluster.Handle, int64, error)
	UpdateMaster() bool
	FinishUpdate()
	StartObserverUpdate(generation int64) error
	CheckObserverInit(from int, generation int64) error
	// RecoverGeneration starts recovery unless generation has already been
	// superseded; it reports whether recovery ran.
	RecoverGeneration(generation int64) bool
}

// Remote reaches the replica of another node.
type Remote interface {
	// Forward hands a slave's write to the master.
	Forward(ctx context.Context, to cluster.Handle, u Update) error
	// Apply pushes one applied update to a slave.
	Apply(ctx context.Context, to cluster.Handle, generation int64, llu cluster.LogUpdate, u Update) error
	// Init pushes the master's full state to a slave during activation.
	// from is the master's node id.
	Init(ctx context.Context, to cluster.Handle, from int, generation int64, llu cluster.LogUpdate, snapshot []byte) error
	// Snapshot fetches the full state of another replica.
	Snapshot(ctx context.Context, from cluster.Handle) ([]byte, error)
}

// Reaper is told about slaves the master could not reach.
type Reaper interface {
	MarkFailed(id int)
}

// Config describes a Store.
type Config struct {
	NodeID  int
	Address cluster.Handle // Transport address other replicas use to reach this one
}

// Store is the replicated topic database of one node.
type Store struct {
	mu         sync.RWMutex
	topics     map[string]*Topic
	llu        cluster.LogUpdate
	generation int64
	master     bool
	observers  map[int]cluster.Handle

	// applyMu orders the master's applies so slaves see them in llu order.
	applyMu sync.Mutex

	id      int
	self    cluster.Handle
	gate    Gate
	reaper  Reaper
	remote  Remote
	feed    *pubsub.Broker[Event]
	logger  logging.Logger
	metrics *metrics.Registry
}
