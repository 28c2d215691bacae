// Package pubsub fans local change events out to in-process watchers.
// Delivery never blocks the publisher: a watcher whose buffer is full
// misses the event and the miss is counted.
package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrShutdown is returned by Subscribe once the broker is shut down.
var ErrShutdown = errors.New("pubsub: broker shut down")

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 100

// Broker publishes values of type T to subscribers grouped by topic.
type Broker[T any] struct {
	subscribers map[string]map[*Subscription[T]]struct{}
	mu          sync.RWMutex
	buffer      int
	dropped     atomic.Uint64

	shutdown   chan struct{}
	shutdownMu sync.Mutex
	isShutdown bool
}

// Subscription receives the values published on one topic.
type Subscription[T any] struct {
	topic     string
	channel   chan T
	broker    *Broker[T]
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewBroker creates a broker whose subscriptions buffer up to buffer values.
// A buffer of zero or less selects DefaultBuffer.
func NewBroker[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker[T]{
		subscribers: make(map[string]map[*Subscription[T]]struct{}),
		buffer:      buffer,
		shutdown:    make(chan struct{}),
	}
}

// Subscribe registers a subscription on topic that ends when ctx is done.
func (b *Broker[T]) Subscribe(ctx context.Context, topic string) (*Subscription[T], error) {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return nil, ErrShutdown
	}
	b.shutdownMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription[T]{
		topic:   topic,
		channel: make(chan T, b.buffer),
		broker:  b,
		cancel:  cancel,
	}

	b.mu.Lock()
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[*Subscription[T]]struct{})
	}
	b.subscribers[topic][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-subCtx.Done():
			sub.Unsubscribe()
		case <-b.shutdown:
			// Shutdown closes the channel itself.
		}
	}()

	return sub, nil
}

// Publish delivers value to every subscriber of topic and returns how many
// received it.
func (b *Broker[T]) Publish(topic string, value T) int {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return 0
	}
	b.shutdownMu.Unlock()

	// Snapshot so that slow sends never hold the lock.
	b.mu.RLock()
	subs := make([]*Subscription[T], 0, len(b.subscribers[topic]))
	for sub := range b.subscribers[topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if sub.send(value) {
			delivered++
		} else {
			b.dropped.Add(1)
		}
	}
	return delivered
}

// SubscriberCount returns the number of live subscriptions on topic.
func (b *Broker[T]) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (b *Broker[T]) Dropped() uint64 {
	return b.dropped.Load()
}

// Shutdown closes every subscription and refuses new ones.
func (b *Broker[T]) Shutdown() {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return
	}
	b.isShutdown = true
	b.shutdownMu.Unlock()

	close(b.shutdown)

	b.mu.Lock()
	for topic, subs := range b.subscribers {
		for sub := range subs {
			sub.close()
		}
		delete(b.subscribers, topic)
	}
	b.mu.Unlock()
}

// Channel returns the subscription's receive channel. It is closed when the
// subscription ends.
func (s *Subscription[T]) Channel() <-chan T {
	return s.channel
}

// Topic returns the topic the subscription listens on.
func (s *Subscription[T]) Topic() string {
	return s.topic
}

// Unsubscribe ends the subscription.
func (s *Subscription[T]) Unsubscribe() {
	s.cancel()

	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()

	if subs := s.broker.subscribers[s.topic]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.broker.subscribers, s.topic)
		}
	}
	s.close()
}

// send is non-blocking. It runs under the broker's read lock so that it
// cannot race with close, which needs the write lock or a shutdown.
func (s *Subscription[T]) send(value T) (ok bool) {
	s.broker.mu.RLock()
	defer s.broker.mu.RUnlock()

	if _, live := s.broker.subscribers[s.topic][s]; !live {
		return false
	}
	select {
	case s.channel <- value:
		return true
	default:
		return false
	}
}

func (s *Subscription[T]) close() {
	s.closeOnce.Do(func() {
		close(s.channel)
	})
}
