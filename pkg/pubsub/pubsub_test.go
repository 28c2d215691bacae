package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type change struct {
	Topic string
	Seq   int
}

func TestBasicPublish(t *testing.T) {
	b := NewBroker[change](0)
	defer b.Shutdown()

	sub, err := b.Subscribe(context.Background(), "changes")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if n := b.Publish("changes", change{Topic: "orders", Seq: 1}); n != 1 {
		t.Errorf("Expected 1 delivery, got %d", n)
	}

	select {
	case got := <-sub.Channel():
		if got.Topic != "orders" || got.Seq != 1 {
			t.Errorf("Unexpected value %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for value")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	b := NewBroker[int](0)
	defer b.Shutdown()

	const n = 5
	subs := make([]*Subscription[int], n)
	for i := range subs {
		sub, err := b.Subscribe(context.Background(), "broadcast")
		if err != nil {
			t.Fatalf("Failed to subscribe %d: %v", i, err)
		}
		subs[i] = sub
	}

	if got := b.Publish("broadcast", 42); got != n {
		t.Errorf("Expected %d deliveries, got %d", n, got)
	}
	for i, sub := range subs {
		select {
		case v := <-sub.Channel():
			if v != 42 {
				t.Errorf("Subscriber %d got %d", i, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("Subscriber %d timed out", i)
		}
	}
}

func TestTopicIsolation(t *testing.T) {
	b := NewBroker[string](0)
	defer b.Shutdown()

	a, _ := b.Subscribe(context.Background(), "a")
	other, _ := b.Subscribe(context.Background(), "b")

	b.Publish("a", "only-a")

	select {
	case v := <-other.Channel():
		t.Errorf("Topic b received %q", v)
	case <-time.After(20 * time.Millisecond):
	}
	if v := <-a.Channel(); v != "only-a" {
		t.Errorf("Topic a received %q", v)
	}
	if a.Topic() != "a" {
		t.Errorf("Expected topic a, got %q", a.Topic())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker[int](0)
	defer b.Shutdown()

	sub, _ := b.Subscribe(context.Background(), "t")
	sub.Unsubscribe()
	sub.Unsubscribe()

	if _, ok := <-sub.Channel(); ok {
		t.Error("Expected closed channel after unsubscribe")
	}
	if c := b.SubscriberCount("t"); c != 0 {
		t.Errorf("Expected 0 subscribers, got %d", c)
	}
	if n := b.Publish("t", 1); n != 0 {
		t.Errorf("Expected no delivery, got %d", n)
	}
}

func TestContextCancellation(t *testing.T) {
	b := NewBroker[int](0)
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := b.Subscribe(ctx, "t")
	cancel()

	select {
	case _, ok := <-sub.Channel():
		if ok {
			t.Error("Expected channel to close, got a value")
		}
	case <-time.After(time.Second):
		t.Fatal("Subscription not closed after context cancellation")
	}
}

func TestFullBufferDrops(t *testing.T) {
	b := NewBroker[int](2)
	defer b.Shutdown()

	sub, _ := b.Subscribe(context.Background(), "t")
	for i := range 5 {
		b.Publish("t", i)
	}

	if got := b.Dropped(); got != 3 {
		t.Errorf("Expected 3 dropped, got %d", got)
	}
	if v := <-sub.Channel(); v != 0 {
		t.Errorf("Expected oldest value kept, got %d", v)
	}
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBroker[int](1)
	defer b.Shutdown()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		sub, _ := b.Subscribe(context.Background(), "t")
		go func() {
			defer wg.Done()
			for i := range 100 {
				b.Publish("t", i)
			}
		}()
		go func() {
			defer wg.Done()
			sub.Unsubscribe()
		}()
	}
	wg.Wait()
}

func TestShutdown(t *testing.T) {
	b := NewBroker[int](0)
	sub, _ := b.Subscribe(context.Background(), "t")

	done := make(chan struct{})
	go func() {
		for range sub.Channel() {
		}
		close(done)
	}()

	b.Shutdown()
	b.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Subscription channel did not close on shutdown")
	}
	if _, err := b.Subscribe(context.Background(), "t"); !errors.Is(err, ErrShutdown) {
		t.Errorf("Expected ErrShutdown, got %v", err)
	}
	if n := b.Publish("t", 1); n != 0 {
		t.Errorf("Expected no delivery after shutdown, got %d", n)
	}
}
