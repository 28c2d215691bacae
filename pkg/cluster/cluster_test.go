package cluster

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-pubsub/pkg/timer"
)

// localNetwork connects nodes in one process and can cut them off.
type localNetwork struct {
	mu       sync.Mutex
	nodes    map[int]*Node
	replicas map[int]*fakeReplica
	down     map[int]bool
}

func (ln *localNetwork) reachable(from, to int) (*Node, error) {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	if ln.down[from] || ln.down[to] {
		return nil, fmt.Errorf("%w: %d -> %d", ErrPeerUnreachable, from, to)
	}
	return ln.nodes[to], nil
}

func (ln *localNetwork) isolate(id int) {
	ln.mu.Lock()
	ln.down[id] = true
	ln.mu.Unlock()
}

func (ln *localNetwork) replicaFor(h Handle) *fakeReplica {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	for _, r := range ln.replicas {
		if r.SyncHandle() == h {
			return r
		}
	}
	return nil
}

// localPeer is the view node from has of node to.
type localPeer struct {
	net      *localNetwork
	from, to int
}

func (p localPeer) AreYouCoordinator(context.Context) (bool, error) {
	n, err := p.net.reachable(p.from, p.to)
	if err != nil {
		return false, err
	}
	return n.AreYouCoordinator(), nil
}

func (p localPeer) AreYouThere(_ context.Context, group string, id int) (bool, error) {
	n, err := p.net.reachable(p.from, p.to)
	if err != nil {
		return false, err
	}
	return n.AreYouThere(group, id), nil
}

func (p localPeer) Accept(_ context.Context, from int, group string, forwarded []int, observer Handle, llu LogUpdate, max int) error {
	n, err := p.net.reachable(p.from, p.to)
	if err != nil {
		return err
	}
	return n.Accept(from, group, forwarded, observer, llu, max)
}

func (p localPeer) Ready(_ context.Context, from int, group string, coordinator Handle, max int, generation int64) error {
	n, err := p.net.reachable(p.from, p.to)
	if err != nil {
		return err
	}
	// Stands in for the master's initial state push to its observers.
	p.net.mu.Lock()
	r := p.net.replicas[p.to]
	p.net.mu.Unlock()
	r.setLLU(LogUpdate{Generation: generation})
	return n.Ready(from, group, coordinator, max, generation)
}

func (p localPeer) Sync(context.Context) (Handle, error) {
	n, err := p.net.reachable(p.from, p.to)
	if err != nil {
		return "", err
	}
	return n.Sync(), nil
}

func (p localPeer) Query(context.Context) (QueryInfo, error) {
	n, err := p.net.reachable(p.from, p.to)
	if err != nil {
		return QueryInfo{}, err
	}
	return n.Query(), nil
}

func (p localPeer) OneWay() OneWayPeer { return p }

func (p localPeer) Invitation(_ context.Context, from int, group string) error {
	n, err := p.net.reachable(p.from, p.to)
	if err != nil {
		return err
	}
	go n.Invitation(from, group)
	return nil
}

func fastConfig(id int) Config {
	return Config{
		NodeID:          id,
		MasterTimeout:   40 * time.Millisecond,
		ElectionTimeout: 40 * time.Millisecond,
		MergeTimeout:    30 * time.Millisecond,
		RPCTimeout:      100 * time.Millisecond,
		TimeUnit:        10 * time.Millisecond,
	}
}

func newLocalCluster(t *testing.T, ids ...int) *localNetwork {
	t.Helper()

	ln := &localNetwork{
		nodes:    make(map[int]*Node),
		replicas: make(map[int]*fakeReplica),
		down:     make(map[int]bool),
	}
	svc := timer.NewService()

	for _, id := range ids {
		dir := make(map[int]Peer, len(ids))
		for _, other := range ids {
			if other == id {
				dir[other] = nil
			} else {
				dir[other] = localPeer{net: ln, from: id, to: other}
			}
		}
		peers, err := NewPeerDirectory(id, dir)
		require.NoError(t, err)

		r := newFakeReplica(id)
		r.lookup = ln.replicaFor
		n, err := NewNode(fastConfig(id), Dependencies{Peers: peers, Replica: r, Timer: svc})
		require.NoError(t, err)

		ln.nodes[id] = n
		ln.replicas[id] = r
	}

	t.Cleanup(func() {
		for _, n := range ln.nodes {
			n.Destroy()
		}
		svc.Stop()
	})

	for _, id := range ids {
		ln.nodes[id].Start()
	}
	return ln
}

// settledUnder reports whether every listed node is Normal under coordinator.
func (ln *localNetwork) settledUnder(coordinator int, ids ...int) bool {
	for _, id := range ids {
		info := ln.nodes[id].Query()
		if info.State != StateNormal || info.Coordinator != coordinator {
			return false
		}
	}
	return true
}

func TestThreeNodesConvergeOnHighestID(t *testing.T) {
	ln := newLocalCluster(t, 1, 2, 3)

	require.Eventually(t, func() bool {
		return ln.settledUnder(3, 1, 2, 3)
	}, 10*time.Second, 10*time.Millisecond, "cluster did not converge on node 3")

	master := ln.nodes[3].Query()
	assert.Equal(t, []int{1, 2}, memberIDs(master))
	assert.GreaterOrEqual(t, master.Generation, int64(0))
	assert.Equal(t, 3, master.Max)

	coordinators := 0
	for _, n := range ln.nodes {
		if info := n.Query(); info.Coordinator == info.ID {
			coordinators++
		}
		assert.Equal(t, master.Generation, n.Query().Generation, "node %d generation", n.ID())
	}
	assert.Equal(t, 1, coordinators, "exactly one coordinator expected")
}

func TestFailoverToNextHighestID(t *testing.T) {
	ln := newLocalCluster(t, 1, 2, 3)

	require.Eventually(t, func() bool {
		return ln.settledUnder(3, 1, 2, 3)
	}, 10*time.Second, 10*time.Millisecond, "cluster did not converge on node 3")
	before := ln.nodes[2].Query().Generation

	ln.isolate(3)

	require.Eventually(t, func() bool {
		return ln.settledUnder(2, 1, 2)
	}, 10*time.Second, 10*time.Millisecond, "survivors did not converge on node 2")

	after := ln.nodes[2].Query()
	assert.Greater(t, after.Generation, before, "new master must open a newer generation")
	assert.Equal(t, []int{1}, memberIDs(after))
}

func memberIDs(info QueryInfo) []int {
	ids := make([]int, 0, len(info.Members))
	for _, m := range info.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestUpdatesDrainBeforeMerge(t *testing.T) {
	ln := newLocalCluster(t, 1, 2, 3)
	require.Eventually(t, func() bool {
		return ln.settledUnder(3, 1, 2, 3)
	}, 10*time.Second, 10*time.Millisecond)

	slave := ln.nodes[1]
	proxy, gen, err := slave.StartUpdate()
	require.NoError(t, err)
	assert.Equal(t, Handle("proxy-3"), proxy)
	assert.Equal(t, ln.nodes[3].Query().Generation, gen)

	recovered := make(chan struct{})
	go func() {
		slave.Recover()
		close(recovered)
	}()

	select {
	case <-recovered:
		t.Fatal("recovery must wait for the in-flight update")
	case <-time.After(50 * time.Millisecond):
	}

	slave.FinishUpdate()
	select {
	case <-recovered:
	case <-time.After(time.Second):
		t.Fatal("recovery did not resume after the update finished")
	}
}
