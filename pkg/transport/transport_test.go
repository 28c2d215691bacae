package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
	"github.com/dd0wney/cluso-pubsub/pkg/metrics"
	"github.com/dd0wney/cluso-pubsub/pkg/replica"
)

type acceptCall struct {
	from      int
	group     string
	forwarded []int
	observer  cluster.Handle
	llu       cluster.LogUpdate
	max       int
}

type fakeNode struct {
	mu          sync.Mutex
	coordinator bool
	accepts     []acceptCall
	acceptDelay time.Duration
	readyErr    error
	invitations chan invitationBody
}

func newFakeNode(coordinator bool) *fakeNode {
	return &fakeNode{coordinator: coordinator, invitations: make(chan invitationBody, 8)}
}

func (f *fakeNode) AreYouCoordinator() bool { return f.coordinator }

func (f *fakeNode) AreYouThere(group string, id int) bool {
	return group == "5:g" && id == 2
}

func (f *fakeNode) Invitation(from int, group string) {
	f.invitations <- invitationBody{From: from, Group: group}
}

func (f *fakeNode) Accept(from int, group string, forwarded []int, observer cluster.Handle, llu cluster.LogUpdate, max int) error {
	time.Sleep(f.acceptDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepts = append(f.accepts, acceptCall{from, group, forwarded, observer, llu, max})
	return nil
}

func (f *fakeNode) Ready(int, string, cluster.Handle, int, int64) error { return f.readyErr }

func (f *fakeNode) Sync() cluster.Handle { return "inproc://sync" }

func (f *fakeNode) Query() cluster.QueryInfo {
	return cluster.QueryInfo{
		ID:          5,
		Coordinator: 5,
		Group:       "5:g",
		State:       cluster.StateNormal,
		Generation:  7,
		Members:     []cluster.MemberInfo{{ID: 2, LastLogUpdate: cluster.LogUpdate{Generation: 7, Iteration: 3}}},
	}
}

func (f *fakeNode) acceptCalls() []acceptCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]acceptCall(nil), f.accepts...)
}

type fakeReplicaService struct {
	mu        sync.Mutex
	forwarded []replica.Update
	applied   []cluster.LogUpdate
	inits     [][]byte
	initFrom  []int
	notMaster bool
}

func (f *fakeReplicaService) HandleForward(_ context.Context, u replica.Update) error {
	if f.notMaster {
		return replica.ErrNotMaster
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwarded = append(f.forwarded, u)
	return nil
}

func (f *fakeReplicaService) HandleApply(_ int64, llu cluster.LogUpdate, _ replica.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, llu)
	return nil
}

func (f *fakeReplicaService) HandleInit(from int, _ int64, _ cluster.LogUpdate, snapshot []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initFrom = append(f.initFrom, from)
	f.inits = append(f.inits, snapshot)
	return nil
}

func (f *fakeReplicaService) Snapshot() ([]byte, error) {
	return []byte{0x00, 0xff, 0x10}, nil
}

type endpoint struct {
	rpc    string
	oneway string
}

func startServer(t *testing.T, register func(*Mux)) endpoint {
	t.Helper()

	ep := endpoint{
		rpc:    "inproc://" + t.Name() + "/rpc",
		oneway: "inproc://" + t.Name() + "/oneway",
	}
	mux := NewMux()
	register(mux)

	srv := NewServer(ServerConfig{
		RPCAddress:     ep.rpc,
		OneWayAddress:  ep.oneway,
		Workers:        4,
		PollInterval:   20 * time.Millisecond,
		RequestTimeout: time.Second,
	}, NewNNGSocketFactory(), mux, nil, metrics.NewRegistry())
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return ep
}

func newTestClient(t *testing.T, ep endpoint) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		RPCAddress:    ep.rpc,
		OneWayAddress: ep.oneway,
		Timeout:       time.Second,
	}, NewNNGSocketFactory())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientCoordinationCalls(t *testing.T) {
	node := newFakeNode(true)
	node.readyErr = cluster.ErrProtocolViolation
	ep := startServer(t, func(m *Mux) { RegisterNode(m, node) })
	c := newTestClient(t, ep)
	ctx := context.Background()

	coord, err := c.AreYouCoordinator(ctx)
	require.NoError(t, err)
	assert.True(t, coord)

	there, err := c.AreYouThere(ctx, "5:g", 2)
	require.NoError(t, err)
	assert.True(t, there)

	there, err = c.AreYouThere(ctx, "5:other", 2)
	require.NoError(t, err)
	assert.False(t, there)

	llu := cluster.LogUpdate{Generation: 4, Iteration: 9}
	require.NoError(t, c.Accept(ctx, 2, "5:g", []int{1, 3}, "inproc://obs-2", llu, 5))
	calls := node.acceptCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, acceptCall{2, "5:g", []int{1, 3}, "inproc://obs-2", llu, 5}, calls[0])

	err = c.Ready(ctx, 5, "5:g", "inproc://proxy", 5, 8)
	assert.ErrorIs(t, err, cluster.ErrProtocolViolation)

	h, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, cluster.Handle("inproc://sync"), h)

	info, err := c.Query(ctx)
	require.NoError(t, err)
	assert.Equal(t, node.Query(), info)
}

func TestInvitationIsOneWay(t *testing.T) {
	node := newFakeNode(false)
	ep := startServer(t, func(m *Mux) { RegisterNode(m, node) })
	c := newTestClient(t, ep)

	require.NoError(t, c.OneWay().Invitation(context.Background(), 4, "4:x"))

	select {
	case inv := <-node.invitations:
		assert.Equal(t, invitationBody{From: 4, Group: "4:x"}, inv)
	case <-time.After(2 * time.Second):
		t.Fatal("invitation never arrived")
	}
}

func TestInvitationWithoutOneWayAddress(t *testing.T) {
	c, err := NewClient(ClientConfig{RPCAddress: "inproc://" + t.Name()}, NewNNGSocketFactory())
	require.NoError(t, err)
	defer c.Close()

	err = c.Invitation(context.Background(), 1, "1:x")
	assert.ErrorIs(t, err, ErrNoOneWay)
}

func TestConcurrentCallsShareOneClient(t *testing.T) {
	node := newFakeNode(true)
	node.acceptDelay = 10 * time.Millisecond
	ep := startServer(t, func(m *Mux) { RegisterNode(m, node) })
	c := newTestClient(t, ep)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- c.Accept(context.Background(), i, "5:g", nil, "", cluster.EmptyLogUpdate, 0)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, node.acceptCalls(), 16)
}

func TestCallWithoutServerTimesOut(t *testing.T) {
	c, err := NewClient(ClientConfig{RPCAddress: "inproc://" + t.Name(), Timeout: 50 * time.Millisecond}, NewNNGSocketFactory())
	require.NoError(t, err)
	defer c.Close()

	start := time.Now()
	_, err = c.AreYouCoordinator(context.Background())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCallHonoursContextDeadline(t *testing.T) {
	c, err := NewClient(ClientConfig{RPCAddress: "inproc://" + t.Name(), Timeout: time.Minute}, NewNNGSocketFactory())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Sync(ctx)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	_, err = c.Sync(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClosedClient(t *testing.T) {
	c, err := NewClient(ClientConfig{RPCAddress: "inproc://" + t.Name()}, NewNNGSocketFactory())
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Query(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUnknownMethodOverTheWire(t *testing.T) {
	ep := startServer(t, func(*Mux) {})
	c := newTestClient(t, ep)

	err := c.call(context.Background(), "replica.bogus", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestPoolReplicaCalls(t *testing.T) {
	svc := &fakeReplicaService{}
	ep := startServer(t, func(m *Mux) { RegisterReplica(m, svc) })

	pool := NewPool(NewNNGSocketFactory(), time.Second)
	defer pool.Close()
	to := cluster.Handle(ep.rpc)
	ctx := context.Background()

	u := replica.Update{Op: replica.OpCreateTopic, Topic: "orders"}
	require.NoError(t, pool.Forward(ctx, to, u))

	llu := cluster.LogUpdate{Generation: 2, Iteration: 1}
	require.NoError(t, pool.Apply(ctx, to, 2, llu, u))
	require.NoError(t, pool.Init(ctx, to, 3, 2, llu, []byte("state")))

	snap, err := pool.Snapshot(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff, 0x10}, snap)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Equal(t, []replica.Update{u}, svc.forwarded)
	assert.Equal(t, []cluster.LogUpdate{llu}, svc.applied)
	assert.Equal(t, [][]byte{[]byte("state")}, svc.inits)
	assert.Equal(t, []int{3}, svc.initFrom)
}

func TestPoolMapsReplicaErrors(t *testing.T) {
	svc := &fakeReplicaService{notMaster: true}
	ep := startServer(t, func(m *Mux) { RegisterReplica(m, svc) })

	pool := NewPool(NewNNGSocketFactory(), time.Second)
	defer pool.Close()

	err := pool.Forward(context.Background(), cluster.Handle(ep.rpc), replica.Update{Op: replica.OpCreateTopic, Topic: "t"})
	assert.ErrorIs(t, err, replica.ErrNotMaster)
}

func TestPoolReusesRegisteredClient(t *testing.T) {
	ep := startServer(t, func(m *Mux) { RegisterReplica(m, &fakeReplicaService{}) })
	c := newTestClient(t, ep)

	pool := NewPool(NewNNGSocketFactory(), time.Second)
	pool.Register(c)

	got, err := pool.client(cluster.Handle(ep.rpc))
	require.NoError(t, err)
	assert.Same(t, c, got)

	_, err = pool.client("")
	assert.ErrorIs(t, err, ErrEmptyHandle)

	require.NoError(t, pool.Close())
	_, err = pool.client(cluster.Handle(ep.rpc))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestServerStopIsIdempotent(t *testing.T) {
	srv := NewServer(ServerConfig{
		RPCAddress:   "inproc://" + t.Name(),
		PollInterval: 10 * time.Millisecond,
	}, NewNNGSocketFactory(), NewMux(), nil, nil)

	require.NoError(t, srv.Start())
	require.NoError(t, srv.Start())
	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop())
}
