package cluster

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dd0wney/cluso-pubsub/pkg/timer"
)

// fakeReplica records what the node asks of its replica.
type fakeReplica struct {
	mu      sync.Mutex
	id      int
	llu     LogUpdate
	initErr error
	syncErr error
	inits   [][]GroupMember
	synced  []Handle

	// lookup resolves a sync handle to another fake, when set.
	lookup func(Handle) *fakeReplica
}

func newFakeReplica(id int) *fakeReplica {
	return &fakeReplica{id: id, llu: EmptyLogUpdate}
}

func (r *fakeReplica) LastLogUpdate() LogUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.llu
}

func (r *fakeReplica) setLLU(llu LogUpdate) {
	r.mu.Lock()
	r.llu = llu
	r.mu.Unlock()
}

func (r *fakeReplica) InitMaster(_ context.Context, members []GroupMember, llu LogUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initErr != nil {
		return r.initErr
	}
	r.inits = append(r.inits, members)
	r.llu = llu
	return nil
}

func (r *fakeReplica) Sync(_ context.Context, from Handle) error {
	r.mu.Lock()
	if r.syncErr != nil {
		r.mu.Unlock()
		return r.syncErr
	}
	r.synced = append(r.synced, from)
	lookup := r.lookup
	r.mu.Unlock()

	if lookup != nil {
		if src := lookup(from); src != nil {
			r.setLLU(src.LastLogUpdate())
		}
	}
	return nil
}

func (r *fakeReplica) Observer() Handle   { return Handle(fmt.Sprintf("observer-%d", r.id)) }
func (r *fakeReplica) SyncHandle() Handle { return Handle(fmt.Sprintf("sync-%d", r.id)) }
func (r *fakeReplica) Proxy() Handle      { return Handle(fmt.Sprintf("proxy-%d", r.id)) }

func (r *fakeReplica) initCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inits)
}

type fakeHealth struct {
	mu      sync.Mutex
	healthy bool
	reaped  []int
}

func (h *fakeHealth) Check() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.healthy
}

func (h *fakeHealth) ReapedSlaves() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.reaped
	h.reaped = nil
	return out
}

// stubPeer answers with canned results and records every call.
type stubPeer struct {
	mu          sync.Mutex
	id          int
	coordinator bool
	there       bool
	err         error // returned by every call when set
	acceptErr   error
	readyErr    error
	info        QueryInfo
	onInvite    func() // called outside the lock before an invitation is recorded

	invitations []invitationCall
	accepts     []acceptCall
	readies     []readyCall
	syncs       int
}

type invitationCall struct {
	From  int
	Group string
}

type acceptCall struct {
	From      int
	Group     string
	Forwarded []int
	Observer  Handle
	LLU       LogUpdate
	Max       int
}

type readyCall struct {
	From        int
	Group       string
	Coordinator Handle
	Max         int
	Generation  int64
}

func (p *stubPeer) AreYouCoordinator(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.coordinator, p.err
}

func (p *stubPeer) AreYouThere(context.Context, string, int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.there, p.err
}

func (p *stubPeer) Accept(_ context.Context, from int, group string, forwarded []int, observer Handle, llu LogUpdate, max int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.accepts = append(p.accepts, acceptCall{from, group, forwarded, observer, llu, max})
	return p.acceptErr
}

func (p *stubPeer) Ready(_ context.Context, from int, group string, coordinator Handle, max int, generation int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.readies = append(p.readies, readyCall{from, group, coordinator, max, generation})
	return p.readyErr
}

func (p *stubPeer) Sync(context.Context) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncs++
	return Handle(fmt.Sprintf("sync-%d", p.id)), p.err
}

func (p *stubPeer) Query(context.Context) (QueryInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info, p.err
}

func (p *stubPeer) OneWay() OneWayPeer { return p }

func (p *stubPeer) Invitation(_ context.Context, from int, group string) error {
	p.mu.Lock()
	hook := p.onInvite
	p.mu.Unlock()
	if hook != nil {
		hook()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.invitations = append(p.invitations, invitationCall{from, group})
	return nil
}

func (p *stubPeer) set(fn func(p *stubPeer)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

// recordingScheduler keeps every task an hour away so that tests drive the
// engine steps by hand, and remembers the delays the node asked for.
type recordingScheduler struct {
	svc *timer.Service

	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingScheduler) Schedule(fn func(), delay time.Duration) *timer.Task {
	s.mu.Lock()
	s.delays = append(s.delays, delay)
	s.mu.Unlock()
	return s.svc.Schedule(fn, time.Hour)
}

func (s *recordingScheduler) ScheduleRepeated(fn func(), interval time.Duration) *timer.Task {
	return s.svc.ScheduleRepeated(fn, time.Hour)
}

func (s *recordingScheduler) Cancel(t *timer.Task) timer.CancelResult {
	return s.svc.Cancel(t)
}

func (s *recordingScheduler) lastDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.delays) == 0 {
		return -1
	}
	return s.delays[len(s.delays)-1]
}

// stubFixture is a node wired to stub peers and a recording scheduler.
type stubFixture struct {
	node    *Node
	peers   map[int]*stubPeer
	replica *fakeReplica
	health  *fakeHealth
	sched   *recordingScheduler
}

func testConfig(id int) Config {
	return Config{
		NodeID:          id,
		MasterTimeout:   time.Second,
		ElectionTimeout: 2 * time.Second,
		MergeTimeout:    3 * time.Second,
		RPCTimeout:      time.Second,
		TimeUnit:        time.Second,
	}
}

func newStubFixture(t *testing.T, self int, ids ...int) *stubFixture {
	t.Helper()

	f := &stubFixture{
		peers:   make(map[int]*stubPeer),
		replica: newFakeReplica(self),
		health:  &fakeHealth{healthy: true},
		sched:   &recordingScheduler{svc: timer.NewService()},
	}
	dir := map[int]Peer{self: nil}
	for _, id := range ids {
		if id == self {
			continue
		}
		p := &stubPeer{id: id}
		f.peers[id] = p
		dir[id] = p
	}
	peers, err := NewPeerDirectory(self, dir)
	if err != nil {
		t.Fatalf("NewPeerDirectory failed: %v", err)
	}

	f.node, err = NewNode(testConfig(self), Dependencies{
		Peers:   peers,
		Replica: f.replica,
		Health:  f.health,
		Timer:   f.sched,
	})
	if err != nil {
		t.Fatalf("NewNode failed: %v", err)
	}
	f.node.Start()

	t.Cleanup(func() {
		f.node.Destroy()
		f.sched.svc.Stop()
	})
	return f
}

// continueMerge runs the pending mergeContinue step of the latest merge.
func (n *Node) continueMerge() {
	n.mu.Lock()
	round := n.mergeRound
	n.mu.Unlock()
	n.mergeContinue(round)
}

// becomeMaster runs a full merge round in which every stub peer accepts.
func (f *stubFixture) becomeMaster(t *testing.T) {
	t.Helper()

	n := f.node
	n.merge(n.peers.Others())
	n.mu.Lock()
	group := n.group
	n.mu.Unlock()
	for id := range f.peers {
		if err := n.Accept(id, group, nil, Handle(fmt.Sprintf("observer-%d", id)), EmptyLogUpdate, 0); err != nil {
			t.Fatalf("Accept(%d) failed: %v", id, err)
		}
	}
	n.continueMerge()
	if got := n.State(); got != StateNormal {
		t.Fatalf("Expected master to be %s, got %s", StateNormal, got)
	}
}

// becomeSlave joins the group of coordinator via invitation and ready.
func (f *stubFixture) becomeSlave(t *testing.T, coordinator int, generation int64) string {
	t.Helper()

	group := fmt.Sprintf("%d:test", coordinator)
	f.node.Invitation(coordinator, group)
	if err := f.node.Ready(coordinator, group, Handle(fmt.Sprintf("proxy-%d", coordinator)), 3, generation); err != nil {
		t.Fatalf("Ready failed: %v", err)
	}
	if got := f.node.State(); got != StateNormal {
		t.Fatalf("Expected slave to be %s, got %s", StateNormal, got)
	}
	return group
}
