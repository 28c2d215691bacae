package cluster

import (
	"context"
	"fmt"
	"slices"
)

// Peer is the reply-expecting handle to another node's coordination RPCs.
type Peer interface {
	AreYouCoordinator(ctx context.Context) (bool, error)
	AreYouThere(ctx context.Context, group string, id int) (bool, error)
	Accept(ctx context.Context, from int, group string, forwarded []int, observer Handle, llu LogUpdate, max int) error
	Ready(ctx context.Context, from int, group string, coordinator Handle, max int, generation int64) error
	Sync(ctx context.Context) (Handle, error)
	Query(ctx context.Context) (QueryInfo, error)
	// OneWay returns the fire-and-forget handle to the same node.
	OneWay() OneWayPeer
}

// OneWayPeer carries calls whose delivery is best effort and which never
// wait for the remote handler to finish.
type OneWayPeer interface {
	Invitation(ctx context.Context, from int, group string) error
}

// PeerDirectory is the fixed set of nodes a process was configured with.
// It is built once and never changes, so it needs no locking.
type PeerDirectory struct {
	self   int
	ids    []int
	peers  map[int]Peer
	oneway map[int]OneWayPeer
}

// NewPeerDirectory builds the directory. peers must contain an entry for
// self; that entry may be nil because a node never calls itself.
func NewPeerDirectory(self int, peers map[int]Peer) (*PeerDirectory, error) {
	if _, ok := peers[self]; !ok {
		return nil, fmt.Errorf("%w: node %d", ErrSelfNotInDirectory, self)
	}

	d := &PeerDirectory{
		self:   self,
		ids:    make([]int, 0, len(peers)),
		peers:  make(map[int]Peer, len(peers)),
		oneway: make(map[int]OneWayPeer, len(peers)),
	}
	for id, p := range peers {
		d.ids = append(d.ids, id)
		if id == self && p == nil {
			continue
		}
		if p == nil {
			return nil, fmt.Errorf("%w: node %d", ErrNilPeer, id)
		}
		d.peers[id] = p
		d.oneway[id] = p.OneWay()
	}
	slices.Sort(d.ids)
	return d, nil
}

func (d *PeerDirectory) Self() int { return d.self }

// Size is the number of nodes in the cluster, including this one.
func (d *PeerDirectory) Size() int { return len(d.ids) }

// Majority is ceil(Size/2).
func (d *PeerDirectory) Majority() int { return (len(d.ids) + 1) / 2 }

func (d *PeerDirectory) Has(id int) bool {
	_, ok := slices.BinarySearch(d.ids, id)
	return ok
}

// IDs returns every node id in increasing order.
func (d *PeerDirectory) IDs() []int {
	return slices.Clone(d.ids)
}

// Others returns every id except this node's, in increasing order.
func (d *PeerDirectory) Others() []int {
	out := make([]int, 0, len(d.ids))
	for _, id := range d.ids {
		if id != d.self {
			out = append(out, id)
		}
	}
	return out
}

func (d *PeerDirectory) Peer(id int) Peer { return d.peers[id] }

func (d *PeerDirectory) OneWay(id int) OneWayPeer { return d.oneway[id] }
