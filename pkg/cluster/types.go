package cluster

import (
	"fmt"
)

// NodeState is the coordination state of a node.
type NodeState int

const (
	// StateInactive: no coordinator agreed yet; the node is its own group.
	StateInactive NodeState = iota
	// StateElection: inviting or being invited; membership is changing.
	StateElection
	// StateReorganization: membership settled, replication being activated.
	StateReorganization
	// StateNormal: stable master or slave.
	StateNormal
)

func (s NodeState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateElection:
		return "election"
	case StateReorganization:
		return "reorganization"
	case StateNormal:
		return "normal"
	default:
		return "unknown"
	}
}

func (s NodeState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *NodeState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "inactive":
		*s = StateInactive
	case "election":
		*s = StateElection
	case "reorganization":
		*s = StateReorganization
	case "normal":
		*s = StateNormal
	default:
		return fmt.Errorf("unknown node state %q", b)
	}
	return nil
}

// LogUpdate is a replication watermark, ordered by generation then iteration.
type LogUpdate struct {
	Generation int64 `json:"generation"`
	Iteration  int64 `json:"iteration"`
}

// EmptyLogUpdate is the watermark of a replica that has never been activated.
var EmptyLogUpdate = LogUpdate{Generation: -1, Iteration: 0}

// Compare returns -1, 0 or 1.
func (l LogUpdate) Compare(o LogUpdate) int {
	switch {
	case l.Generation < o.Generation:
		return -1
	case l.Generation > o.Generation:
		return 1
	case l.Iteration < o.Iteration:
		return -1
	case l.Iteration > o.Iteration:
		return 1
	default:
		return 0
	}
}

func (l LogUpdate) Less(o LogUpdate) bool {
	return l.Compare(o) < 0
}

func (l LogUpdate) String() string {
	return fmt.Sprintf("%d/%d", l.Generation, l.Iteration)
}

// Handle addresses a remote object (observer, sync source, coordinator
// proxy). The transport decides what the string means; empty is "none".
type Handle string

// GroupMember is the coordinator's record of one slave.
type GroupMember struct {
	ID            int       `json:"id"`
	LastLogUpdate LogUpdate `json:"llu"`
	Observer      Handle    `json:"observer"`
}

// MemberInfo is the public view of a GroupMember.
type MemberInfo struct {
	ID            int       `json:"id"`
	LastLogUpdate LogUpdate `json:"llu"`
}

// QueryInfo is a snapshot of a node's coordination record.
type QueryInfo struct {
	ID          int          `json:"id"`
	Coordinator int          `json:"coordinator"`
	Group       string       `json:"group"`
	State       NodeState    `json:"state"`
	Generation  int64        `json:"generation"`
	Max         int          `json:"max"`
	Members     []MemberInfo `json:"members"`
	Replica     Handle       `json:"replica,omitempty"`
}
