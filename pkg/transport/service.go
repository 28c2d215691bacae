package transport

import (
	"context"
	"encoding/json"

	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
	"github.com/dd0wney/cluso-pubsub/pkg/replica"
)

// NodeService is the server side of the coordination protocol;
// *cluster.Node implements it.
type NodeService interface {
	AreYouCoordinator() bool
	AreYouThere(group string, id int) bool
	Invitation(from int, group string)
	Accept(from int, group string, forwarded []int, observer cluster.Handle, llu cluster.LogUpdate, max int) error
	Ready(from int, group string, coordinator cluster.Handle, max int, generation int64) error
	Sync() cluster.Handle
	Query() cluster.QueryInfo
}

// ReplicaService is the server side of replica traffic; *replica.Store
// implements it.
type ReplicaService interface {
	HandleForward(ctx context.Context, u replica.Update) error
	HandleApply(generation int64, llu cluster.LogUpdate, u replica.Update) error
	HandleInit(from int, generation int64, llu cluster.LogUpdate, snapshot []byte) error
	Snapshot() ([]byte, error)
}

// RegisterNode routes the coordination methods to n.
func RegisterNode(mux *Mux, n NodeService) {
	mux.Handle(MethodAreYouCoordinator, func(context.Context, json.RawMessage) (any, error) {
		return boolReply{Value: n.AreYouCoordinator()}, nil
	})
	HandleFunc(mux, MethodAreYouThere, func(_ context.Context, req *areYouThereBody) (any, error) {
		return boolReply{Value: n.AreYouThere(req.Group, req.ID)}, nil
	})
	HandleFunc(mux, MethodInvitation, func(_ context.Context, req *invitationBody) (any, error) {
		n.Invitation(req.From, req.Group)
		return nil, nil
	})
	HandleFunc(mux, MethodAccept, func(_ context.Context, req *acceptBody) (any, error) {
		return nil, n.Accept(req.From, req.Group, req.Forwarded, req.Observer, req.LLU, req.Max)
	})
	HandleFunc(mux, MethodReady, func(_ context.Context, req *readyBody) (any, error) {
		return nil, n.Ready(req.From, req.Group, req.Coordinator, req.Max, req.Generation)
	})
	mux.Handle(MethodSync, func(context.Context, json.RawMessage) (any, error) {
		return handleReply{Handle: n.Sync()}, nil
	})
	mux.Handle(MethodQuery, func(context.Context, json.RawMessage) (any, error) {
		return n.Query(), nil
	})
}

// RegisterReplica routes the replica methods to r.
func RegisterReplica(mux *Mux, r ReplicaService) {
	HandleFunc(mux, MethodForward, func(ctx context.Context, req *forwardBody) (any, error) {
		return nil, r.HandleForward(ctx, req.Update)
	})
	HandleFunc(mux, MethodApply, func(_ context.Context, req *applyBody) (any, error) {
		return nil, r.HandleApply(req.Generation, req.LLU, req.Update)
	})
	HandleFunc(mux, MethodInit, func(_ context.Context, req *initBody) (any, error) {
		return nil, r.HandleInit(req.From, req.Generation, req.LLU, req.Snapshot)
	})
	mux.Handle(MethodSnapshot, func(context.Context, json.RawMessage) (any, error) {
		snap, err := r.Snapshot()
		if err != nil {
			return nil, err
		}
		return snapshotReply{Snapshot: snap}, nil
	})
}

var (
	_ NodeService    = (*cluster.Node)(nil)
	_ ReplicaService = (*replica.Store)(nil)
)
