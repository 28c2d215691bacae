package cluster

import "errors"

// Configuration errors
var (
	ErrInvalidNodeID      = errors.New("node ID must not be negative")
	ErrSelfNotInDirectory = errors.New("peer directory does not contain this node")
	ErrNilPeer            = errors.New("peer directory entry is nil")
	ErrMissingDependency  = errors.New("required collaborator is nil")
)

// Protocol errors. Only ErrProtocolViolation and ErrShuttingDown are returned
// to callers of the update gate; the rest stay inside the engine or travel
// back to the peer that made an invalid call.
var (
	ErrPeerUnreachable   = errors.New("peer unreachable")
	ErrQuorumLost        = errors.New("insufficient members for quorum")
	ErrStaleGeneration   = errors.New("generation superseded")
	ErrProtocolViolation = errors.New("call not valid in current state")
	ErrShuttingDown      = errors.New("node is shutting down")
	ErrUnknownPeer       = errors.New("caller is not in the peer directory")
	ErrLeftGroup         = errors.New("peer no longer follows this coordinator")
)
