package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
	"github.com/dd0wney/cluso-pubsub/pkg/replica"
)

// Method names carried in Request.Method.
const (
	MethodAreYouCoordinator = "cluster.are_you_coordinator"
	MethodAreYouThere       = "cluster.are_you_there"
	MethodInvitation        = "cluster.invitation"
	MethodAccept            = "cluster.accept"
	MethodReady             = "cluster.ready"
	MethodSync              = "cluster.sync"
	MethodQuery             = "cluster.query"

	MethodForward  = "replica.forward"
	MethodApply    = "replica.apply"
	MethodInit     = "replica.init"
	MethodSnapshot = "replica.snapshot"
)

// Request is the envelope for every call.
type Request struct {
	Method string          `json:"method"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Response answers a Request. Code is empty on success.
type Response struct {
	Body  json.RawMessage `json:"body,omitempty"`
	Code  string          `json:"code,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Error codes. Each maps back to a sentinel on the calling side so that
// errors.Is works across the wire.
const (
	CodeShuttingDown       = "shutting_down"
	CodeProtocolViolation  = "protocol_violation"
	CodeUnknownPeer        = "unknown_peer"
	CodeNotMaster          = "not_master"
	CodeTopicExists        = "topic_exists"
	CodeTopicNotFound      = "topic_not_found"
	CodeSubscriberNotFound = "subscriber_not_found"
	CodeInvalidUpdate      = "invalid_update"
	CodeBadSnapshot        = "bad_snapshot"
	CodeUnknownMethod      = "unknown_method"
	CodeBadRequest         = "bad_request"
	CodeRemote             = "remote"
)

var (
	// ErrRemote is returned for remote failures with no more specific code.
	ErrRemote = errors.New("remote call failed")
	// ErrUnknownMethod means the remote has no handler for the method.
	ErrUnknownMethod = errors.New("unknown method")
	// ErrBadRequest means the remote could not decode the request body.
	ErrBadRequest = errors.New("malformed request")
	// ErrNoOneWay is returned by clients built without a one-way address.
	ErrNoOneWay = errors.New("no one-way address configured")
	// ErrClosed is returned by calls on a closed client.
	ErrClosed = errors.New("transport closed")
)

var codes = []struct {
	code string
	err  error
}{
	{CodeShuttingDown, cluster.ErrShuttingDown},
	{CodeProtocolViolation, cluster.ErrProtocolViolation},
	{CodeUnknownPeer, cluster.ErrUnknownPeer},
	{CodeNotMaster, replica.ErrNotMaster},
	{CodeTopicExists, replica.ErrTopicExists},
	{CodeTopicNotFound, replica.ErrTopicNotFound},
	{CodeSubscriberNotFound, replica.ErrSubscriberNotFound},
	{CodeInvalidUpdate, replica.ErrInvalidUpdate},
	{CodeBadSnapshot, replica.ErrBadSnapshot},
	{CodeUnknownMethod, ErrUnknownMethod},
	{CodeBadRequest, ErrBadRequest},
}

// codeFor returns the wire code for err.
func codeFor(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeRemote
}

// errorFor rebuilds a local error from a response code and message.
func errorFor(code, msg string) error {
	for _, c := range codes {
		if c.code == code {
			return fmt.Errorf("%w (remote: %s)", c.err, msg)
		}
	}
	return fmt.Errorf("%w: %s", ErrRemote, msg)
}

func errorResponse(err error) Response {
	return Response{Code: codeFor(err), Error: err.Error()}
}

// Request bodies.

type areYouThereBody struct {
	Group string `json:"group"`
	ID    int    `json:"id"`
}

type invitationBody struct {
	From  int    `json:"from"`
	Group string `json:"group"`
}

type acceptBody struct {
	From      int               `json:"from"`
	Group     string            `json:"group"`
	Forwarded []int             `json:"forwarded,omitempty"`
	Observer  cluster.Handle    `json:"observer"`
	LLU       cluster.LogUpdate `json:"llu"`
	Max       int               `json:"max"`
}

type readyBody struct {
	From        int            `json:"from"`
	Group       string         `json:"group"`
	Coordinator cluster.Handle `json:"coordinator"`
	Max         int            `json:"max"`
	Generation  int64          `json:"generation"`
}

type forwardBody struct {
	Update replica.Update `json:"update"`
}

type applyBody struct {
	Generation int64             `json:"generation"`
	LLU        cluster.LogUpdate `json:"llu"`
	Update     replica.Update    `json:"update"`
}

type initBody struct {
	From       int               `json:"from"`
	Generation int64             `json:"generation"`
	LLU        cluster.LogUpdate `json:"llu"`
	Snapshot   []byte            `json:"snapshot"`
}

// Reply bodies.

type boolReply struct {
	Value bool `json:"value"`
}

type handleReply struct {
	Handle cluster.Handle `json:"handle"`
}

type snapshotReply struct {
	Snapshot []byte `json:"snapshot"`
}
