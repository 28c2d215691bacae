package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
	"github.com/dd0wney/cluso-pubsub/pkg/replica"
)

func TestMux_HandleFuncDecodesBody(t *testing.T) {
	mux := NewMux()

	var got invitationBody
	HandleFunc(mux, MethodInvitation, func(_ context.Context, req *invitationBody) (any, error) {
		got = *req
		return boolReply{Value: true}, nil
	})

	body, _ := json.Marshal(invitationBody{From: 3, Group: "3:abc"})
	resp := mux.serve(context.Background(), &Request{Method: MethodInvitation, Body: body})

	if resp.Code != "" {
		t.Fatalf("Unexpected error response: %s %s", resp.Code, resp.Error)
	}
	if got.From != 3 || got.Group != "3:abc" {
		t.Errorf("Handler got %+v", got)
	}

	var reply boolReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		t.Fatalf("Failed to decode reply: %v", err)
	}
	if !reply.Value {
		t.Error("Expected reply value true")
	}
}

func TestMux_UnknownMethod(t *testing.T) {
	resp := NewMux().serve(context.Background(), &Request{Method: "nope"})
	if resp.Code != CodeUnknownMethod {
		t.Errorf("Expected code %q, got %q", CodeUnknownMethod, resp.Code)
	}
}

func TestMux_MalformedBody(t *testing.T) {
	mux := NewMux()
	HandleFunc(mux, MethodAccept, func(context.Context, *acceptBody) (any, error) {
		t.Error("Handler should not run on a malformed body")
		return nil, nil
	})

	resp := mux.serve(context.Background(), &Request{Method: MethodAccept, Body: json.RawMessage(`{"from":"x"}`)})
	if resp.Code != CodeBadRequest {
		t.Errorf("Expected code %q, got %q", CodeBadRequest, resp.Code)
	}
}

func TestMux_NilReplyHasEmptyBody(t *testing.T) {
	mux := NewMux()
	mux.Handle(MethodReady, func(context.Context, json.RawMessage) (any, error) { return nil, nil })

	resp := mux.serve(context.Background(), &Request{Method: MethodReady})
	if resp.Code != "" || len(resp.Body) != 0 {
		t.Errorf("Expected empty success response, got %+v", resp)
	}
}

func TestMux_Methods(t *testing.T) {
	mux := NewMux()
	RegisterNode(mux, newFakeNode(true))
	RegisterReplica(mux, &fakeReplicaService{})

	if n := len(mux.Methods()); n != 11 {
		t.Errorf("Expected 11 methods, got %d: %v", n, mux.Methods())
	}
}

func TestErrorCodesSurviveTheWire(t *testing.T) {
	sentinels := []error{
		cluster.ErrShuttingDown,
		cluster.ErrProtocolViolation,
		cluster.ErrUnknownPeer,
		replica.ErrNotMaster,
		replica.ErrTopicExists,
		replica.ErrTopicNotFound,
		replica.ErrSubscriberNotFound,
		replica.ErrInvalidUpdate,
		replica.ErrBadSnapshot,
		ErrUnknownMethod,
		ErrBadRequest,
	}

	for _, want := range sentinels {
		t.Run(want.Error(), func(t *testing.T) {
			resp := errorResponse(fmt.Errorf("wrapped: %w", want))
			got := errorFor(resp.Code, resp.Error)
			if !errors.Is(got, want) {
				t.Errorf("Expected %v, got %v", want, got)
			}
		})
	}

	t.Run("unmapped", func(t *testing.T) {
		resp := errorResponse(errors.New("disk on fire"))
		if resp.Code != CodeRemote {
			t.Errorf("Expected code %q, got %q", CodeRemote, resp.Code)
		}
		if !errors.Is(errorFor(resp.Code, resp.Error), ErrRemote) {
			t.Error("Expected ErrRemote")
		}
	})
}

func TestNewSocketFactory(t *testing.T) {
	f, err := NewSocketFactory("nng")
	if err != nil {
		t.Fatalf("nng factory: %v", err)
	}
	if _, ok := f.(*NNGSocketFactory); !ok {
		t.Errorf("Expected *NNGSocketFactory, got %T", f)
	}

	if _, err := NewSocketFactory("carrier-pigeon"); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
