package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler serves one method. The returned value is encoded as the reply
// body; a nil value sends an empty body.
type Handler func(ctx context.Context, body json.RawMessage) (any, error)

// Mux dispatches requests to handlers by method name.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

// Handle registers h for method, replacing any earlier handler.
func (m *Mux) Handle(method string, h Handler) *Mux {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method] = h
	return m
}

// HandleFunc registers a handler that receives the decoded body.
func HandleFunc[T any](m *Mux, method string, fn func(ctx context.Context, req *T) (any, error)) *Mux {
	return m.Handle(method, func(ctx context.Context, body json.RawMessage) (any, error) {
		var v T
		if len(body) > 0 {
			if err := json.Unmarshal(body, &v); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
			}
		}
		return fn(ctx, &v)
	})
}

func (m *Mux) lookup(method string) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[method]
	return h, ok
}

// Methods returns the registered method names in order.
func (m *Mux) Methods() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.handlers))
	for k := range m.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// serve runs one request and builds its response.
func (m *Mux) serve(ctx context.Context, req *Request) Response {
	h, ok := m.lookup(req.Method)
	if !ok {
		return errorResponse(fmt.Errorf("%w: %q", ErrUnknownMethod, req.Method))
	}
	v, err := h(ctx, req.Body)
	if err != nil {
		return errorResponse(err)
	}
	if v == nil {
		return Response{}
	}
	body, err := json.Marshal(v)
	if err != nil {
		return errorResponse(err)
	}
	return Response{Body: body}
}
