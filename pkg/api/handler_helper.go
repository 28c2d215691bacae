package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
	"github.com/dd0wney/cluso-pubsub/pkg/logging"
	"github.com/dd0wney/cluso-pubsub/pkg/replica"
)

// validate is a singleton validator instance
var validate = validator.New()

// requestDecoder decodes and validates request bodies.
type requestDecoder struct {
	r          *http.Request
	w          http.ResponseWriter
	server     *Server
	err        error
	statusCode int
}

func (s *Server) newRequestDecoder(w http.ResponseWriter, r *http.Request) *requestDecoder {
	return &requestDecoder{r: r, w: w, server: s}
}

// DecodeJSON decodes the request body into v.
func (rd *requestDecoder) DecodeJSON(v any) *requestDecoder {
	if rd.err != nil {
		return rd
	}
	dec := json.NewDecoder(http.MaxBytesReader(rd.w, rd.r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		rd.err = fmt.Errorf("invalid request body: %w", err)
		rd.statusCode = http.StatusBadRequest
	}
	return rd
}

// Validate applies v's struct tags.
func (rd *requestDecoder) Validate(v any) *requestDecoder {
	if rd.err != nil {
		return rd
	}
	if err := validate.Struct(v); err != nil {
		rd.err = formatValidationError(err)
		rd.statusCode = http.StatusBadRequest
	}
	return rd
}

// RespondError sends the error response and reports whether there was one.
func (rd *requestDecoder) RespondError() bool {
	if rd.err == nil {
		return false
	}
	rd.server.respondError(rd.w, rd.statusCode, rd.err.Error())
	return true
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}
	e := validationErrs[0]
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s: field is required", e.Field())
	case "max":
		return fmt.Errorf("%s: must not exceed %s characters", e.Field(), e.Param())
	default:
		return fmt.Errorf("%s: validation failed (%s)", e.Field(), e.Tag())
	}
}

// methodRouter routes requests based on HTTP method.
type methodRouter struct {
	w       http.ResponseWriter
	r       *http.Request
	server  *Server
	handled bool
}

func (s *Server) newMethodRouter(w http.ResponseWriter, r *http.Request) *methodRouter {
	return &methodRouter{w: w, r: r, server: s}
}

func (mr *methodRouter) on(method string, handler func()) *methodRouter {
	if !mr.handled && mr.r.Method == method {
		handler()
		mr.handled = true
	}
	return mr
}

func (mr *methodRouter) Get(handler func()) *methodRouter    { return mr.on(http.MethodGet, handler) }
func (mr *methodRouter) Post(handler func()) *methodRouter   { return mr.on(http.MethodPost, handler) }
func (mr *methodRouter) Delete(handler func()) *methodRouter { return mr.on(http.MethodDelete, handler) }

// NotAllowed sends a 405 response if no method matched.
func (mr *methodRouter) NotAllowed() {
	if !mr.handled {
		mr.server.respondError(mr.w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", logging.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

// respondStoreError maps a store or coordination error to a status code.
// Errors without a client-facing meaning are logged and reported
// generically.
func (s *Server) respondStoreError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, replica.ErrTopicNotFound), errors.Is(err, replica.ErrSubscriberNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, replica.ErrTopicExists):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, replica.ErrInvalidUpdate):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, cluster.ErrShuttingDown):
		s.respondError(w, http.StatusServiceUnavailable, "node is shutting down")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.respondError(w, http.StatusGatewayTimeout, operation+" timed out")
	default:
		s.logger.Error(operation+" failed", logging.Error(err))
		s.respondError(w, http.StatusBadGateway, operation+" failed")
	}
}
