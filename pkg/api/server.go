// Package api serves the node's admin HTTP interface: coordination status,
// topic management, health and metrics.
package api

import (
	"context"
	"net/http"

	"github.com/dd0wney/cluso-pubsub/pkg/auth"
	"github.com/dd0wney/cluso-pubsub/pkg/cluster"
	"github.com/dd0wney/cluso-pubsub/pkg/health"
	"github.com/dd0wney/cluso-pubsub/pkg/logging"
	"github.com/dd0wney/cluso-pubsub/pkg/metrics"
	"github.com/dd0wney/cluso-pubsub/pkg/replica"
)

// Coordinator is the read side of the coordination node.
type Coordinator interface {
	Query() cluster.QueryInfo
	Nodes() []int
}

// TopicStore is the replicated topic registry.
type TopicStore interface {
	Topics() ([]replica.Topic, error)
	Topic(name string) (replica.Topic, error)
	CreateTopic(ctx context.Context, name string) error
	DestroyTopic(ctx context.Context, name string) error
	Subscribe(ctx context.Context, topic string, sub replica.Subscriber) error
	Unsubscribe(ctx context.Context, topic, subscriberID string) error
}

// Config wires a Server to its collaborators. Health and Metrics may be
// nil; without Auth every write is refused.
type Config struct {
	Node    Coordinator
	Store   TopicStore
	Auth    *auth.Authenticator
	Health  *health.HealthChecker
	Metrics *metrics.Registry
	Logger  logging.Logger
}

// Server is the admin HTTP API.
type Server struct {
	node    Coordinator
	store   TopicStore
	auth    *auth.Authenticator
	health  *health.HealthChecker
	metrics *metrics.Registry
	logger  logging.Logger
	mux     *http.ServeMux
}

// NewServer creates a Server and registers its routes.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = &logging.NopLogger{}
	}
	s := &Server{
		node:    cfg.Node,
		store:   cfg.Store,
		auth:    cfg.Auth,
		health:  cfg.Health,
		metrics: cfg.Metrics,
		logger:  logger.With(logging.Component("api")),
		mux:     http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/nodes", s.handleNodes)
	s.mux.HandleFunc("/topics", s.requireAuthForWrites(s.handleTopics))
	s.mux.HandleFunc("/topics/{name}", s.requireAuthForWrites(s.handleTopic))
	s.mux.HandleFunc("/topics/{name}/subscribers", s.requireAuthForWrites(s.handleSubscribers))
	s.mux.HandleFunc("/topics/{name}/subscribers/{id}", s.requireAuthForWrites(s.handleSubscriber))

	if s.health != nil {
		s.mux.HandleFunc("/health", s.health.HTTPHandler())
		s.mux.HandleFunc("/health/live", s.health.LivenessHandler())
		s.mux.HandleFunc("/health/ready", s.health.ReadinessHandler())
	}
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}
}

// Handler returns the routed handler with request metrics applied.
func (s *Server) Handler() http.Handler {
	if s.metrics == nil {
		return s.mux
	}
	return s.metricsMiddleware(s.mux)
}
