package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dd0wney/cluso-pubsub/pkg/logging"
	"github.com/dd0wney/cluso-pubsub/pkg/metrics"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	RPCAddress    string
	OneWayAddress string // optional; no PULL socket when empty

	// Workers is the number of concurrent request/reply exchanges. It only
	// applies to sockets implementing Contexter; others are served serially.
	Workers        int
	PollInterval   time.Duration // receive deadline, bounds Stop latency
	RequestTimeout time.Duration
}

// Server answers synchronous calls on a REP socket and one-way calls on a
// PULL socket, dispatching both through a Mux.
type Server struct {
	cfg     ServerConfig
	factory SocketFactory
	mux     *Mux
	logger  logging.Logger
	metrics *metrics.Registry

	rep      ListenSocket
	pull     ListenSocket
	contexts []Socket

	stopCh    chan struct{}
	wg        sync.WaitGroup
	inflight  sync.WaitGroup
	running   bool
	runningMu sync.Mutex
}

// NewServer creates a server. It does not bind until Start.
func NewServer(cfg ServerConfig, factory SocketFactory, mux *Mux, logger logging.Logger, reg *metrics.Registry) *Server {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = &logging.NopLogger{}
	}
	return &Server{
		cfg:     cfg,
		factory: factory,
		mux:     mux,
		logger:  logger.With(logging.Component("transport")),
		metrics: reg,
		stopCh:  make(chan struct{}),
	}
}

// Start binds the sockets and begins serving.
func (s *Server) Start() error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if s.running {
		return nil
	}

	rep, err := s.factory.NewRepSocket()
	if err != nil {
		return err
	}
	if err := rep.Listen(s.cfg.RPCAddress); err != nil {
		rep.Close()
		return err
	}
	s.rep = rep

	if s.cfg.OneWayAddress != "" {
		pull, err := s.factory.NewPullSocket()
		if err != nil {
			s.closeSockets()
			return err
		}
		s.pull = pull
		if err := pull.Listen(s.cfg.OneWayAddress); err != nil {
			s.closeSockets()
			return err
		}
		if err := pull.SetRecvDeadline(s.cfg.PollInterval); err != nil {
			s.closeSockets()
			return err
		}
	}

	if err := s.startReplyLoops(); err != nil {
		s.closeSockets()
		return err
	}
	if s.pull != nil {
		s.wg.Add(1)
		go s.pullLoop()
	}

	s.running = true
	s.logger.Info("transport server started",
		logging.String("rpc", s.cfg.RPCAddress),
		logging.String("oneway", s.cfg.OneWayAddress))
	return nil
}

func (s *Server) startReplyLoops() error {
	c, ok := s.rep.(Contexter)
	if !ok || s.cfg.Workers == 1 {
		if err := s.rep.SetRecvDeadline(s.cfg.PollInterval); err != nil {
			return err
		}
		s.wg.Add(1)
		go s.replyLoop(s.rep)
		return nil
	}

	for i := 0; i < s.cfg.Workers; i++ {
		sc, err := c.OpenContext()
		if err != nil {
			return err
		}
		s.contexts = append(s.contexts, sc)
		if err := sc.SetRecvDeadline(s.cfg.PollInterval); err != nil {
			return err
		}
	}
	for _, sc := range s.contexts {
		s.wg.Add(1)
		go s.replyLoop(sc)
	}
	return nil
}

// Stop stops serving, waits for handlers to return and closes the sockets.
func (s *Server) Stop() error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if !s.running {
		return nil
	}

	close(s.stopCh)
	s.running = false
	s.wg.Wait()
	s.inflight.Wait()
	s.closeSockets()

	s.logger.Info("transport server stopped")
	return nil
}

func (s *Server) closeSockets() {
	for _, sc := range s.contexts {
		sc.Close()
	}
	s.contexts = nil
	if s.rep != nil {
		s.rep.Close()
	}
	if s.pull != nil {
		s.pull.Close()
	}
}

func (s *Server) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Server) replyLoop(sock Socket) {
	defer s.wg.Done()

	for !s.stopped() {
		msg, err := sock.Recv()
		if err != nil {
			continue // Timeout
		}

		out, err := json.Marshal(s.dispatch(msg))
		if err != nil {
			s.logger.Error("failed to encode response", logging.Error(err))
			continue
		}
		if err := sock.Send(out); err != nil {
			s.logger.Warn("failed to send response", logging.Error(err))
		}
	}
}

// pullLoop runs each one-way call on its own goroutine; invitation handlers
// block until the merge they join settles.
func (s *Server) pullLoop() {
	defer s.wg.Done()

	for !s.stopped() {
		msg, err := s.pull.Recv()
		if err != nil {
			continue // Timeout
		}

		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			if resp := s.dispatch(msg); resp.Code != "" {
				s.logger.Warn("one-way call failed",
					logging.String("code", resp.Code),
					logging.String("error", resp.Error))
			}
		}()
	}
}

func (s *Server) dispatch(msg []byte) Response {
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		s.record("", CodeBadRequest, 0)
		return Response{Code: CodeBadRequest, Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	resp := s.mux.serve(ctx, &req)
	status := resp.Code
	if status == "" {
		status = "ok"
	}
	s.record(req.Method, status, time.Since(start))
	if resp.Code != "" {
		s.logger.Debug("request failed",
			logging.Method(req.Method),
			logging.String("code", resp.Code),
			logging.String("error", resp.Error))
	}
	return resp
}

func (s *Server) record(method, status string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordTransportRequest(method, status, d)
	}
}
