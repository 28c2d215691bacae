// Package server runs the admin HTTP listener and orders process shutdown.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-pubsub/pkg/logging"
)

// ConfigReloadFunc is a function that reloads configuration
type ConfigReloadFunc func() error

// ShutdownHook releases one subsystem. Hooks run in registration order.
type ShutdownHook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// GracefulServer wraps an HTTP server with ordered shutdown and signal
// handling.
type GracefulServer struct {
	server *http.Server
	logger logging.Logger

	shutdownCh   chan struct{}
	doneCh       chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error

	hooksMu sync.Mutex
	hooks   []ShutdownHook

	configReloadFn ConfigReloadFunc
	configMu       sync.RWMutex

	ShutdownTimeout time.Duration
}

// NewGracefulServer creates a new graceful HTTP server
func NewGracefulServer(addr string, handler http.Handler, logger logging.Logger) *GracefulServer {
	if logger == nil {
		logger = &logging.NopLogger{}
	}
	return &GracefulServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		logger:          logger.With(logging.Component("server")),
		shutdownCh:      make(chan struct{}),
		doneCh:          make(chan struct{}),
		ShutdownTimeout: 30 * time.Second,
	}
}

// OnShutdown registers a hook to run before the HTTP listener closes.
func (gs *GracefulServer) OnShutdown(name string, fn func(ctx context.Context) error) {
	gs.hooksMu.Lock()
	defer gs.hooksMu.Unlock()
	gs.hooks = append(gs.hooks, ShutdownHook{Name: name, Fn: fn})
}

// Start listens on the configured address and serves until Shutdown
// completes. SIGINT and SIGTERM trigger Shutdown; SIGHUP reloads
// configuration.
func (gs *GracefulServer) Start() error {
	l, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return err
	}
	return gs.Serve(l)
}

// Serve is Start on an existing listener.
func (gs *GracefulServer) Serve(l net.Listener) error {
	stop := gs.handleSignals()
	defer stop()

	gs.logger.Info("starting HTTP server", logging.String("addr", l.Addr().String()))
	if err := gs.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Serve returns as soon as Shutdown begins; wait for the hooks too.
	<-gs.doneCh
	return gs.shutdownErr
}

// Shutdown runs the hooks, then drains the HTTP server. Only the first
// call does anything; later calls return the same result.
func (gs *GracefulServer) Shutdown(timeout time.Duration) error {
	gs.shutdownOnce.Do(func() {
		defer close(gs.doneCh)
		close(gs.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		gs.logger.Info("initiating graceful shutdown", logging.Duration("timeout", timeout))

		gs.hooksMu.Lock()
		hooks := append([]ShutdownHook(nil), gs.hooks...)
		gs.hooksMu.Unlock()

		var errs []error
		for _, h := range hooks {
			if err := h.Fn(ctx); err != nil {
				gs.logger.Error("shutdown hook failed", logging.String("hook", h.Name), logging.Error(err))
				errs = append(errs, err)
			}
		}

		if err := gs.server.Shutdown(ctx); err != nil {
			gs.logger.Error("error during shutdown", logging.Error(err))
			errs = append(errs, err)
		} else {
			gs.logger.Info("server shutdown complete")
		}
		gs.shutdownErr = errors.Join(errs...)
	})
	<-gs.doneCh
	return gs.shutdownErr
}

// handleSignals listens for OS signals until the returned stop is called.
func (gs *GracefulServer) handleSignals() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // Termination signal (systemd, docker, k8s)
		syscall.SIGHUP,  // Reload configuration
	)

	quit := make(chan struct{})
	go func() {
		for {
			select {
			case <-quit:
				return
			case sig := <-sigCh:
				switch sig {
				case syscall.SIGINT, syscall.SIGTERM:
					gs.logger.Info("received signal, starting graceful shutdown", logging.String("signal", sig.String()))
					go gs.Shutdown(gs.ShutdownTimeout)
				case syscall.SIGHUP:
					gs.logger.Info("received SIGHUP, reloading configuration")
					gs.ReloadConfig()
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(quit)
	}
}

// IsShuttingDown returns true if shutdown has been initiated
func (gs *GracefulServer) IsShuttingDown() bool {
	select {
	case <-gs.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownChannel returns a channel that closes when shutdown is initiated
func (gs *GracefulServer) ShutdownChannel() <-chan struct{} {
	return gs.shutdownCh
}

// SetConfigReloadFunc sets the function to call when configuration reload is triggered
func (gs *GracefulServer) SetConfigReloadFunc(fn ConfigReloadFunc) {
	gs.configMu.Lock()
	defer gs.configMu.Unlock()
	gs.configReloadFn = fn
}

// ReloadConfig triggers a configuration reload
func (gs *GracefulServer) ReloadConfig() error {
	gs.configMu.RLock()
	reloadFn := gs.configReloadFn
	gs.configMu.RUnlock()

	if reloadFn == nil {
		gs.logger.Info("configuration reload requested, but no reload function configured")
		return nil
	}

	if err := reloadFn(); err != nil {
		gs.logger.Error("configuration reload failed", logging.Error(err))
		return err
	}

	gs.logger.Info("configuration reload complete")
	return nil
}
