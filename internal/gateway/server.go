package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/flowgate/internal/config"
	"github.com/vyrodovalexey/flowgate/internal/observability"
)

// State represents the server state.
type State int32

const (
	// StateStopped indicates the server is stopped.
	StateStopped State = iota
	// StateStarting indicates the server is starting.
	StateStarting
	// StateRunning indicates the server is running.
	StateRunning
	// StateStopping indicates the server is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Server runs an HTTP listener in front of a handler.
type Server struct {
	name    string
	config  config.ServerConfig
	handler http.Handler
	logger  observability.Logger

	state     atomic.Int32
	mu        sync.RWMutex
	server    *http.Server
	addr      net.Addr
	startTime time.Time
	done      chan struct{}
}

// ServerOption is a functional option for the server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger observability.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithServerName sets the name used in logs.
func WithServerName(name string) ServerOption {
	return func(s *Server) {
		s.name = name
	}
}

// NewServer creates a server for handler.
func NewServer(cfg config.ServerConfig, handler http.Handler, opts ...ServerOption) *Server {
	s := &Server{
		name:    "gateway",
		config:  cfg,
		handler: handler,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Store(int32(StateStopped))
	return s
}

// State returns the current state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the bound address while running.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// Uptime returns the time since the server started.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrNotStopped
	}

	addr := s.config.Address
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       s.config.ReadTimeout.OrDefault(config.DefaultReadTimeout),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout.OrDefault(config.DefaultWriteTimeout),
		IdleTimeout:       s.config.IdleTimeout.OrDefault(config.DefaultIdleTimeout),
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr()
	s.startTime = time.Now()
	s.done = done
	s.mu.Unlock()

	s.state.Store(int32(StateRunning))

	s.logger.Info("server started",
		observability.String("name", s.name),
		observability.String("address", ln.Addr().String()),
	)

	go s.serve(srv, ln, done)

	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("server error",
			observability.String("name", s.name),
			observability.Error(err),
		)
	}
}

// Stop shuts the server down gracefully. Without a deadline on ctx the
// configured shutdown timeout applies.
func (s *Server) Stop(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrNotRunning
	}

	s.logger.Info("stopping server", observability.String("name", s.name))

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout.OrDefault(config.DefaultShutdownTimeout))
		defer cancel()
	}

	s.mu.RLock()
	srv, done := s.server, s.done
	s.mu.RUnlock()

	var stopErr error
	if err := srv.Shutdown(ctx); err != nil {
		if closeErr := srv.Close(); closeErr != nil {
			stopErr = fmt.Errorf("failed to close server: %w", closeErr)
		} else {
			stopErr = fmt.Errorf("failed to shutdown server gracefully: %w", err)
		}
	}
	<-done

	s.mu.Lock()
	s.addr = nil
	s.startTime = time.Time{}
	s.mu.Unlock()
	s.state.Store(int32(StateStopped))

	s.logger.Info("server stopped", observability.String("name", s.name))

	return stopErr
}
