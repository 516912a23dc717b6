package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/observability"
	"github.com/rhuss/datagem/pkg/transport"
)

// Server runs the DataGem HTTP surface: the adapter behind the default
// middleware, HTTP metrics, and a shutdown drain for streaming chats.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds the listener and lifecycle settings.
type ServerConfig struct {
	Addr        string
	MaxBodySize int64
	Validation  api.ValidationConfig

	// ShutdownTimeout bounds the drain. Chats still streaming when it
	// expires are cancelled.
	ShutdownTimeout time.Duration
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     10 << 20,
		Validation:      api.DefaultValidationConfig(),
		ShutdownTimeout: 30 * time.Second,
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize caps the size of a POST /chat body in bytes.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

func WithValidation(v api.ValidationConfig) ServerOption {
	return func(s *Server) { s.config.Validation = v }
}

func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer wraps handler in recovery, request ID and logging middleware
// and mounts it with the supporting backends.
func NewServer(handler transport.ChatHandler, backends Backends, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.adapter = NewAdapter(handler, backends,
		Config{MaxBodySize: s.config.MaxBodySize, Validation: s.config.Validation},
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	)
	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           observability.MetricsMiddleware(s.adapter.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Adapter returns the HTTP adapter behind the server.
func (s *Server) Adapter() *Adapter {
	return s.adapter
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then drains.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("datagem listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	return s.drain()
}

// drain waits for running chats up to ShutdownTimeout, then cancels the
// rest and closes their connections.
func (s *Server) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("draining chats",
		slog.Int("in_flight", s.adapter.inflight.Len()),
		slog.Duration("timeout", s.config.ShutdownTimeout),
	)
	err := s.httpServer.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		n := s.adapter.inflight.CancelAll()
		s.logger.Warn("drain timed out, cancelled running chats", slog.Int("cancelled", n))
		err = s.httpServer.Close()
	}
	if err != nil {
		s.logger.Error("shutdown failed", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown stops accepting connections and waits for running requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
