package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/captify-io/designer/health"
	"github.com/captify-io/designer/kv"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Config holds serve configuration.
// It defines the server's network settings, graceful shutdown behavior,
// and optional TLS settings.
type Config struct {
	// Port is the TCP port on which the gRPC server listens.
	// Use 0 to pick any free port.
	// Default: 50051
	Port int

	// GracefulTimeout is the maximum duration to wait for active requests
	// to complete during graceful shutdown.
	// Default: 30 seconds
	GracefulTimeout time.Duration

	// TLSCertFile is the path to the TLS certificate file.
	// If empty, TLS is disabled.
	TLSCertFile string

	// TLSKeyFile is the path to the TLS private key file.
	// If empty, TLS is disabled.
	TLSKeyFile string

	// Logger receives lifecycle and request errors.
	Logger *slog.Logger

	// Tracer, when set, records one span per store request.
	Tracer trace.Tracer

	// HealthInterval is how often the registered backend is probed while
	// serving. Zero disables probing after registration.
	// Default: 15 seconds
	HealthInterval time.Duration
}

// DefaultConfig returns default serve configuration.
// These defaults are suitable for local development and testing.
func DefaultConfig() *Config {
	return &Config{
		Port:            50051,
		GracefulTimeout: 30 * time.Second,
		HealthInterval:  15 * time.Second,
	}
}

// Server wraps a gRPC server with lifecycle management.
type Server struct {
	grpcServer   *grpc.Server
	listener     net.Listener
	config       *Config
	healthServer *grpchealth.Server
	logger       *slog.Logger

	mu      sync.Mutex
	backend kv.Backend
	serving bool
}

// NewServer creates a new gRPC server with the provided configuration.
// It sets up the gRPC server with appropriate options (e.g., TLS)
// and registers the health check service.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", cfg.Port, err)
	}

	var opts []grpc.ServerOption
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			listener.Close()
			return nil, fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	if cfg.Tracer != nil {
		opts = append(opts, grpc.ChainUnaryInterceptor(TracingInterceptor(cfg.Tracer)))
	}

	grpcServer := grpc.NewServer(opts...)

	healthServer := grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	return &Server{
		grpcServer:   grpcServer,
		listener:     listener,
		config:       cfg,
		healthServer: healthServer,
		logger:       logger,
	}, nil
}

// RegisterBackend exposes backend as the Store service and sets its health
// status from an initial probe.
func (s *Server) RegisterBackend(backend kv.Backend) {
	kv.RegisterStoreServer(s.grpcServer, kv.NewService(backend, s.logger))
	s.mu.Lock()
	s.backend = backend
	s.mu.Unlock()
	s.CheckBackend(context.Background())
}

// CheckBackend probes the registered backend and updates the Store service
// health status. A degraded backend still serves.
func (s *Server) CheckBackend(ctx context.Context) health.Status {
	s.mu.Lock()
	backend := s.backend
	s.mu.Unlock()

	status := health.BackendCheck(ctx, backend)
	serving := !status.IsUnhealthy()

	s.mu.Lock()
	changed := serving != s.serving
	s.serving = serving
	s.mu.Unlock()

	if serving {
		s.healthServer.SetServingStatus(kv.StoreServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	} else {
		s.healthServer.SetServingStatus(kv.StoreServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	if changed {
		s.logger.Info("store health changed",
			slog.String("status", status.Status),
			slog.String("message", status.Message),
		)
	}
	return status
}

func (s *Server) watchBackend(ctx context.Context) {
	ticker := time.NewTicker(s.config.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckBackend(ctx)
		}
	}
}

// GRPCServer returns the underlying gRPC server.
// This allows callers to register additional services.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// HealthServer returns the health check server.
// This allows callers to set service health status.
func (s *Server) HealthServer() *grpchealth.Server {
	return s.healthServer
}

// Serve starts the gRPC server and blocks until shutdown.
// It handles graceful shutdown on SIGINT/SIGTERM signals.
// The context can be used to initiate shutdown programmatically.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	s.logger.Info("store server listening", slog.Int("port", s.Port()))

	s.mu.Lock()
	registered := s.backend != nil
	s.mu.Unlock()
	if registered && s.config.HealthInterval > 0 {
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		go s.watchBackend(watchCtx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		s.GracefulStop()
		return ctx.Err()
	case sig := <-sigCh:
		s.logger.Info("received signal, shutting down gracefully", slog.String("signal", sig.String()))
		s.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop immediately stops the gRPC server.
// Active RPCs will be terminated abruptly.
func (s *Server) Stop() {
	s.grpcServer.Stop()
}

// GracefulStop gracefully stops the gRPC server.
// It stops accepting new connections and waits for active RPCs
// to complete within the configured timeout period.
func (s *Server) GracefulStop() {
	s.healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.GracefulTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("server stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("graceful shutdown timeout, forcing stop")
		s.grpcServer.Stop()
	}
}

// Port returns the port the server is listening on.
// This is useful when using port 0 to get an available port.
func (s *Server) Port() int {
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.config.Port
}

// Store serves backend until ctx is cancelled or a termination signal
// arrives.
func Store(ctx context.Context, backend kv.Backend, opts ...Option) error {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	srv, err := NewServer(cfg)
	if err != nil {
		return err
	}
	srv.RegisterBackend(backend)
	return srv.Serve(ctx)
}
