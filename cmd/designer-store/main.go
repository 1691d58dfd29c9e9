// Command designer-store exposes a configured persistence backend over gRPC
// so that designer sessions can share it with the grpc backend type.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/captify-io/designer"
	"github.com/captify-io/designer/config"
	"github.com/captify-io/designer/health"
	"github.com/captify-io/designer/kv"
	"github.com/captify-io/designer/serve"
	"github.com/captify-io/designer/telemetry"
)

type flags struct {
	configPath     string
	port           int
	grace          time.Duration
	healthInterval time.Duration
	certFile       string
	keyFile        string
	trace          bool
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", os.Getenv(config.EnvConfigPath), "path to designer.yaml")
	flag.IntVar(&f.port, "port", 50051, "TCP port to listen on")
	flag.DurationVar(&f.grace, "graceful-timeout", 30*time.Second, "time allowed for in-flight requests on shutdown")
	flag.DurationVar(&f.healthInterval, "health-interval", 15*time.Second, "backend probe interval, 0 to disable")
	flag.StringVar(&f.certFile, "tls-cert", "", "TLS certificate file")
	flag.StringVar(&f.keyFile, "tls-key", "", "TLS key file")
	flag.BoolVar(&f.trace, "trace", false, "log one span per request at debug level")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.GetLogLevel()}))
	if cfg.Backend.GetType() == "grpc" {
		return fmt.Errorf("backend type grpc cannot be served; point %s at the underlying store", config.EnvConfigPath)
	}

	opts := []serve.Option{
		serve.WithPort(f.port),
		serve.WithGracefulShutdown(f.grace),
		serve.WithHealthInterval(f.healthInterval),
		serve.WithLogger(logger),
	}

	var checks []health.Status
	if f.certFile != "" || f.keyFile != "" {
		checks = append(checks, health.FileCheck(f.certFile), health.FileCheck(f.keyFile))
		opts = append(opts, serve.WithTLS(f.certFile, f.keyFile))
	}

	backend, err := kv.Open(context.Background(), cfg.Backend, logger)
	if err != nil {
		return fmt.Errorf("failed to open backend: %w", err)
	}
	defer designer.CloseWithLog(backend, logger, "backend")

	checks = append(checks, health.BackendCheck(context.Background(), backend))
	if status := health.Combine(checks...); status.IsUnhealthy() {
		return fmt.Errorf("startup checks failed: %s %v", status.Message, status.Details["failed_checks"])
	}

	if f.trace {
		tp := telemetry.NewTracerProvider(cfg.Telemetry.GetServiceName()+"-store", telemetry.LogExporter{Logger: logger}, logger)
		defer func() { _ = tp.Shutdown(context.Background()) }()
		opts = append(opts, serve.WithTracer(telemetry.Tracer(tp)))
	}

	logger.Info("serving backend", slog.String("backend", cfg.Backend.GetType()), slog.Int("port", f.port))
	return serve.Store(context.Background(), backend, opts...)
}
