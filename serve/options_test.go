package serve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestOptions(t *testing.T) {
	cfg := DefaultConfig()
	logger := quietLogger()
	tracer := noop.NewTracerProvider().Tracer("test")

	opts := []Option{
		WithPort(9090),
		WithGracefulShutdown(45 * time.Second),
		WithTLS("cert.pem", "key.pem"),
		WithLogger(logger),
		WithTracer(tracer),
		WithHealthInterval(time.Minute),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 45*time.Second, cfg.GracefulTimeout)
	assert.Equal(t, "cert.pem", cfg.TLSCertFile)
	assert.Equal(t, "key.pem", cfg.TLSKeyFile)
	assert.Same(t, logger, cfg.Logger)
	assert.Equal(t, tracer, cfg.Tracer)
	assert.Equal(t, time.Minute, cfg.HealthInterval)
}
