package designer

import (
	"log/slog"

	"github.com/captify-io/designer/canvas"
	"github.com/captify-io/designer/config"
	"github.com/captify-io/designer/kv"
	"github.com/captify-io/designer/layout"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Designer.
type Option func(*options)

// options holds configuration for a Designer instance.
type options struct {
	config         *config.Config
	configPath     string
	backend        kv.Backend
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	notifier       canvas.Notifier
	mode           canvas.Mode
	engine         layout.Engine
	autoLayout     *bool
}

// WithConfig sets the designer configuration.
// Sections left nil fall back to their defaults.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithConfigFile loads the configuration from a designer.yaml file or a
// directory containing one. It is ignored when WithConfig is also given.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithBackend sets the key-value backend directly instead of opening the one
// named by the configuration. The caller keeps ownership: Close does not
// close a backend supplied this way.
func WithBackend(b kv.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithLogger sets a custom logger for the designer.
// If not provided, a JSON logger on stdout at the configured level is created.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider used for load,
// save and layout spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider used for save and
// layout metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithNotifier sets where persistence failures triggered from the canvas
// are reported.
func WithNotifier(n canvas.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithMode overrides the configured canvas mode.
func WithMode(m canvas.Mode) Option {
	return func(o *options) {
		o.mode = m
	}
}

// WithLayoutEngine replaces the layered layout engine.
func WithLayoutEngine(e layout.Engine) Option {
	return func(o *options) {
		o.engine = e
	}
}

// WithAutoLayout controls whether structural changes re-run the layout.
// By default only ontology mode lays out automatically; designer mode
// preserves user placement.
func WithAutoLayout(enabled bool) Option {
	return func(o *options) {
		o.autoLayout = &enabled
	}
}
