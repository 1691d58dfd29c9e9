package telemetry

import (
	"context"
	"log/slog"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LogExporter writes finished spans to a structured logger at debug level.
// It is meant for local runs where no collector is available.
type LogExporter struct {
	Logger *slog.Logger
}

var _ sdktrace.SpanExporter = LogExporter{}

// ExportSpans logs one record per span.
func (e LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, s := range spans {
		attrs := []slog.Attr{
			slog.String("trace_id", s.SpanContext().TraceID().String()),
			slog.String("span_id", s.SpanContext().SpanID().String()),
			slog.Duration("duration", s.EndTime().Sub(s.StartTime())),
			slog.String("status", s.Status().Code.String()),
		}
		for _, kv := range s.Attributes() {
			attrs = append(attrs, slog.String(string(kv.Key), kv.Value.Emit()))
		}
		logger.LogAttrs(ctx, slog.LevelDebug, "span "+s.Name(), attrs...)
	}
	return nil
}

// Shutdown is a no-op.
func (LogExporter) Shutdown(context.Context) error { return nil }
