package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracerProvider(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := NewTracerProvider("designer-test", exporter, nil)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := Tracer(tp).Start(context.Background(), "persist.Save")
	EndSpan(span, errors.New("put failed"), attribute.Int("written", 3))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "persist.Save", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Contains(t, spans[0].Attributes, attribute.Int("written", 3))
	assert.Len(t, spans[0].Events, 1)

	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, "designer-test", service)
}

func TestNoopDefaults(t *testing.T) {
	_, span := Tracer(nil).Start(context.Background(), "noop")
	EndSpan(span, nil)
	assert.False(t, span.SpanContext().IsValid())

	counter, err := Meter(nil).Int64Counter("designer.test")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
}

func TestLogExporter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tp := NewTracerProvider("designer-test", LogExporter{Logger: logger}, nil)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := Tracer(tp).Start(context.Background(), "layout.Apply")
	EndSpan(span, nil, attribute.Int("nodes", 4))

	out := buf.String()
	assert.Contains(t, out, `"msg":"span layout.Apply"`)
	assert.Contains(t, out, `"nodes":"4"`)
	assert.Contains(t, out, `"status":"Ok"`)
}
