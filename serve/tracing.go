package serve

import (
	"context"
	"strings"

	"github.com/captify-io/designer/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const healthMethodPrefix = "/grpc.health.v1.Health/"

// TracingInterceptor starts a server span around every unary call and marks
// it failed when the handler returns an error. Health checks are not traced.
func TracingInterceptor(tracer trace.Tracer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthMethodPrefix) {
			return handler(ctx, req)
		}
		ctx, span := tracer.Start(ctx, info.FullMethod,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("rpc.system", "grpc")),
		)
		resp, err := handler(ctx, req)
		telemetry.EndSpan(span, err, attribute.String("rpc.grpc.status_code", status.Code(err).String()))
		return resp, err
	}
}
