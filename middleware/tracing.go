package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/acpflow/job"
)

// tracerName is the instrumentation scope name for acpflow tracing.
const tracerName = "github.com/xraph/acpflow"

// Tracing returns middleware that wraps handler execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: acpflow.job.id, acpflow.job.state,
// acpflow.job.type, acpflow.job.requester, acpflow.job.retry_count.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, rec *job.Record, next Handler) error {
		ctx, span := tracer.Start(ctx, "acpflow.handler.execute",
			trace.WithAttributes(
				attribute.String("acpflow.job.id", rec.ID.String()),
				attribute.String("acpflow.job.state", string(rec.State)),
				attribute.String("acpflow.job.type", string(rec.Spec.Type)),
				attribute.String("acpflow.job.requester", rec.Spec.RequesterID),
				attribute.Int("acpflow.job.retry_count", rec.RetryCount),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
