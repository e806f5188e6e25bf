package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// tracerName is the instrumentation scope name for job tracing.
const tracerName = "github.com/svetoslav0421/nocode-claude-ai"

// Tracing returns middleware that wraps job execution in an OpenTelemetry
// span using the global TracerProvider.
//
// Span attributes: nocode.job.id, nocode.job.type, nocode.job.attempt,
// nocode.job.max_attempts, nocode.job.priority. Failed executions set the
// span status to codes.Error; permanent failures also set
// nocode.job.permanent.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "nocode.job.execute",
			trace.WithAttributes(
				attribute.String("nocode.job.id", j.ID.String()),
				attribute.String("nocode.job.type", string(j.Type)),
				attribute.Int("nocode.job.attempt", j.Attempts+1),
				attribute.Int("nocode.job.max_attempts", j.MaxAttempts),
				attribute.Int("nocode.job.priority", j.Priority),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if job.IsPermanent(err) {
				span.SetAttributes(attribute.Bool("nocode.job.permanent", true))
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
