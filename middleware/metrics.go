package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// meterName is the instrumentation scope name for job metrics.
const meterName = "github.com/svetoslav0421/nocode-claude-ai"

// Outcome labels recorded on the status attribute.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusPermanent = "permanent"
)

// Metrics returns middleware that records per-job execution metrics using
// the global OTel MeterProvider.
//
// Instruments:
//   - nocode.job.duration (Float64Histogram): execution time in seconds
//   - nocode.job.executions (Int64Counter): executions
//
// Both carry job_type and status ("ok", "error" or "permanent").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The OTel API returns usable noop instruments alongside any error.
	duration, _ := meter.Float64Histogram( //nolint:errcheck // noop fallback
		"nocode.job.duration",
		metric.WithDescription("Duration of job execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter( //nolint:errcheck // noop fallback
		"nocode.job.executions",
		metric.WithDescription("Total number of job executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := StatusOK
		switch {
		case err == nil:
		case job.IsPermanent(err):
			status = StatusPermanent
		default:
			status = StatusError
		}

		attrs := metric.WithAttributes(
			attribute.String("job_type", string(j.Type)),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return err
	}
}
