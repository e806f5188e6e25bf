package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/svetoslav0421/nocode-claude-ai/ext"
	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*MetricsExtension)(nil)
	_ ext.JobEnqueued   = (*MetricsExtension)(nil)
	_ ext.JobCompleted  = (*MetricsExtension)(nil)
	_ ext.JobRetrying   = (*MetricsExtension)(nil)
	_ ext.JobFailed     = (*MetricsExtension)(nil)
	_ ext.JobReset      = (*MetricsExtension)(nil)
	_ ext.StaleRequeued = (*MetricsExtension)(nil)
)

const meterName = "github.com/svetoslav0421/nocode-claude-ai/observability"

// MetricsExtension records lifecycle counters. Job counters carry a
// job_type attribute.
type MetricsExtension struct {
	JobEnqueued   metric.Int64Counter
	JobCompleted  metric.Int64Counter
	JobRetried    metric.Int64Counter
	JobFailed     metric.Int64Counter
	JobReset      metric.Int64Counter
	StaleRequeued metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc)) //nolint:errcheck // noop fallback
		return c
	}
	return &MetricsExtension{
		JobEnqueued:   counter("nocode.job.enqueued", "Jobs accepted for processing"),
		JobCompleted:  counter("nocode.job.completed", "Jobs that finished successfully"),
		JobRetried:    counter("nocode.job.retried", "Failed attempts that were rescheduled"),
		JobFailed:     counter("nocode.job.failed", "Jobs that failed terminally"),
		JobReset:      counter("nocode.job.reset", "Failed jobs manually returned to pending"),
		StaleRequeued: counter("nocode.job.stale_requeued", "Jobs recovered by the visibility sweep"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func typeAttr(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_type", string(j.Type)))
}

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.JobEnqueued.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.JobCompleted.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.JobRetried.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.JobFailed.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobReset implements ext.JobReset.
func (m *MetricsExtension) OnJobReset(ctx context.Context, j *job.Job) error {
	m.JobReset.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnStaleRequeued implements ext.StaleRequeued.
func (m *MetricsExtension) OnStaleRequeued(ctx context.Context, count int64) error {
	m.StaleRequeued.Add(ctx, count)
	return nil
}
