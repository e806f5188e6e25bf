package audithook

import (
	"context"
	"log/slog"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/ext"
	"github.com/svetoslav0421/nocode-claude-ai/job"
)

var (
	_ ext.Extension     = (*Extension)(nil)
	_ ext.JobEnqueued   = (*Extension)(nil)
	_ ext.JobStarted    = (*Extension)(nil)
	_ ext.JobCompleted  = (*Extension)(nil)
	_ ext.JobRetrying   = (*Extension)(nil)
	_ ext.JobFailed     = (*Extension)(nil)
	_ ext.JobReset      = (*Extension)(nil)
	_ ext.StaleRequeued = (*Extension)(nil)
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail entry.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc adapts a plain function to Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder writes each event as one structured log line on logger.
// Critical events log at error level, warnings at warn, the rest at info.
func LogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		for k, v := range evt.Metadata {
			attrs = append(attrs, slog.Any(k, v))
		}
		logger.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// Severity values.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension turns lifecycle hooks into audit events.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension recording through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	return e.recordJob(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess, j, nil,
		"priority", j.Priority,
		"scheduled_for", j.ScheduledFor.Format(time.RFC3339),
	)
}

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return e.recordJob(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess, j, nil,
		"worker_id", j.WorkerID.String(),
		"attempts", j.Attempts,
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.recordJob(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess, j, nil,
		"attempts", j.Attempts,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobRetrying implements ext.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, j *job.Job, attempts int, nextRunAt time.Time) error {
	return e.recordJob(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure, j, nil,
		"attempts", attempts,
		"max_attempts", j.MaxAttempts,
		"next_run_at", nextRunAt.Format(time.RFC3339),
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return e.recordJob(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure, j, jobErr,
		"attempts", j.Attempts,
		"max_attempts", j.MaxAttempts,
	)
}

// OnJobReset implements ext.JobReset.
func (e *Extension) OnJobReset(ctx context.Context, j *job.Job) error {
	return e.recordJob(ctx, ActionJobReset, SeverityInfo, OutcomeSuccess, j, nil)
}

// OnStaleRequeued implements ext.StaleRequeued.
func (e *Extension) OnStaleRequeued(ctx context.Context, count int64) error {
	return e.record(ctx, &AuditEvent{
		Action:   ActionStaleRequeued,
		Resource: ResourcePoller,
		Severity: SeverityWarning,
		Outcome:  OutcomeFailure,
		Metadata: map[string]any{"count": count},
	})
}

func (e *Extension) recordJob(ctx context.Context, action, severity, outcome string, j *job.Job, err error, kv ...any) error {
	meta := make(map[string]any, len(kv)/2+2)
	meta["job_type"] = string(j.Type)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			meta[key] = kv[i+1]
		}
	}
	evt := &AuditEvent{
		Action:     action,
		Resource:   ResourceJob,
		ResourceID: j.ID.String(),
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
	}
	if err != nil {
		evt.Reason = err.Error()
	}
	return e.record(ctx, evt)
}

// record sends evt when its action is enabled. Recorder errors are logged
// and never fail the hook.
func (e *Extension) record(ctx context.Context, evt *AuditEvent) error {
	if e.enabled != nil && !e.enabled[evt.Action] {
		return nil
	}
	evt.Category = CategoryJob
	if err := e.recorder.Record(ctx, evt); err != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", evt.Action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
