// Package ext defines lifecycle hooks for the job engine. Each hook is a
// separate interface so an extension implements only the events it needs.
package ext

import (
	"context"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobEnqueued is called after a job is persisted.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker begins an attempt.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when an attempt fails and another is scheduled.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempts int, nextRunAt time.Time) error
}

// JobFailed is called when a job fails terminally.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobReset is called when an operator moves a failed job back to pending.
type JobReset interface {
	OnJobReset(ctx context.Context, j *job.Job) error
}

// StaleRequeued is called after a visibility sweep recovered jobs.
type StaleRequeued interface {
	OnStaleRequeued(ctx context.Context, count int64) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
