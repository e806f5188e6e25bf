package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// entry pairs a hook with the extension name captured at registration.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events to
// them. Hooks are sorted into per-event slices at registration, so an
// emit only visits extensions that implement it.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobEnqueued   []entry[JobEnqueued]
	jobStarted    []entry[JobStarted]
	jobCompleted  []entry[JobCompleted]
	jobRetrying   []entry[JobRetrying]
	jobFailed     []entry[JobFailed]
	jobReset      []entry[JobReset]
	staleRequeued []entry[StaleRequeued]
	shutdown      []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// collect appends e to list when it implements H.
func collect[H any](list []entry[H], e Extension) []entry[H] {
	if h, ok := e.(H); ok {
		return append(list, entry[H]{name: e.Name(), hook: h})
	}
	return list
}

// Register adds an extension. Extensions are notified in registration
// order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)

	r.jobEnqueued = collect(r.jobEnqueued, e)
	r.jobStarted = collect(r.jobStarted, e)
	r.jobCompleted = collect(r.jobCompleted, e)
	r.jobRetrying = collect(r.jobRetrying, e)
	r.jobFailed = collect(r.jobFailed, e)
	r.jobReset = collect(r.jobReset, e)
	r.staleRequeued = collect(r.staleRequeued, e)
	r.shutdown = collect(r.shutdown, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// emit calls fn for every entry and logs hook errors. Hook errors never
// reach the caller.
func emit[H any](r *Registry, hookName string, list []entry[H], fn func(H) error) {
	for _, e := range list {
		if err := fn(e.hook); err != nil {
			r.logger.Warn("extension hook error",
				slog.String("hook", hookName),
				slog.String("extension", e.name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// EmitJobEnqueued notifies extensions implementing JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	emit(r, "OnJobEnqueued", r.jobEnqueued, func(h JobEnqueued) error {
		return h.OnJobEnqueued(ctx, j)
	})
}

// EmitJobStarted notifies extensions implementing JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	emit(r, "OnJobStarted", r.jobStarted, func(h JobStarted) error {
		return h.OnJobStarted(ctx, j)
	})
}

// EmitJobCompleted notifies extensions implementing JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	emit(r, "OnJobCompleted", r.jobCompleted, func(h JobCompleted) error {
		return h.OnJobCompleted(ctx, j, elapsed)
	})
}

// EmitJobRetrying notifies extensions implementing JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempts int, nextRunAt time.Time) {
	emit(r, "OnJobRetrying", r.jobRetrying, func(h JobRetrying) error {
		return h.OnJobRetrying(ctx, j, attempts, nextRunAt)
	})
}

// EmitJobFailed notifies extensions implementing JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	emit(r, "OnJobFailed", r.jobFailed, func(h JobFailed) error {
		return h.OnJobFailed(ctx, j, jobErr)
	})
}

// EmitJobReset notifies extensions implementing JobReset.
func (r *Registry) EmitJobReset(ctx context.Context, j *job.Job) {
	emit(r, "OnJobReset", r.jobReset, func(h JobReset) error {
		return h.OnJobReset(ctx, j)
	})
}

// EmitStaleRequeued notifies extensions implementing StaleRequeued.
func (r *Registry) EmitStaleRequeued(ctx context.Context, count int64) {
	emit(r, "OnStaleRequeued", r.staleRequeued, func(h StaleRequeued) error {
		return h.OnStaleRequeued(ctx, count)
	})
}

// EmitShutdown notifies extensions implementing Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, "OnShutdown", r.shutdown, func(h Shutdown) error {
		return h.OnShutdown(ctx)
	})
}
