package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// Recover returns middleware that converts a handler panic into a
// permanent error. A panicking handler is a bug, so the job is not
// retried.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job handler panicked",
					slog.String("job_type", string(j.Type)),
					slog.String("job_id", j.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = job.Permanent(fmt.Errorf("panic in %s job: %v", j.Type, r))
			}
		}()
		return next(ctx)
	}
}
