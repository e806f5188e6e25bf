package middleware

import (
	"context"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// Timeout returns middleware that bounds handler execution. The job's own
// Timeout wins; fallback applies when it is zero. A zero fallback with no
// job timeout leaves the context unbounded.
func Timeout(fallback time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		d := j.Timeout
		if d <= 0 {
			d = fallback
		}
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
