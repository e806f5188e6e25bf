// Package middleware wraps job handlers with cross-cutting behavior.
//
// The engine installs, outermost first:
//
//   - [Recover] turns a handler panic into a permanent error
//   - [Tracing] opens a nocode.job.execute span
//   - [Metrics] records duration and outcome per job type
//   - [Logging] logs start and finish with the attempt number
//   - [Timeout] bounds the handler with the job or default timeout
//
// Custom middleware has the same shape:
//
//	func Audit(w io.Writer) middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        fmt.Fprintln(w, j.Type, j.ID)
//	        return next(ctx)
//	    }
//	}
package middleware
