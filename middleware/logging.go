package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// Logging returns middleware that logs job start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attrs := []any{
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", string(j.Type)),
			slog.Int("attempt", j.Attempts+1),
			slog.Int("max_attempts", j.MaxAttempts),
		}
		logger.Info("job started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		switch {
		case err == nil:
			logger.Info("job completed", attrs...)
		case job.IsPermanent(err):
			logger.Error("job failed permanently", append(attrs, slog.String("error", err.Error()))...)
		default:
			logger.Warn("job attempt failed", append(attrs, slog.String("error", err.Error()))...)
		}
		return err
	}
}
