// Package worker provides the job execution engine: an Executor that
// invokes registered handlers through middleware and records the outcome,
// and a Poller that claims one job per tick and keeps it alive.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/backoff"
	"github.com/svetoslav0421/nocode-claude-ai/ext"
	"github.com/svetoslav0421/nocode-claude-ai/job"
	"github.com/svetoslav0421/nocode-claude-ai/middleware"
)

// Outcome is the state an execution left the job in.
type Outcome string

const (
	// OutcomeCompleted means the handler succeeded.
	OutcomeCompleted Outcome = "completed"
	// OutcomeRetrying means the job went back to pending with a delay.
	OutcomeRetrying Outcome = "retrying"
	// OutcomeFailed means the job reached the failed state.
	OutcomeFailed Outcome = "failed"
	// OutcomeReleased means execution was interrupted by shutdown and the
	// claim was returned without consuming an attempt.
	OutcomeReleased Outcome = "released"
)

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithJobTimeout sets the handler budget for jobs without their own
// Timeout.
func WithJobTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.jobTimeout = d }
}

// WithWriteTimeout bounds each store write made after the handler returns.
func WithWriteTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.writeTimeout = d }
}

// Executor runs a single claimed job through middleware and the registered
// handler, then persists the resulting transition and emits lifecycle
// events.
type Executor struct {
	registry     *job.Registry
	extensions   *ext.Registry
	store        job.Store
	backoff      backoff.Strategy
	mw           middleware.Middleware
	logger       *slog.Logger
	jobTimeout   time.Duration
	writeTimeout time.Duration
	now          func() time.Time
}

// NewExecutor creates an Executor. The middleware run outermost first; a
// timeout stage is always installed innermost.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws []middleware.Middleware,
	opts ...ExecutorOption,
) *Executor {
	if bo == nil {
		bo = backoff.DefaultStrategy()
	}
	e := &Executor{
		registry:     registry,
		extensions:   extensions,
		store:        store,
		backoff:      bo,
		logger:       logger,
		jobTimeout:   nocode.DefaultConfig().JobTimeout,
		writeTimeout: 5 * time.Second,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	chain := make([]middleware.Middleware, 0, len(mws)+1)
	chain = append(chain, mws...)
	chain = append(chain, middleware.Timeout(e.jobTimeout))
	e.mw = middleware.Chain(chain...)
	return e
}

// Execute runs j, which must already be claimed, and records the outcome.
// The returned error is non-nil only when the outcome could not be
// persisted.
func (e *Executor) Execute(ctx context.Context, j *job.Job) (Outcome, error) {
	start := time.Now()

	var err error
	handler, ok := e.registry.Get(j.Type)
	if !ok {
		err = job.Permanent(fmt.Errorf("%w: %q", nocode.ErrUnknownJobType, j.Type))
	} else {
		err = e.mw(ctx, j, func(ctx context.Context) error {
			return handler(ctx, j.Payload)
		})
	}
	elapsed := time.Since(start)

	// Detach so a shutdown cancel cannot lose the outcome write.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.writeTimeout)
	defer cancel()

	switch {
	case err == nil:
		return e.complete(wctx, j, elapsed)
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		return e.release(wctx, j)
	default:
		return e.fail(wctx, j, err)
	}
}

func (e *Executor) complete(ctx context.Context, j *job.Job, elapsed time.Duration) (Outcome, error) {
	if err := e.store.MarkCompleted(ctx, j.ID, j.WorkerID); err != nil {
		return "", e.writeError("complete", j, err)
	}
	j.Status = job.StatusCompleted
	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return OutcomeCompleted, nil
}

// release hands the claim back as-is: same attempts, same error, eligible
// immediately.
func (e *Executor) release(ctx context.Context, j *job.Job) (Outcome, error) {
	if err := e.store.MarkFailedRetryable(ctx, j.ID, j.WorkerID, j.Error, j.Attempts, e.now()); err != nil {
		return "", e.writeError("release", j, err)
	}
	j.Status = job.StatusPending
	e.logger.Info("job released on shutdown",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", string(j.Type)),
	)
	return OutcomeReleased, nil
}

func (e *Executor) fail(ctx context.Context, j *job.Job, cause error) (Outcome, error) {
	attempts := j.Attempts + 1
	msg := cause.Error()

	if !job.IsPermanent(cause) && attempts < j.MaxAttempts {
		delay := e.backoff.Delay(attempts)
		runAt := e.now().Add(delay)
		if err := e.store.MarkFailedRetryable(ctx, j.ID, j.WorkerID, msg, attempts, runAt); err != nil {
			return "", e.writeError("retry", j, err)
		}
		j.Status, j.Attempts, j.Error, j.ScheduledFor = job.StatusPending, attempts, msg, runAt
		e.extensions.EmitJobRetrying(ctx, j, attempts, runAt)
		e.logger.Info("job scheduled for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", string(j.Type)),
			slog.Int("attempt", attempts),
			slog.Int("max_attempts", j.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", msg),
		)
		return OutcomeRetrying, nil
	}

	attempts = job.ClampAttempts(j.Attempts, attempts, j.MaxAttempts)
	if err := e.store.MarkFailedPermanent(ctx, j.ID, j.WorkerID, msg, attempts); err != nil {
		return "", e.writeError("fail", j, err)
	}
	j.Status, j.Attempts, j.Error = job.StatusFailed, attempts, msg
	e.notifyFailed(ctx, j, cause)
	return OutcomeFailed, nil
}

// notifyFailed runs the type's failure hook and emits JobFailed for a job
// already recorded as failed.
func (e *Executor) notifyFailed(ctx context.Context, j *job.Job, cause error) {
	if hook, ok := e.registry.FailureHook(j.Type); ok {
		if err := hook(ctx, j.Payload, cause); err != nil {
			e.logger.Error("failure hook error",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", string(j.Type)),
				slog.String("error", err.Error()),
			)
		}
	}

	e.extensions.EmitJobFailed(ctx, j, cause)
	e.logger.Warn("job failed",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", string(j.Type)),
		slog.Int("attempts", j.Attempts),
		slog.Bool("permanent", job.IsPermanent(cause)),
		slog.String("error", cause.Error()),
	)
}

func (e *Executor) writeError(op string, j *job.Job, err error) error {
	if errors.Is(err, nocode.ErrInvalidState) {
		e.logger.Warn("job claim lost before outcome was recorded",
			slog.String("op", op),
			slog.String("job_id", j.ID.String()),
			slog.String("worker_id", j.WorkerID.String()),
		)
		return fmt.Errorf("worker: %s job %s: %w", op, j.ID, err)
	}
	e.logger.Error("failed to record job outcome",
		slog.String("op", op),
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", string(j.Type)),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("worker: %s job %s: %w", op, j.ID, err)
}
