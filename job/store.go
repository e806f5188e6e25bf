package job

import (
	"context"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/id"
)

// ListOpts controls pagination for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Status filters by job status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for jobs.
//
// The Mark* writes apply only to a job in processing under workerID.
// Re-applying a write to a job that is already in the state it produces is
// a no-op, so a retried store call after a lost response is safe. Any
// other current state, or a claim now held by another worker, yields
// nocode.ErrInvalidState.
type Store interface {
	// EnqueueJob persists a new job in pending state.
	EnqueueJob(ctx context.Context, j *Job) error

	// ClaimNext atomically selects the highest-priority, earliest-created
	// pending job whose ScheduledFor has passed, moves it to processing
	// and returns it. It returns nil, nil when nothing is eligible.
	ClaimNext(ctx context.Context, workerID id.WorkerID) (*Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// MarkCompleted moves a processing job to completed.
	MarkCompleted(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error

	// MarkFailedRetryable returns a processing job to pending with the
	// given error, attempt count and next eligible time.
	MarkFailedRetryable(ctx context.Context, jobID id.JobID, workerID id.WorkerID, errMsg string, attempts int, scheduledFor time.Time) error

	// MarkFailedPermanent moves a processing job to failed.
	MarkFailedPermanent(ctx context.Context, jobID id.JobID, workerID id.WorkerID, errMsg string, attempts int) error

	// HeartbeatJob refreshes the liveness timestamp of a processing job
	// owned by workerID.
	HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error

	// RequeueStale returns processing jobs whose last heartbeat is older
	// than threshold to pending, consuming one attempt. Jobs without
	// attempts left are failed instead and reported by ID so the caller
	// can run their failure handling.
	RequeueStale(ctx context.Context, threshold time.Duration) (SweepResult, error)

	// ResetToPending moves a failed job back to pending with attempts,
	// error and execution timestamps cleared.
	ResetToPending(ctx context.Context, jobID id.JobID) error

	// ListJobsByStatus returns jobs with the given status, oldest first.
	ListJobsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Job, error)

	// ListFailed returns failed jobs, most recently completed first.
	ListFailed(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}

// SweepResult reports the jobs a visibility sweep recovered.
type SweepResult struct {
	// Requeued is the number of jobs returned to pending.
	Requeued int64
	// Failed lists the jobs that had no attempts left and are now failed.
	Failed []id.JobID
}

// Total returns the number of jobs the sweep touched.
func (r SweepResult) Total() int64 { return r.Requeued + int64(len(r.Failed)) }

// StaleErrorMessage is recorded on jobs failed by the visibility sweep.
const StaleErrorMessage = "visibility timeout exceeded: worker stopped reporting"

// ClampAttempts returns the attempt count a store should persist when a
// write proposes next for a job currently at current with budget max:
// never below current and never above max.
func ClampAttempts(current, next, maxAttempts int) int {
	if next < current {
		next = current
	}
	if maxAttempts > 0 && next > maxAttempts {
		next = maxAttempts
	}
	return next
}
