package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return nocode.ErrJobAlreadyExists
		}
		return fmt.Errorf("nocode/bun: enqueue job: %w", err)
	}
	return nil
}

// ClaimNext atomically claims the next eligible job using
// FOR UPDATE SKIP LOCKED via raw SQL.
func (s *Store) ClaimNext(ctx context.Context, workerID id.WorkerID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewRaw(`
		UPDATE nocode_jobs
		SET status = 'processing', started_at = NOW(), heartbeat_at = NOW(),
		    worker_id = ?, updated_at = NOW()
		WHERE id = (
			SELECT id FROM nocode_jobs
			WHERE status = 'pending' AND scheduled_for <= NOW()
			ORDER BY priority DESC, created_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING *`,
		workerID.String(),
	).Scan(ctx, m)
	if err != nil {
		if isNoRows(err) {
			return nil, nil //nolint:nilnil // nothing eligible is not an error
		}
		return nil, fmt.Errorf("nocode/bun: claim job: %w", err)
	}
	return fromJobModel(m)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nocode.ErrJobNotFound
		}
		return nil, fmt.Errorf("nocode/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// MarkCompleted moves a processing job to completed.
func (s *Store) MarkCompleted(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	res, err := s.processing(jobID, workerID).
		Set("status = ?", string(job.StatusCompleted)).
		Set("completed_at = NOW()").
		Set("error = ''").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("nocode/bun: mark completed: %w", err)
	}
	return s.settle(ctx, jobID, job.StatusCompleted, affected(res))
}

// MarkFailedRetryable returns a processing job to pending.
func (s *Store) MarkFailedRetryable(ctx context.Context, jobID id.JobID, workerID id.WorkerID, errMsg string, attempts int, scheduledFor time.Time) error {
	res, err := s.processing(jobID, workerID).
		Set("status = ?", string(job.StatusPending)).
		Set("error = ?", errMsg).
		Set("attempts = LEAST(GREATEST(attempts, ?), max_attempts)", attempts).
		Set("scheduled_for = ?", scheduledFor.UTC()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("nocode/bun: mark retryable: %w", err)
	}
	return s.settle(ctx, jobID, job.StatusPending, affected(res))
}

// MarkFailedPermanent moves a processing job to failed.
func (s *Store) MarkFailedPermanent(ctx context.Context, jobID id.JobID, workerID id.WorkerID, errMsg string, attempts int) error {
	res, err := s.processing(jobID, workerID).
		Set("status = ?", string(job.StatusFailed)).
		Set("error = ?", errMsg).
		Set("attempts = LEAST(GREATEST(attempts, ?), max_attempts)", attempts).
		Set("completed_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("nocode/bun: mark failed: %w", err)
	}
	return s.settle(ctx, jobID, job.StatusFailed, affected(res))
}

// processing starts an UPDATE that only matches jobID while workerID holds
// its claim, releasing that claim.
func (s *Store) processing(jobID id.JobID, workerID id.WorkerID) *bun.UpdateQuery {
	return s.db.NewUpdate().
		TableExpr("nocode_jobs").
		Set("worker_id = ''").
		Set("heartbeat_at = NULL").
		Set("updated_at = NOW()").
		Where("id = ?", jobID.String()).
		Where("status = ?", string(job.StatusProcessing)).
		Where("worker_id = ?", workerID.String())
}

// settle interprets an UPDATE that touched no row.
func (s *Store) settle(ctx context.Context, jobID id.JobID, target job.Status, rows int64) error {
	if rows > 0 {
		return nil
	}
	status, err := s.jobStatus(ctx, jobID)
	if err != nil {
		return err
	}
	if status == target {
		return nil
	}
	return nocode.ErrInvalidState
}

func (s *Store) jobStatus(ctx context.Context, jobID id.JobID) (job.Status, error) {
	var status string
	err := s.db.NewSelect().
		TableExpr("nocode_jobs").
		Column("status").
		Where("id = ?", jobID.String()).
		Scan(ctx, &status)
	if err != nil {
		if isNoRows(err) {
			return "", nocode.ErrJobNotFound
		}
		return "", fmt.Errorf("nocode/bun: job status: %w", err)
	}
	return job.Status(status), nil
}

// HeartbeatJob refreshes the heartbeat of a processing job owned by workerID.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	res, err := s.db.NewUpdate().
		TableExpr("nocode_jobs").
		Set("heartbeat_at = NOW()").
		Set("updated_at = NOW()").
		Where("id = ?", jobID.String()).
		Where("status = ?", string(job.StatusProcessing)).
		Where("worker_id = ?", workerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("nocode/bun: heartbeat job: %w", err)
	}
	if affected(res) > 0 {
		return nil
	}
	if _, err := s.jobStatus(ctx, jobID); err != nil {
		return err
	}
	return nocode.ErrInvalidState
}

// RequeueStale recovers processing jobs whose heartbeat is older than
// threshold. SET expressions see the pre-update attempts value and
// RETURNING the new status.
func (s *Store) RequeueStale(ctx context.Context, threshold time.Duration) (job.SweepResult, error) {
	var rows []struct {
		ID     string `bun:"id"`
		Status string `bun:"status"`
	}
	err := s.db.NewUpdate().
		TableExpr("nocode_jobs").
		Set("status = CASE WHEN attempts + 1 < max_attempts THEN 'pending' ELSE 'failed' END").
		Set("scheduled_for = CASE WHEN attempts + 1 < max_attempts THEN NOW() ELSE scheduled_for END").
		Set("completed_at = CASE WHEN attempts + 1 < max_attempts THEN NULL ELSE NOW() END").
		Set("attempts = LEAST(attempts + 1, max_attempts)").
		Set("error = ?", job.StaleErrorMessage).
		Set("worker_id = ''").
		Set("heartbeat_at = NULL").
		Set("updated_at = NOW()").
		Where("status = ?", string(job.StatusProcessing)).
		Where("COALESCE(heartbeat_at, started_at, updated_at) < NOW() - make_interval(secs => ?::double precision)", threshold.Seconds()).
		Returning("id, status").
		Scan(ctx, &rows)
	if err != nil && !isNoRows(err) {
		return job.SweepResult{}, fmt.Errorf("nocode/bun: requeue stale jobs: %w", err)
	}

	var res job.SweepResult
	for _, r := range rows {
		if job.Status(r.Status) != job.StatusFailed {
			res.Requeued++
			continue
		}
		jobID, err := id.ParseJobID(r.ID)
		if err != nil {
			return job.SweepResult{}, fmt.Errorf("nocode/bun: parse stale job id: %w", err)
		}
		res.Failed = append(res.Failed, jobID)
	}
	return res, nil
}

// ResetToPending moves a failed job back to pending with a fresh budget.
func (s *Store) ResetToPending(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.NewUpdate().
		TableExpr("nocode_jobs").
		Set("status = ?", string(job.StatusPending)).
		Set("attempts = 0").
		Set("error = ''").
		Set("started_at = NULL").
		Set("completed_at = NULL").
		Set("heartbeat_at = NULL").
		Set("worker_id = ''").
		Set("scheduled_for = NOW()").
		Set("updated_at = NOW()").
		Where("id = ?", jobID.String()).
		Where("status = ?", string(job.StatusFailed)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("nocode/bun: reset job: %w", err)
	}
	if affected(res) > 0 {
		return nil
	}
	if _, err := s.jobStatus(ctx, jobID); err != nil {
		return err
	}
	return nocode.ErrInvalidState
}

// ListJobsByStatus returns jobs with the given status, oldest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("status = ?", string(status)).
		Order("created_at ASC", "id ASC")
	q = paginate(q, opts)

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("nocode/bun: list jobs by status: %w", err)
	}
	return fromJobModels(models)
}

// ListFailed returns failed jobs, most recently completed first.
func (s *Store) ListFailed(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("status = ?", string(job.StatusFailed)).
		OrderExpr("completed_at DESC NULLS LAST").
		OrderExpr("id DESC")
	q = paginate(q, opts)

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("nocode/bun: list failed jobs: %w", err)
	}
	return fromJobModels(models)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	q := s.db.NewSelect().TableExpr("nocode_jobs")
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("nocode/bun: count jobs: %w", err)
	}
	return int64(count), nil
}

func paginate(q *bun.SelectQuery, opts job.ListOpts) *bun.SelectQuery {
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	return q
}
