package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
)

const jobColumns = `
	id, type, payload, status, priority, attempts, max_attempts,
	scheduled_for, started_at, completed_at, heartbeat_at,
	error, worker_id, timeout, created_at, updated_at`

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	scheduledFor := j.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO nocode_jobs (`+jobColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16
		)`,
		j.ID.String(), string(j.Type), jsonOrNull(j.Payload), string(j.Status), j.Priority, j.Attempts, j.MaxAttempts,
		scheduledFor, j.StartedAt, j.CompletedAt, j.HeartbeatAt,
		j.Error, j.WorkerID.String(), j.Timeout.Nanoseconds(), j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return nocode.ErrJobAlreadyExists
		}
		return fmt.Errorf("nocode/postgres: enqueue job: %w", err)
	}
	return nil
}

// ClaimNext atomically claims one eligible job. The sub-select locks the
// chosen row and skips rows other transactions already hold, so
// concurrent claimers each get a different job.
func (s *Store) ClaimNext(ctx context.Context, workerID id.WorkerID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE nocode_jobs
		SET status = 'processing', started_at = NOW(), heartbeat_at = NOW(),
		    worker_id = $1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM nocode_jobs
			WHERE status = 'pending' AND scheduled_for <= NOW()
			ORDER BY priority DESC, created_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING`+jobColumns,
		workerID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil //nolint:nilnil // nothing eligible is not an error
		}
		return nil, fmt.Errorf("nocode/postgres: claim job: %w", err)
	}
	return j, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+jobColumns+` FROM nocode_jobs WHERE id = $1`, jobID.String())

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nocode.ErrJobNotFound
		}
		return nil, fmt.Errorf("nocode/postgres: get job: %w", err)
	}
	return j, nil
}

// MarkCompleted moves a processing job to completed.
func (s *Store) MarkCompleted(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	return s.transition(ctx, "mark completed", jobID, job.StatusCompleted, `
		UPDATE nocode_jobs
		SET status = 'completed', completed_at = NOW(), error = '',
		    worker_id = '', heartbeat_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND worker_id = $2`,
		jobID.String(), workerID.String(),
	)
}

// MarkFailedRetryable returns a processing job to pending.
func (s *Store) MarkFailedRetryable(ctx context.Context, jobID id.JobID, workerID id.WorkerID, errMsg string, attempts int, scheduledFor time.Time) error {
	return s.transition(ctx, "mark retryable", jobID, job.StatusPending, `
		UPDATE nocode_jobs
		SET status = 'pending', error = $2,
		    attempts = LEAST(GREATEST(attempts, $3), max_attempts),
		    scheduled_for = $4, worker_id = '', heartbeat_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND worker_id = $5`,
		jobID.String(), errMsg, attempts, scheduledFor.UTC(), workerID.String(),
	)
}

// MarkFailedPermanent moves a processing job to failed.
func (s *Store) MarkFailedPermanent(ctx context.Context, jobID id.JobID, workerID id.WorkerID, errMsg string, attempts int) error {
	return s.transition(ctx, "mark failed", jobID, job.StatusFailed, `
		UPDATE nocode_jobs
		SET status = 'failed', error = $2,
		    attempts = LEAST(GREATEST(attempts, $3), max_attempts),
		    completed_at = NOW(), worker_id = '', heartbeat_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND worker_id = $4`,
		jobID.String(), errMsg, attempts, workerID.String(),
	)
}

// transition runs a conditional UPDATE. When it touches no row the current
// status decides the outcome: already at target is a no-op, missing is
// ErrJobNotFound, anything else (including a claim held by another worker)
// ErrInvalidState.
func (s *Store) transition(ctx context.Context, op string, jobID id.JobID, target job.Status, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("nocode/postgres: %s: %w", op, err)
	}
	if tag.RowsAffected() > 0 {
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
	err := s.pool.QueryRow(ctx, `SELECT status FROM nocode_jobs WHERE id = $1`, jobID.String()).Scan(&status)
	if err != nil {
		if isNoRows(err) {
			return "", nocode.ErrJobNotFound
		}
		return "", fmt.Errorf("nocode/postgres: job status: %w", err)
	}
	return job.Status(status), nil
}

// HeartbeatJob refreshes the heartbeat of a processing job owned by workerID.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE nocode_jobs SET heartbeat_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND worker_id = $2`,
		jobID.String(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("nocode/postgres: heartbeat job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.jobStatus(ctx, jobID); err != nil {
		return err
	}
	return nocode.ErrInvalidState
}

// RequeueStale recovers processing jobs whose heartbeat is older than
// threshold in one statement. SET expressions see the pre-update row, so
// attempts + 1 below refers to the attempt being abandoned; RETURNING sees
// the new row.
func (s *Store) RequeueStale(ctx context.Context, threshold time.Duration) (job.SweepResult, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE nocode_jobs SET
			status        = CASE WHEN attempts + 1 < max_attempts THEN 'pending' ELSE 'failed' END,
			scheduled_for = CASE WHEN attempts + 1 < max_attempts THEN NOW() ELSE scheduled_for END,
			completed_at  = CASE WHEN attempts + 1 < max_attempts THEN NULL ELSE NOW() END,
			attempts      = LEAST(attempts + 1, max_attempts),
			error         = $2,
			worker_id     = '',
			heartbeat_at  = NULL,
			updated_at    = NOW()
		WHERE status = 'processing'
		  AND COALESCE(heartbeat_at, started_at, updated_at) < NOW() - make_interval(secs => $1::double precision)
		RETURNING id, status`,
		threshold.Seconds(), job.StaleErrorMessage,
	)
	if err != nil {
		return job.SweepResult{}, fmt.Errorf("nocode/postgres: requeue stale jobs: %w", err)
	}
	defer rows.Close()

	var res job.SweepResult
	for rows.Next() {
		var rawID, status string
		if err := rows.Scan(&rawID, &status); err != nil {
			return job.SweepResult{}, fmt.Errorf("nocode/postgres: scan stale job: %w", err)
		}
		if job.Status(status) != job.StatusFailed {
			res.Requeued++
			continue
		}
		jobID, err := id.ParseJobID(rawID)
		if err != nil {
			return job.SweepResult{}, fmt.Errorf("nocode/postgres: parse stale job id: %w", err)
		}
		res.Failed = append(res.Failed, jobID)
	}
	if err := rows.Err(); err != nil {
		return job.SweepResult{}, fmt.Errorf("nocode/postgres: requeue stale jobs: %w", err)
	}
	return res, nil
}

// ResetToPending moves a failed job back to pending with a fresh budget.
func (s *Store) ResetToPending(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE nocode_jobs SET
			status = 'pending', attempts = 0, error = '',
			started_at = NULL, completed_at = NULL, heartbeat_at = NULL,
			worker_id = '', scheduled_for = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'failed'`,
		jobID.String(),
	)
	if err != nil {
		return fmt.Errorf("nocode/postgres: reset job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.jobStatus(ctx, jobID); err != nil {
		return err
	}
	return nocode.ErrInvalidState
}

// ListJobsByStatus returns jobs with the given status, oldest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	query, args := paginate(`SELECT`+jobColumns+` FROM nocode_jobs WHERE status = $1
		ORDER BY created_at ASC, id ASC`, []any{string(status)}, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("nocode/postgres: list jobs by status: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListFailed returns failed jobs, most recently completed first.
func (s *Store) ListFailed(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query, args := paginate(`SELECT`+jobColumns+` FROM nocode_jobs WHERE status = 'failed'
		ORDER BY completed_at DESC NULLS LAST, id DESC`, nil, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("nocode/postgres: list failed jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func paginate(query string, args []any, opts job.ListOpts) (string, []any) {
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM nocode_jobs`
	var args []any
	if opts.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(opts.Status))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("nocode/postgres: count jobs: %w", err)
	}
	return count, nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		typeStr   string
		statusStr string
		workerStr string
		payload   []byte
		timeoutNs int64
	)
	err := row.Scan(
		&idStr, &typeStr, &payload, &statusStr, &j.Priority, &j.Attempts, &j.MaxAttempts,
		&j.ScheduledFor, &j.StartedAt, &j.CompletedAt, &j.HeartbeatAt,
		&j.Error, &workerStr, &timeoutNs, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Type = job.Type(typeStr)
	j.Status = job.Status(statusStr)
	j.Payload = payload
	j.Timeout = time.Duration(timeoutNs)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("nocode/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	if workerStr != "" {
		if parsedWorker, workerErr := id.ParseWorkerID(workerStr); workerErr == nil {
			j.WorkerID = parsedWorker
		}
	}
	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("nocode/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("nocode/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
