package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// EnqueueJob stores the job as a Hash and indexes it.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	scheduledFor := j.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = time.Now().UTC()
	}

	args := []any{jID, j.CreatedAt.UnixMilli(), scheduledFor.UnixMilli(), string(j.Status)}
	for k, v := range jobToMap(j, scheduledFor) {
		args = append(args, k, v)
	}

	added, err := enqueueScript.Run(ctx, s.client,
		[]string{jobKey(jID), jobIDsKey, statusKey(string(j.Status)), scheduledKey},
		args...,
	).Int()
	if err != nil {
		return fmt.Errorf("nocode/redis: enqueue job: %w", err)
	}
	if added == 0 {
		return nocode.ErrJobAlreadyExists
	}
	return nil
}

// ClaimNext atomically claims the next eligible job.
func (s *Store) ClaimNext(ctx context.Context, workerID id.WorkerID) (*job.Job, error) {
	now := time.Now().UTC()
	reply, err := claimScript.Run(ctx, s.client,
		[]string{
			scheduledKey, readyKey,
			statusKey(string(job.StatusPending)), statusKey(string(job.StatusProcessing)),
			heartbeatsKey,
		},
		now.UnixMilli(), formatTime(now), workerID.String(), jobKeyPrefix,
	).StringSlice()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil //nolint:nilnil // nothing eligible is not an error
		}
		return nil, fmt.Errorf("nocode/redis: claim job: %w", err)
	}

	fields := make(map[string]string, len(reply)/2)
	for i := 0; i+1 < len(reply); i += 2 {
		fields[reply[i]] = reply[i+1]
	}
	return mapToJob(fields)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// MarkCompleted moves a processing job to completed.
func (s *Store) MarkCompleted(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	return s.mark(ctx, jobID, workerID, job.StatusCompleted, "", 0, time.Time{})
}

// MarkFailedRetryable returns a processing job to pending.
func (s *Store) MarkFailedRetryable(ctx context.Context, jobID id.JobID, workerID id.WorkerID, errMsg string, attempts int, scheduledFor time.Time) error {
	return s.mark(ctx, jobID, workerID, job.StatusPending, errMsg, attempts, scheduledFor)
}

// MarkFailedPermanent moves a processing job to failed.
func (s *Store) MarkFailedPermanent(ctx context.Context, jobID id.JobID, workerID id.WorkerID, errMsg string, attempts int) error {
	return s.mark(ctx, jobID, workerID, job.StatusFailed, errMsg, attempts, time.Time{})
}

func (s *Store) mark(ctx context.Context, jobID id.JobID, workerID id.WorkerID, target job.Status, errMsg string, attempts int, scheduledFor time.Time) error {
	jID := jobID.String()
	now := time.Now().UTC()
	if scheduledFor.IsZero() {
		scheduledFor = now
	}
	reply, err := markScript.Run(ctx, s.client,
		[]string{
			jobKey(jID), statusKey(string(job.StatusProcessing)), statusKey(string(target)),
			heartbeatsKey, scheduledKey, failedKey,
		},
		jID, string(target), formatTime(now), now.UnixMilli(),
		errMsg, attempts, scheduledFor.UTC().UnixMilli(), formatTime(scheduledFor.UTC()),
		workerID.String(),
	).Text()
	if err != nil {
		return fmt.Errorf("nocode/redis: mark %s: %w", target, err)
	}
	return outcome(reply)
}

// HeartbeatJob refreshes the heartbeat of a processing job owned by workerID.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	jID := jobID.String()
	now := time.Now().UTC()
	reply, err := heartbeatScript.Run(ctx, s.client,
		[]string{jobKey(jID), heartbeatsKey},
		jID, workerID.String(), formatTime(now), now.UnixMilli(),
	).Text()
	if err != nil {
		return fmt.Errorf("nocode/redis: heartbeat job: %w", err)
	}
	return outcome(reply)
}

// RequeueStale recovers processing jobs whose heartbeat is older than threshold.
func (s *Store) RequeueStale(ctx context.Context, threshold time.Duration) (job.SweepResult, error) {
	now := time.Now().UTC()
	reply, err := requeueScript.Run(ctx, s.client,
		[]string{
			heartbeatsKey,
			statusKey(string(job.StatusProcessing)), statusKey(string(job.StatusPending)), statusKey(string(job.StatusFailed)),
			scheduledKey, failedKey,
		},
		now.Add(-threshold).UnixMilli(), formatTime(now), now.UnixMilli(), job.StaleErrorMessage, jobKeyPrefix,
	).Slice()
	if err != nil {
		return job.SweepResult{}, fmt.Errorf("nocode/redis: requeue stale jobs: %w", err)
	}
	if len(reply) == 0 {
		return job.SweepResult{}, nil
	}

	var res job.SweepResult
	if n, ok := reply[0].(int64); ok {
		res.Requeued = n
	}
	for _, v := range reply[1:] {
		raw, _ := v.(string)
		jobID, err := id.ParseJobID(raw)
		if err != nil {
			return job.SweepResult{}, fmt.Errorf("nocode/redis: parse stale job id: %w", err)
		}
		res.Failed = append(res.Failed, jobID)
	}
	return res, nil
}

// ResetToPending moves a failed job back to pending with a fresh budget.
func (s *Store) ResetToPending(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	now := time.Now().UTC()
	reply, err := resetScript.Run(ctx, s.client,
		[]string{
			jobKey(jID), statusKey(string(job.StatusFailed)), statusKey(string(job.StatusPending)),
			failedKey, scheduledKey,
		},
		jID, formatTime(now), now.UnixMilli(),
	).Text()
	if err != nil {
		return fmt.Errorf("nocode/redis: reset job: %w", err)
	}
	return outcome(reply)
}

// ListJobsByStatus returns jobs with the given status, oldest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	start, stop := window(opts)
	ids, err := s.client.ZRange(ctx, statusKey(string(status)), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("nocode/redis: list jobs by status: %w", err)
	}
	return s.getJobs(ctx, ids)
}

// ListFailed returns failed jobs, most recently completed first.
func (s *Store) ListFailed(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	start, stop := window(opts)
	ids, err := s.client.ZRevRange(ctx, failedKey, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("nocode/redis: list failed jobs: %w", err)
	}
	return s.getJobs(ctx, ids)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	var (
		n   int64
		err error
	)
	if opts.Status != "" {
		n, err = s.client.ZCard(ctx, statusKey(string(opts.Status))).Result()
	} else {
		n, err = s.client.SCard(ctx, jobIDsKey).Result()
	}
	if err != nil {
		return 0, fmt.Errorf("nocode/redis: count jobs: %w", err)
	}
	return n, nil
}

// ── helpers ──

// outcome maps a transition script reply onto the store error contract.
func outcome(reply string) error {
	switch reply {
	case "ok", "noop":
		return nil
	case "missing":
		return nocode.ErrJobNotFound
	default:
		return nocode.ErrInvalidState
	}
}

// window converts pagination options into an inclusive ZRANGE span.
func window(opts job.ListOpts) (start, stop int64) {
	start = int64(opts.Offset)
	stop = -1
	if opts.Limit > 0 {
		stop = start + int64(opts.Limit) - 1
	}
	return start, stop
}

// jobRank orders equal-priority jobs by creation time, then ID.
func jobRank(createdMs int64, jID string) string {
	return fmt.Sprintf("%016d:%s", createdMs, jID)
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
	return t
}

func parseTimePtr(v string) *time.Time {
	if v == "" {
		return nil
	}
	t := parseTime(v)
	return &t
}

func jobToMap(j *job.Job, scheduledFor time.Time) map[string]any {
	jID := j.ID.String()
	m := map[string]any{
		"id":            jID,
		"type":          string(j.Type),
		"payload":       string(j.Payload),
		"status":        string(j.Status),
		"priority":      strconv.Itoa(j.Priority),
		"attempts":      strconv.Itoa(j.Attempts),
		"max_attempts":  strconv.Itoa(j.MaxAttempts),
		"scheduled_for": formatTime(scheduledFor),
		"error":         j.Error,
		"worker_id":     j.WorkerID.String(),
		"timeout":       strconv.FormatInt(int64(j.Timeout), 10),
		"created_at":    formatTime(j.CreatedAt),
		"updated_at":    formatTime(j.UpdatedAt),
		"created_ms":    strconv.FormatInt(j.CreatedAt.UnixMilli(), 10),
		"rank":          jobRank(j.CreatedAt.UnixMilli(), jID),
	}
	if j.StartedAt != nil {
		m["started_at"] = formatTime(*j.StartedAt)
	}
	if j.CompletedAt != nil {
		m["completed_at"] = formatTime(*j.CompletedAt)
	}
	if j.HeartbeatAt != nil {
		m["heartbeat_at"] = formatTime(*j.HeartbeatAt)
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("nocode/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, nocode.ErrJobNotFound
	}
	return mapToJob(vals)
}

func (s *Store) getJobs(ctx context.Context, ids []string) ([]*job.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, jID := range ids {
		cmds[i] = pipe.HGetAll(ctx, jobKey(jID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("nocode/redis: load jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		j, err := mapToJob(vals)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("nocode/redis: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])           //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])           //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"])    //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: nocode.Entity{
			CreatedAt: parseTime(m["created_at"]),
			UpdatedAt: parseTime(m["updated_at"]),
		},
		ID:           jID,
		Type:         job.Type(m["type"]),
		Payload:      []byte(m["payload"]),
		Status:       job.Status(m["status"]),
		Priority:     priority,
		Attempts:     attempts,
		MaxAttempts:  maxAttempts,
		ScheduledFor: parseTime(m["scheduled_for"]),
		StartedAt:    parseTimePtr(m["started_at"]),
		CompletedAt:  parseTimePtr(m["completed_at"]),
		HeartbeatAt:  parseTimePtr(m["heartbeat_at"]),
		Error:        m["error"],
		Timeout:      time.Duration(timeout),
	}
	if wid := m["worker_id"]; wid != "" {
		j.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	return j, nil
}
