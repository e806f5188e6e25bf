package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
	"github.com/svetoslav0421/nocode-claude-ai/result"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store    = (*Store)(nil)
	_ result.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
// A single mutex makes every claim atomic within the process.
type Store struct {
	mu sync.Mutex

	jobs    map[string]*job.Job
	records map[string]*result.Record

	now func() time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:    make(map[string]*job.Job),
		records: make(map[string]*result.Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new job in pending state.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return nocode.ErrJobAlreadyExists
	}
	cp := *j
	if cp.ScheduledFor.IsZero() {
		cp.ScheduledFor = m.now()
	}
	m.jobs[key] = &cp
	return nil
}

// ClaimNext picks the best eligible job and moves it to processing while
// holding the store lock.
func (m *Store) ClaimNext(_ context.Context, workerID id.WorkerID) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var best *job.Job
	for _, j := range m.jobs {
		if !j.Eligible(now) {
			continue
		}
		if best == nil || claimsBefore(j, best) {
			best = j
		}
	}
	if best == nil {
		return nil, nil //nolint:nilnil // nothing eligible is not an error
	}

	best.Status = job.StatusProcessing
	best.StartedAt = &now
	best.HeartbeatAt = &now
	best.WorkerID = workerID
	best.UpdatedAt = now

	// Return a copy so callers can mutate without racing with the store.
	cp := *best
	return &cp, nil
}

// claimsBefore orders by priority DESC, creation ASC, ID ASC.
func claimsBefore(a, b *job.Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, nocode.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// transition applies fn to a job processing under workerID. A job already
// in target is left untouched.
func (m *Store) transition(jobID id.JobID, workerID id.WorkerID, target job.Status, fn func(j *job.Job, now time.Time)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nocode.ErrJobNotFound
	}
	if j.Status == target {
		return nil
	}
	if j.Status != job.StatusProcessing || j.WorkerID.String() != workerID.String() {
		return nocode.ErrInvalidState
	}
	now := m.now()
	fn(j, now)
	j.Status = target
	j.WorkerID = id.Nil
	j.HeartbeatAt = nil
	j.UpdatedAt = now
	return nil
}

// MarkCompleted moves a processing job to completed.
func (m *Store) MarkCompleted(_ context.Context, jobID id.JobID, workerID id.WorkerID) error {
	return m.transition(jobID, workerID, job.StatusCompleted, func(j *job.Job, now time.Time) {
		j.CompletedAt = &now
		j.Error = ""
	})
}

// MarkFailedRetryable returns a processing job to pending.
func (m *Store) MarkFailedRetryable(_ context.Context, jobID id.JobID, workerID id.WorkerID, errMsg string, attempts int, scheduledFor time.Time) error {
	return m.transition(jobID, workerID, job.StatusPending, func(j *job.Job, _ time.Time) {
		j.Attempts = job.ClampAttempts(j.Attempts, attempts, j.MaxAttempts)
		j.Error = errMsg
		j.ScheduledFor = scheduledFor.UTC()
	})
}

// MarkFailedPermanent moves a processing job to failed.
func (m *Store) MarkFailedPermanent(_ context.Context, jobID id.JobID, workerID id.WorkerID, errMsg string, attempts int) error {
	return m.transition(jobID, workerID, job.StatusFailed, func(j *job.Job, now time.Time) {
		j.Attempts = job.ClampAttempts(j.Attempts, attempts, j.MaxAttempts)
		j.Error = errMsg
		j.CompletedAt = &now
	})
}

// HeartbeatJob refreshes the heartbeat of a processing job owned by workerID.
func (m *Store) HeartbeatJob(_ context.Context, jobID id.JobID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nocode.ErrJobNotFound
	}
	if j.Status != job.StatusProcessing || j.WorkerID.String() != workerID.String() {
		return nocode.ErrInvalidState
	}
	now := m.now()
	j.HeartbeatAt = &now
	return nil
}

// RequeueStale recovers processing jobs whose heartbeat is older than
// threshold.
func (m *Store) RequeueStale(_ context.Context, threshold time.Duration) (job.SweepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-threshold)
	var res job.SweepResult
	for _, j := range m.jobs {
		if j.Status != job.StatusProcessing || !j.ClaimedBefore().Before(cutoff) {
			continue
		}
		j.Error = job.StaleErrorMessage
		j.WorkerID = id.Nil
		j.HeartbeatAt = nil
		j.UpdatedAt = now
		if j.HasAttemptsLeft() {
			j.Attempts++
			j.Status = job.StatusPending
			j.ScheduledFor = now
			res.Requeued++
		} else {
			j.Attempts = job.ClampAttempts(j.Attempts, j.Attempts+1, j.MaxAttempts)
			j.Status = job.StatusFailed
			j.CompletedAt = &now
			res.Failed = append(res.Failed, j.ID)
		}
	}
	return res, nil
}

// ResetToPending moves a failed job back to pending with a fresh budget.
func (m *Store) ResetToPending(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nocode.ErrJobNotFound
	}
	if j.Status != job.StatusFailed {
		return nocode.ErrInvalidState
	}
	now := m.now()
	j.Status = job.StatusPending
	j.Attempts = 0
	j.Error = ""
	j.StartedAt = nil
	j.CompletedAt = nil
	j.HeartbeatAt = nil
	j.WorkerID = id.Nil
	j.ScheduledFor = now
	j.UpdatedAt = now
	return nil
}

// ListJobsByStatus returns jobs with the given status, oldest first.
func (m *Store) ListJobsByStatus(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*job.Job
	for _, j := range m.jobs {
		if j.Status == status {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		}
		return out[i].ID.String() < out[k].ID.String()
	})
	return paginate(out, opts), nil
}

// ListFailed returns failed jobs, most recently completed first.
func (m *Store) ListFailed(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*job.Job
	for _, j := range m.jobs {
		if j.Status == job.StatusFailed {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		a, b := completedAt(out[i]), completedAt(out[k])
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].ID.String() > out[k].ID.String()
	})
	return paginate(out, opts), nil
}

func completedAt(j *job.Job) time.Time {
	if j.CompletedAt == nil {
		return time.Time{}
	}
	return *j.CompletedAt
}

func paginate(jobs []*job.Job, opts job.ListOpts) []*job.Job {
	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}
	return jobs
}

// CountJobs returns the number of jobs matching opts.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if opts.Status == "" {
		return int64(len(m.jobs)), nil
	}
	var n int64
	for _, j := range m.jobs {
		if j.Status == opts.Status {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Result Store
// ──────────────────────────────────────────────────

// CreateRecord persists a new result record.
func (m *Store) CreateRecord(_ context.Context, r *result.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[r.ID]; exists {
		return nocode.ErrRecordAlreadyExists
	}
	m.records[r.ID] = copyRecord(r)
	return nil
}

// GetRecord returns a record by ID.
func (m *Store) GetRecord(_ context.Context, recordID string) (*result.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[recordID]
	if !ok {
		return nil, nocode.ErrRecordNotFound
	}
	return copyRecord(r), nil
}

// UpdateRecord replaces a stored record.
func (m *Store) UpdateRecord(_ context.Context, r *result.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[r.ID]; !ok {
		return nocode.ErrRecordNotFound
	}
	m.records[r.ID] = copyRecord(r)
	return nil
}

func copyRecord(r *result.Record) *result.Record {
	cp := *r
	cp.Issues = slices.Clone(r.Issues)
	if r.Valid != nil {
		v := *r.Valid
		cp.Valid = &v
	}
	return &cp
}
