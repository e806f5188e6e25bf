// Package storetest is the behavioral suite every store backend must pass.
// Backend packages call Run from their own tests with a constructor that
// returns an empty, migrated store.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
	"github.com/svetoslav0421/nocode-claude-ai/result"
	"github.com/svetoslav0421/nocode-claude-ai/store"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"EnqueueAndGet", testEnqueueAndGet},
		{"ClaimOrder", testClaimOrder},
		{"ClaimSkipsFutureJobs", testClaimSkipsFuture},
		{"ClaimEmpty", testClaimEmpty},
		{"ConcurrentClaims", testConcurrentClaims},
		{"MarkCompleted", testMarkCompleted},
		{"MarkFailedRetryable", testMarkFailedRetryable},
		{"MarkFailedPermanent", testMarkFailedPermanent},
		{"AttemptsClamped", testAttemptsClamped},
		{"Heartbeat", testHeartbeat},
		{"RequeueStale", testRequeueStale},
		{"StaleOwnerCannotMark", testStaleOwnerCannotMark},
		{"ResetToPending", testResetToPending},
		{"ListFailedOrder", testListFailedOrder},
		{"ListJobsByStatus", testListJobsByStatus},
		{"CountJobs", testCountJobs},
		{"Records", testRecords},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			tt.fn(t, s)
		})
	}
}

var workerA = id.NewWorkerID()

// NewJob builds a pending job created at created with the given priority.
func NewJob(t job.Type, priority int, created time.Time) *job.Job {
	return &job.Job{
		Entity:       nocode.Entity{CreatedAt: created.UTC(), UpdatedAt: created.UTC()},
		ID:           id.NewJobID(),
		Type:         t,
		Payload:      []byte(`{"resultId":"r1","prompt":"button"}`),
		Status:       job.StatusPending,
		Priority:     priority,
		MaxAttempts:  3,
		ScheduledFor: created.UTC(),
	}
}

func mustEnqueue(t *testing.T, s store.Store, j *job.Job) {
	t.Helper()
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
}

func mustClaim(t *testing.T, s store.Store) *job.Job {
	t.Helper()
	j, err := s.ClaimNext(context.Background(), workerA)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if j == nil {
		t.Fatal("ClaimNext: expected a job")
	}
	return j
}

func mustGet(t *testing.T, s store.Store, jobID id.JobID) *job.Job {
	t.Helper()
	j, err := s.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return j
}

func past(d time.Duration) time.Time { return time.Now().UTC().Add(-d) }

func testEnqueueAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob(job.TypeGeneration, 5, past(time.Second))
	mustEnqueue(t, s, j)

	got := mustGet(t, s, j.ID)
	if got.ID.String() != j.ID.String() || got.Type != job.TypeGeneration {
		t.Errorf("got %s/%s", got.ID, got.Type)
	}
	if got.Status != job.StatusPending || got.Attempts != 0 || got.MaxAttempts != 3 || got.Priority != 5 {
		t.Errorf("got status=%s attempts=%d max=%d priority=%d", got.Status, got.Attempts, got.MaxAttempts, got.Priority)
	}
	if string(got.Payload) == "" {
		t.Error("payload lost")
	}

	if err := s.EnqueueJob(ctx, j); !errors.Is(err, nocode.ErrJobAlreadyExists) {
		t.Errorf("duplicate enqueue: got %v, want ErrJobAlreadyExists", err)
	}
	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, nocode.ErrJobNotFound) {
		t.Errorf("missing job: got %v, want ErrJobNotFound", err)
	}
}

func testClaimOrder(t *testing.T, s store.Store) {
	base := past(time.Minute)
	low := NewJob(job.TypeGeneration, 0, base)
	highLate := NewJob(job.TypeGeneration, 10, base.Add(2*time.Second))
	highEarly := NewJob(job.TypeGeneration, 10, base.Add(time.Second))
	for _, j := range []*job.Job{low, highLate, highEarly} {
		mustEnqueue(t, s, j)
	}

	want := []id.JobID{highEarly.ID, highLate.ID, low.ID}
	for i, w := range want {
		got := mustClaim(t, s)
		if got.ID.String() != w.String() {
			t.Fatalf("claim %d: got %s, want %s", i, got.ID, w)
		}
		if got.Status != job.StatusProcessing || got.StartedAt == nil {
			t.Errorf("claim %d: status=%s startedAt=%v", i, got.Status, got.StartedAt)
		}
		if got.WorkerID.String() != workerA.String() {
			t.Errorf("claim %d: worker = %s", i, got.WorkerID)
		}
	}
}

func testClaimSkipsFuture(t *testing.T, s store.Store) {
	j := NewJob(job.TypeGeneration, 0, past(time.Second))
	j.ScheduledFor = time.Now().UTC().Add(time.Hour)
	mustEnqueue(t, s, j)

	got, err := s.ClaimNext(context.Background(), workerA)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("claimed job scheduled in the future: %s", got.ID)
	}
}

func testClaimEmpty(t *testing.T, s store.Store) {
	got, err := s.ClaimNext(context.Background(), workerA)
	if err != nil || got != nil {
		t.Fatalf("ClaimNext on empty store = %v, %v; want nil, nil", got, err)
	}
}

func testConcurrentClaims(t *testing.T, s store.Store) {
	const jobs, claimers = 40, 8
	base := past(time.Minute)
	for i := range jobs {
		mustEnqueue(t, s, NewJob(job.TypeGeneration, i%3, base.Add(time.Duration(i)*time.Millisecond)))
	}

	var (
		mu      sync.Mutex
		claimed = make(map[string]int)
		wg      sync.WaitGroup
		errs    = make(chan error, claimers)
	)
	for range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker := id.NewWorkerID()
			for {
				j, err := s.ClaimNext(context.Background(), worker)
				if err != nil {
					errs <- err
					return
				}
				if j == nil {
					return
				}
				mu.Lock()
				claimed[j.ID.String()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("ClaimNext: %v", err)
	}

	if len(claimed) != jobs {
		t.Fatalf("claimed %d distinct jobs, want %d", len(claimed), jobs)
	}
	for jobID, n := range claimed {
		if n != 1 {
			t.Errorf("job %s claimed %d times", jobID, n)
		}
	}
}

func testMarkCompleted(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob(job.TypeGeneration, 0, past(time.Second))
	mustEnqueue(t, s, j)

	if err := s.MarkCompleted(ctx, j.ID, workerA); !errors.Is(err, nocode.ErrInvalidState) {
		t.Errorf("MarkCompleted on pending: got %v, want ErrInvalidState", err)
	}

	mustClaim(t, s)
	if err := s.MarkCompleted(ctx, j.ID, workerA); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := s.MarkCompleted(ctx, j.ID, workerA); err != nil {
		t.Errorf("second MarkCompleted should be a no-op, got %v", err)
	}

	got := mustGet(t, s, j.ID)
	if got.Status != job.StatusCompleted || got.CompletedAt == nil {
		t.Errorf("status=%s completedAt=%v", got.Status, got.CompletedAt)
	}
	if got.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", got.Attempts)
	}

	if err := s.MarkFailedPermanent(ctx, j.ID, workerA, "late", 1); !errors.Is(err, nocode.ErrInvalidState) {
		t.Errorf("MarkFailedPermanent on completed: got %v, want ErrInvalidState", err)
	}
	if err := s.MarkCompleted(ctx, id.NewJobID(), workerA); !errors.Is(err, nocode.ErrJobNotFound) {
		t.Errorf("MarkCompleted on missing: got %v, want ErrJobNotFound", err)
	}
}

func testMarkFailedRetryable(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob(job.TypeGeneration, 0, past(time.Second))
	mustEnqueue(t, s, j)
	mustClaim(t, s)

	next := time.Now().UTC().Add(time.Hour)
	if err := s.MarkFailedRetryable(ctx, j.ID, workerA, "rate limited", 1, next); err != nil {
		t.Fatalf("MarkFailedRetryable: %v", err)
	}
	if err := s.MarkFailedRetryable(ctx, j.ID, workerA, "rate limited", 1, next); err != nil {
		t.Errorf("second MarkFailedRetryable should be a no-op, got %v", err)
	}

	got := mustGet(t, s, j.ID)
	if got.Status != job.StatusPending || got.Attempts != 1 || got.Error != "rate limited" {
		t.Errorf("status=%s attempts=%d error=%q", got.Status, got.Attempts, got.Error)
	}
	if !got.ScheduledFor.After(time.Now()) {
		t.Errorf("scheduledFor = %v, want in the future", got.ScheduledFor)
	}

	claimed, err := s.ClaimNext(ctx, workerA)
	if err != nil || claimed != nil {
		t.Errorf("delayed retry was claimable: %v, %v", claimed, err)
	}
}

func testMarkFailedPermanent(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob(job.TypeGeneration, 0, past(time.Second))
	mustEnqueue(t, s, j)
	mustClaim(t, s)

	if err := s.MarkFailedPermanent(ctx, j.ID, workerA, "bad payload", 1); err != nil {
		t.Fatalf("MarkFailedPermanent: %v", err)
	}
	if err := s.MarkFailedPermanent(ctx, j.ID, workerA, "bad payload", 1); err != nil {
		t.Errorf("second MarkFailedPermanent should be a no-op, got %v", err)
	}
	got := mustGet(t, s, j.ID)
	if got.Status != job.StatusFailed || got.Error != "bad payload" || got.CompletedAt == nil || got.Attempts != 1 {
		t.Errorf("status=%s error=%q completedAt=%v attempts=%d", got.Status, got.Error, got.CompletedAt, got.Attempts)
	}
}

func testAttemptsClamped(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob(job.TypeGeneration, 0, past(time.Second))
	mustEnqueue(t, s, j)
	mustClaim(t, s)

	if err := s.MarkFailedPermanent(ctx, j.ID, workerA, "boom", 99); err != nil {
		t.Fatal(err)
	}
	if got := mustGet(t, s, j.ID); got.Attempts != got.MaxAttempts {
		t.Errorf("attempts = %d, want clamp to %d", got.Attempts, got.MaxAttempts)
	}
}

func testHeartbeat(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob(job.TypeGeneration, 0, past(time.Second))
	mustEnqueue(t, s, j)

	if err := s.HeartbeatJob(ctx, j.ID, workerA); !errors.Is(err, nocode.ErrInvalidState) {
		t.Errorf("heartbeat on pending: got %v, want ErrInvalidState", err)
	}
	claimed := mustClaim(t, s)
	time.Sleep(10 * time.Millisecond)
	if err := s.HeartbeatJob(ctx, j.ID, workerA); err != nil {
		t.Fatalf("HeartbeatJob: %v", err)
	}
	got := mustGet(t, s, j.ID)
	if got.HeartbeatAt == nil || !got.HeartbeatAt.After(*claimed.StartedAt) {
		t.Errorf("heartbeat not advanced: %v vs start %v", got.HeartbeatAt, claimed.StartedAt)
	}
	if err := s.HeartbeatJob(ctx, j.ID, id.NewWorkerID()); !errors.Is(err, nocode.ErrInvalidState) {
		t.Errorf("heartbeat from other worker: got %v, want ErrInvalidState", err)
	}
	if err := s.HeartbeatJob(ctx, id.NewJobID(), workerA); !errors.Is(err, nocode.ErrJobNotFound) {
		t.Errorf("heartbeat on missing: got %v, want ErrJobNotFound", err)
	}
}

func testRequeueStale(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := past(time.Minute)
	retryable := NewJob(job.TypeGeneration, 1, base)
	exhausted := NewJob(job.TypeGeneration, 0, base.Add(time.Second))
	exhausted.MaxAttempts = 1
	fresh := NewJob(job.TypeGeneration, 0, base.Add(2*time.Second))
	for _, j := range []*job.Job{retryable, exhausted} {
		mustEnqueue(t, s, j)
	}
	mustClaim(t, s)
	mustClaim(t, s)

	time.Sleep(60 * time.Millisecond)
	mustEnqueue(t, s, fresh)
	mustClaim(t, s)

	res, err := s.RequeueStale(ctx, 40*time.Millisecond)
	if err != nil {
		t.Fatalf("RequeueStale: %v", err)
	}
	if res.Requeued != 1 || res.Total() != 2 {
		t.Fatalf("RequeueStale = %+v, want 1 requeued and 1 failed", res)
	}
	if len(res.Failed) != 1 || res.Failed[0].String() != exhausted.ID.String() {
		t.Fatalf("failed = %v, want [%s]", res.Failed, exhausted.ID)
	}

	r := mustGet(t, s, retryable.ID)
	if r.Status != job.StatusPending || r.Attempts != 1 || r.Error == "" {
		t.Errorf("retryable: status=%s attempts=%d error=%q", r.Status, r.Attempts, r.Error)
	}
	e := mustGet(t, s, exhausted.ID)
	if e.Status != job.StatusFailed || e.Attempts != 1 || e.CompletedAt == nil {
		t.Errorf("exhausted: status=%s attempts=%d completedAt=%v", e.Status, e.Attempts, e.CompletedAt)
	}
	if f := mustGet(t, s, fresh.ID); f.Status != job.StatusProcessing {
		t.Errorf("fresh job should stay processing, got %s", f.Status)
	}
}

func testStaleOwnerCannotMark(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob(job.TypeGeneration, 0, past(time.Minute))
	mustEnqueue(t, s, j)
	mustClaim(t, s)

	time.Sleep(60 * time.Millisecond)
	if _, err := s.RequeueStale(ctx, 40*time.Millisecond); err != nil {
		t.Fatalf("RequeueStale: %v", err)
	}
	workerB := id.NewWorkerID()
	reclaimed, err := s.ClaimNext(ctx, workerB)
	if err != nil || reclaimed == nil {
		t.Fatalf("reclaim: %v, %v", reclaimed, err)
	}

	if err := s.MarkFailedRetryable(ctx, j.ID, workerA, "late", 1, time.Now().UTC()); !errors.Is(err, nocode.ErrInvalidState) {
		t.Errorf("MarkFailedRetryable by previous owner: got %v, want ErrInvalidState", err)
	}
	if err := s.MarkFailedPermanent(ctx, j.ID, workerA, "late", 1); !errors.Is(err, nocode.ErrInvalidState) {
		t.Errorf("MarkFailedPermanent by previous owner: got %v, want ErrInvalidState", err)
	}
	if err := s.MarkCompleted(ctx, j.ID, workerA); !errors.Is(err, nocode.ErrInvalidState) {
		t.Errorf("MarkCompleted by previous owner: got %v, want ErrInvalidState", err)
	}
	got := mustGet(t, s, j.ID)
	if got.Status != job.StatusProcessing || got.WorkerID.String() != workerB.String() {
		t.Fatalf("status=%s worker=%s, want processing under %s", got.Status, got.WorkerID, workerB)
	}

	if err := s.MarkCompleted(ctx, j.ID, workerB); err != nil {
		t.Fatalf("MarkCompleted by current owner: %v", err)
	}
}

func testResetToPending(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.ResetToPending(ctx, id.NewJobID()); !errors.Is(err, nocode.ErrJobNotFound) {
		t.Errorf("missing: got %v, want ErrJobNotFound", err)
	}

	j := NewJob(job.TypeGeneration, 0, past(time.Second))
	mustEnqueue(t, s, j)
	if err := s.ResetToPending(ctx, j.ID); !errors.Is(err, nocode.ErrInvalidState) {
		t.Errorf("pending: got %v, want ErrInvalidState", err)
	}

	mustClaim(t, s)
	if err := s.MarkFailedPermanent(ctx, j.ID, workerA, "boom", 3); err != nil {
		t.Fatal(err)
	}
	if err := s.ResetToPending(ctx, j.ID); err != nil {
		t.Fatalf("ResetToPending: %v", err)
	}

	got := mustGet(t, s, j.ID)
	if got.Status != job.StatusPending || got.Attempts != 0 || got.Error != "" {
		t.Errorf("status=%s attempts=%d error=%q", got.Status, got.Attempts, got.Error)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Errorf("timestamps not cleared: started=%v completed=%v", got.StartedAt, got.CompletedAt)
	}
	if again := mustClaim(t, s); again.ID.String() != j.ID.String() {
		t.Errorf("reset job not claimable")
	}
}

func testListFailedOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := past(time.Minute)
	var order []id.JobID
	for i := range 3 {
		j := NewJob(job.TypeGeneration, 0, base.Add(time.Duration(i)*time.Second))
		mustEnqueue(t, s, j)
		mustClaim(t, s)
		if err := s.MarkFailedPermanent(ctx, j.ID, workerA, "boom", 1); err != nil {
			t.Fatal(err)
		}
		order = append(order, j.ID)
		time.Sleep(5 * time.Millisecond)
	}
	other := NewJob(job.TypeGeneration, 0, base)
	mustEnqueue(t, s, other)

	failed, err := s.ListFailed(ctx, job.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 3 {
		t.Fatalf("ListFailed returned %d jobs, want 3", len(failed))
	}
	for i := range failed {
		want := order[len(order)-1-i]
		if failed[i].ID.String() != want.String() {
			t.Errorf("failed[%d] = %s, want %s", i, failed[i].ID, want)
		}
	}

	page, err := s.ListFailed(ctx, job.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].ID.String() != order[1].String() {
		t.Errorf("page = %v", page)
	}
}

func testListJobsByStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := past(time.Minute)
	var ids []id.JobID
	for i := range 4 {
		j := NewJob(job.TypeValidation, 0, base.Add(time.Duration(i)*time.Second))
		j.ScheduledFor = time.Now().UTC().Add(time.Hour)
		mustEnqueue(t, s, j)
		ids = append(ids, j.ID)
	}

	all, err := s.ListJobsByStatus(ctx, job.StatusPending, job.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 || all[0].ID.String() != ids[0].String() {
		t.Fatalf("got %d jobs, first %v", len(all), all)
	}
	page, err := s.ListJobsByStatus(ctx, job.StatusPending, job.ListOpts{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID.String() != ids[2].String() {
		t.Errorf("page = %v", page)
	}
	none, err := s.ListJobsByStatus(ctx, job.StatusCompleted, job.ListOpts{})
	if err != nil || len(none) != 0 {
		t.Errorf("completed = %v, %v", none, err)
	}
}

func testCountJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := past(time.Minute)
	for i := range 4 {
		mustEnqueue(t, s, NewJob(job.TypeGeneration, 0, base.Add(time.Duration(i)*time.Second)))
	}
	done := mustClaim(t, s)
	if err := s.MarkCompleted(ctx, done.ID, workerA); err != nil {
		t.Fatal(err)
	}
	bad := mustClaim(t, s)
	if err := s.MarkFailedPermanent(ctx, bad.ID, workerA, "boom", 1); err != nil {
		t.Fatal(err)
	}
	mustClaim(t, s)

	want := map[job.Status]int64{
		job.StatusPending:    1,
		job.StatusProcessing: 1,
		job.StatusCompleted:  1,
		job.StatusFailed:     1,
		"":                   4,
	}
	for status, n := range want {
		got, err := s.CountJobs(ctx, job.CountOpts{Status: status})
		if err != nil {
			t.Fatal(err)
		}
		if got != n {
			t.Errorf("CountJobs(%q) = %d, want %d", status, got, n)
		}
	}
}

func testRecords(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := result.New("r1", "button")
	if err := s.CreateRecord(ctx, r); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if err := s.CreateRecord(ctx, r); !errors.Is(err, nocode.ErrRecordAlreadyExists) {
		t.Errorf("duplicate: got %v, want ErrRecordAlreadyExists", err)
	}
	if _, err := s.GetRecord(ctx, "missing"); !errors.Is(err, nocode.ErrRecordNotFound) {
		t.Errorf("missing: got %v, want ErrRecordNotFound", err)
	}

	valid := false
	err := result.Update(ctx, s, "r1", func(rec *result.Record) {
		rec.Status = result.StatusCompleted
		rec.Result = "<Button/>"
		rec.TokensUsed = 42
		rec.Valid = &valid
		rec.Issues = []string{"missing aria-label"}
		rec.Explanation = "a button"
		rec.Tests = "test()"
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.GetRecord(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != result.StatusCompleted || got.Result != "<Button/>" || got.TokensUsed != 42 {
		t.Errorf("record = %+v", got)
	}
	if got.Valid == nil || *got.Valid || len(got.Issues) != 1 || got.Issues[0] != "missing aria-label" {
		t.Errorf("validation fields = %v %v", got.Valid, got.Issues)
	}
	if got.Explanation != "a button" || got.Tests != "test()" || got.Prompt != "button" {
		t.Errorf("text fields = %+v", got)
	}

	if err := s.UpdateRecord(ctx, result.New("nope", "")); !errors.Is(err, nocode.ErrRecordNotFound) {
		t.Errorf("update missing: got %v, want ErrRecordNotFound", err)
	}
}
