package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/backoff"
	"github.com/svetoslav0421/nocode-claude-ai/ext"
	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
	"github.com/svetoslav0421/nocode-claude-ai/middleware"
	"github.com/svetoslav0421/nocode-claude-ai/store/memory"
	"github.com/svetoslav0421/nocode-claude-ai/worker"
)

type payload struct {
	ResultID string `json:"resultId"`
}

var (
	discard  = slog.New(slog.NewTextHandler(io.Discard, nil))
	workerID = id.NewWorkerID()
)

func setupExecutor(t *testing.T, bo backoff.Strategy) (*worker.Executor, *memory.Store, *job.Registry) {
	t.Helper()
	s := memory.New()
	reg := job.NewRegistry()
	exec := worker.NewExecutor(reg, ext.NewRegistry(discard), s, bo, discard,
		[]middleware.Middleware{middleware.Recover(discard)},
		worker.WithJobTimeout(time.Second),
	)
	return exec, s, reg
}

// claimed enqueues a job of type t with the given attempts and claims it.
func claimed(t *testing.T, s *memory.Store, typ job.Type, attempts int) *job.Job {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	j := &job.Job{
		Entity:       nocode.NewEntity(),
		ID:           id.NewJobID(),
		Type:         typ,
		Payload:      json.RawMessage(`{"resultId":"r1"}`),
		Status:       job.StatusPending,
		Attempts:     attempts,
		MaxAttempts:  3,
		ScheduledFor: now,
	}
	if err := s.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	got, err := s.ClaimNext(ctx, workerID)
	if err != nil || got == nil {
		t.Fatalf("ClaimNext: %v, %v", got, err)
	}
	return got
}

func reload(t *testing.T, s *memory.Store, jobID id.JobID) *job.Job {
	t.Helper()
	j, err := s.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return j
}

func TestExecutor_Success(t *testing.T) {
	exec, s, reg := setupExecutor(t, backoff.NewConstant(time.Minute))
	job.RegisterDefinition(reg, job.NewDefinition(job.TypeGeneration, func(_ context.Context, p payload) error {
		if p.ResultID != "r1" {
			t.Errorf("payload resultId = %q", p.ResultID)
		}
		return nil
	}))

	j := claimed(t, s, job.TypeGeneration, 0)
	outcome, err := exec.Execute(context.Background(), j)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome != worker.OutcomeCompleted {
		t.Fatalf("outcome = %q, want completed", outcome)
	}

	got := reload(t, s, j.ID)
	if got.Status != job.StatusCompleted || got.Attempts != 0 || got.CompletedAt == nil {
		t.Fatalf("got status=%s attempts=%d completedAt=%v", got.Status, got.Attempts, got.CompletedAt)
	}
}

func TestExecutor_TransientFailureSchedulesRetry(t *testing.T) {
	exec, s, reg := setupExecutor(t, backoff.NewConstant(time.Minute))
	job.RegisterDefinition(reg, job.NewDefinition(job.TypeGeneration, func(context.Context, payload) error {
		return errors.New("provider unavailable")
	}))

	before := time.Now()
	j := claimed(t, s, job.TypeGeneration, 0)
	outcome, err := exec.Execute(context.Background(), j)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome != worker.OutcomeRetrying {
		t.Fatalf("outcome = %q, want retrying", outcome)
	}

	got := reload(t, s, j.ID)
	if got.Status != job.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", got.Attempts)
	}
	if got.Error != "provider unavailable" {
		t.Fatalf("error = %q", got.Error)
	}
	if !got.ScheduledFor.After(before.Add(59 * time.Second)) {
		t.Fatalf("scheduledFor %v not pushed out by backoff", got.ScheduledFor)
	}
}

func TestExecutor_FinalAttemptFails(t *testing.T) {
	exec, s, reg := setupExecutor(t, backoff.NewConstant(time.Minute))
	job.RegisterDefinition(reg, job.NewDefinition(job.TypeGeneration, func(context.Context, payload) error {
		return errors.New("still down")
	}))

	j := claimed(t, s, job.TypeGeneration, 2)
	outcome, _ := exec.Execute(context.Background(), j)
	if outcome != worker.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", outcome)
	}

	got := reload(t, s, j.ID)
	if got.Status != job.StatusFailed || got.Attempts != 3 {
		t.Fatalf("got status=%s attempts=%d, want failed/3", got.Status, got.Attempts)
	}
	if got.CompletedAt == nil {
		t.Fatal("completedAt not set")
	}
}

func TestExecutor_PermanentFailureRunsHook(t *testing.T) {
	exec, s, reg := setupExecutor(t, backoff.NewConstant(time.Minute))

	var hookCause error
	def := job.NewDefinition(job.TypeGeneration, func(context.Context, payload) error {
		return job.Permanent(errors.New("prompt is empty"))
	}).WithFailureHook(func(_ context.Context, p payload, cause error) error {
		if p.ResultID != "r1" {
			t.Errorf("hook payload resultId = %q", p.ResultID)
		}
		hookCause = cause
		return nil
	})
	job.RegisterDefinition(reg, def)

	j := claimed(t, s, job.TypeGeneration, 0)
	if _, err := exec.Execute(context.Background(), j); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := reload(t, s, j.ID)
	if got.Status != job.StatusFailed || got.Attempts != 1 {
		t.Fatalf("got status=%s attempts=%d, want failed/1", got.Status, got.Attempts)
	}
	if hookCause == nil || !job.IsPermanent(hookCause) {
		t.Fatalf("hook cause = %v, want permanent error", hookCause)
	}
}

func TestExecutor_UnknownTypeFails(t *testing.T) {
	exec, s, _ := setupExecutor(t, backoff.NewConstant(time.Minute))

	j := claimed(t, s, job.TypeExplanation, 0)
	if _, err := exec.Execute(context.Background(), j); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := reload(t, s, j.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "unknown job type") {
		t.Fatalf("error = %q, want unknown job type", got.Error)
	}
}

func TestExecutor_TimeoutIsTransient(t *testing.T) {
	exec, s, reg := setupExecutor(t, backoff.NewConstant(time.Minute))
	job.RegisterDefinition(reg, job.NewDefinition(job.TypeGeneration, func(ctx context.Context, _ payload) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	j := claimed(t, s, job.TypeGeneration, 0)
	j.Timeout = 10 * time.Millisecond
	outcome, err := exec.Execute(context.Background(), j)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome != worker.OutcomeRetrying {
		t.Fatalf("outcome = %q, want retrying", outcome)
	}
	if got := reload(t, s, j.ID); got.Attempts != 1 || got.Status != job.StatusPending {
		t.Fatalf("got status=%s attempts=%d", got.Status, got.Attempts)
	}
}

func TestExecutor_PanicIsPermanent(t *testing.T) {
	exec, s, reg := setupExecutor(t, backoff.NewConstant(time.Minute))
	job.RegisterDefinition(reg, job.NewDefinition(job.TypeGeneration, func(context.Context, payload) error {
		panic("boom")
	}))

	j := claimed(t, s, job.TypeGeneration, 0)
	if _, err := exec.Execute(context.Background(), j); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := reload(t, s, j.ID); got.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
}

func TestExecutor_CancelReleasesClaim(t *testing.T) {
	exec, s, reg := setupExecutor(t, backoff.NewConstant(time.Minute))

	started := make(chan struct{})
	job.RegisterDefinition(reg, job.NewDefinition(job.TypeGeneration, func(ctx context.Context, _ payload) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))

	j := claimed(t, s, job.TypeGeneration, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	outcome, err := exec.Execute(ctx, j)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome != worker.OutcomeReleased {
		t.Fatalf("outcome = %q, want released", outcome)
	}

	got := reload(t, s, j.ID)
	if got.Status != job.StatusPending || got.Attempts != 1 {
		t.Fatalf("got status=%s attempts=%d, want pending/1", got.Status, got.Attempts)
	}
	if !got.WorkerID.IsNil() {
		t.Fatalf("worker still assigned: %s", got.WorkerID)
	}
}

func TestExecutor_FailFailSucceed(t *testing.T) {
	exec, s, reg := setupExecutor(t, backoff.NewConstant(0))

	var calls atomic.Int32
	job.RegisterDefinition(reg, job.NewDefinition(job.TypeGeneration, func(context.Context, payload) error {
		if calls.Add(1) <= 2 {
			return errors.New("flaky")
		}
		return nil
	}))

	j := claimed(t, s, job.TypeGeneration, 0)
	for range 3 {
		if _, err := exec.Execute(context.Background(), j); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		next, err := s.ClaimNext(context.Background(), workerID)
		if err != nil {
			t.Fatalf("ClaimNext: %v", err)
		}
		if next == nil {
			break
		}
		j = next
	}

	got := reload(t, s, j.ID)
	if got.Status != job.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", got.Attempts)
	}
	if calls.Load() != 3 {
		t.Fatalf("handler calls = %d, want 3", calls.Load())
	}
}
