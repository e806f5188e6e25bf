package audithook_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	ah "github.com/svetoslav0421/nocode-claude-ai/audit_hook"
	"github.com/svetoslav0421/nocode-claude-ai/ext"
	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
)

type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
	err    error
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:          id.NewJobID(),
		Type:        job.TypeGeneration,
		Priority:    2,
		Attempts:    1,
		MaxAttempts: 3,
	}
}

func TestExtension_Name(t *testing.T) {
	if got := ah.New(&mockRecorder{}).Name(); got != "audit-hook" {
		t.Errorf("name = %q, want audit-hook", got)
	}
}

func TestExtension_JobEvents(t *testing.T) {
	j := newTestJob()
	j.WorkerID = id.NewWorkerID()
	ctx := context.Background()

	tests := []struct {
		name     string
		fire     func(*ah.Extension) error
		action   string
		severity string
		outcome  string
		reason   string
	}{
		{"enqueued", func(e *ah.Extension) error { return e.OnJobEnqueued(ctx, j) },
			ah.ActionJobEnqueued, ah.SeverityInfo, ah.OutcomeSuccess, ""},
		{"started", func(e *ah.Extension) error { return e.OnJobStarted(ctx, j) },
			ah.ActionJobStarted, ah.SeverityInfo, ah.OutcomeSuccess, ""},
		{"completed", func(e *ah.Extension) error { return e.OnJobCompleted(ctx, j, 150*time.Millisecond) },
			ah.ActionJobCompleted, ah.SeverityInfo, ah.OutcomeSuccess, ""},
		{"retrying", func(e *ah.Extension) error { return e.OnJobRetrying(ctx, j, 2, time.Now()) },
			ah.ActionJobRetrying, ah.SeverityWarning, ah.OutcomeFailure, ""},
		{"failed", func(e *ah.Extension) error { return e.OnJobFailed(ctx, j, errors.New("provider down")) },
			ah.ActionJobFailed, ah.SeverityCritical, ah.OutcomeFailure, "provider down"},
		{"reset", func(e *ah.Extension) error { return e.OnJobReset(ctx, j) },
			ah.ActionJobReset, ah.SeverityInfo, ah.OutcomeSuccess, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecorder{}
			if err := tt.fire(ah.New(rec)); err != nil {
				t.Fatalf("hook: %v", err)
			}
			evt := rec.last()
			if evt == nil {
				t.Fatal("no event recorded")
			}
			if evt.Action != tt.action || evt.Severity != tt.severity || evt.Outcome != tt.outcome {
				t.Errorf("event = %s/%s/%s, want %s/%s/%s",
					evt.Action, evt.Severity, evt.Outcome, tt.action, tt.severity, tt.outcome)
			}
			if evt.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", evt.Reason, tt.reason)
			}
			if evt.Resource != ah.ResourceJob || evt.ResourceID != j.ID.String() {
				t.Errorf("resource = %s/%s", evt.Resource, evt.ResourceID)
			}
			if evt.Category != ah.CategoryJob {
				t.Errorf("category = %q", evt.Category)
			}
			if evt.Metadata["job_type"] != "generation" {
				t.Errorf("job_type = %v", evt.Metadata["job_type"])
			}
		})
	}
}

func TestExtension_StaleRequeued(t *testing.T) {
	rec := &mockRecorder{}
	if err := ah.New(rec).OnStaleRequeued(context.Background(), 4); err != nil {
		t.Fatalf("OnStaleRequeued: %v", err)
	}
	evt := rec.last()
	if evt.Action != ah.ActionStaleRequeued || evt.Resource != ah.ResourcePoller {
		t.Fatalf("event = %+v", evt)
	}
	if evt.Metadata["count"] != int64(4) {
		t.Errorf("count = %v, want 4", evt.Metadata["count"])
	}
}

func TestExtension_WithActions(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionJobFailed))
	ctx := context.Background()
	j := newTestJob()

	_ = e.OnJobEnqueued(ctx, j)
	_ = e.OnJobCompleted(ctx, j, time.Second)
	_ = e.OnJobFailed(ctx, j, errors.New("x"))

	if rec.count() != 1 || rec.last().Action != ah.ActionJobFailed {
		t.Fatalf("recorded %d events, want only job.failed", rec.count())
	}
}

func TestExtension_RecorderErrorSwallowed(t *testing.T) {
	rec := &mockRecorder{err: errors.New("backend down")}
	var buf bytes.Buffer
	e := ah.New(rec, ah.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	if err := e.OnJobEnqueued(context.Background(), newTestJob()); err != nil {
		t.Fatalf("hook returned recorder error: %v", err)
	}
	if !strings.Contains(buf.String(), "backend down") {
		t.Fatalf("recorder error not logged: %s", buf.String())
	}
}

func TestLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	e := ah.New(ah.LogRecorder(logger))

	if err := e.OnJobFailed(context.Background(), newTestJob(), errors.New("provider down")); err != nil {
		t.Fatalf("OnJobFailed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"level=ERROR", "action=job.failed", `reason="provider down"`, "job_type=generation"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q lacks %q", out, want)
		}
	}
}

func TestExtension_ViaRegistry(t *testing.T) {
	rec := &mockRecorder{}
	reg := ext.NewRegistry(slog.Default())
	reg.Register(ah.New(rec))

	reg.EmitJobEnqueued(context.Background(), newTestJob())
	reg.EmitStaleRequeued(context.Background(), 1)

	if rec.count() != 2 {
		t.Fatalf("recorded %d events, want 2", rec.count())
	}
}
