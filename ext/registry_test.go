package ext_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/ext"
	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// allHooksExt implements every lifecycle hook.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) record(name string) error {
	e.calls = append(e.calls, name)
	return nil
}

func (e *allHooksExt) OnJobEnqueued(context.Context, *job.Job) error {
	return e.record("OnJobEnqueued")
}

func (e *allHooksExt) OnJobStarted(context.Context, *job.Job) error {
	return e.record("OnJobStarted")
}

func (e *allHooksExt) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	return e.record("OnJobCompleted")
}

func (e *allHooksExt) OnJobRetrying(context.Context, *job.Job, int, time.Time) error {
	return e.record("OnJobRetrying")
}

func (e *allHooksExt) OnJobFailed(context.Context, *job.Job, error) error {
	return e.record("OnJobFailed")
}

func (e *allHooksExt) OnJobReset(context.Context, *job.Job) error {
	return e.record("OnJobReset")
}

func (e *allHooksExt) OnStaleRequeued(context.Context, int64) error {
	return e.record("OnStaleRequeued")
}

func (e *allHooksExt) OnShutdown(context.Context) error {
	return e.record("OnShutdown")
}

// completedOnlyExt implements a single hook.
type completedOnlyExt struct {
	completed int
}

func (e *completedOnlyExt) Name() string { return "completed-only" }

func (e *completedOnlyExt) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	e.completed++
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobEnqueued(context.Context, *job.Job) error {
	return errors.New("boom")
}

func emitAll(r *ext.Registry) {
	ctx := context.Background()
	j := &job.Job{ID: id.NewJobID(), Type: job.TypeGeneration}

	r.EmitJobEnqueued(ctx, j)
	r.EmitJobStarted(ctx, j)
	r.EmitJobCompleted(ctx, j, time.Second)
	r.EmitJobRetrying(ctx, j, 1, time.Now())
	r.EmitJobFailed(ctx, j, errors.New("x"))
	r.EmitJobReset(ctx, j)
	r.EmitStaleRequeued(ctx, 2)
	r.EmitShutdown(ctx)
}

func TestRegistry_AllHooks(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	emitAll(r)

	want := []string{
		"OnJobEnqueued", "OnJobStarted", "OnJobCompleted", "OnJobRetrying",
		"OnJobFailed", "OnJobReset", "OnStaleRequeued", "OnShutdown",
	}
	if len(all.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", all.calls, want)
	}
	for i := range want {
		if all.calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, all.calls[i], want[i])
		}
	}
}

func TestRegistry_OptIn(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	only := &completedOnlyExt{}
	r.Register(only)

	emitAll(r)

	if only.completed != 1 {
		t.Errorf("completed = %d, want 1", only.completed)
	}
	if got := len(r.Extensions()); got != 1 {
		t.Errorf("Extensions() = %d, want 1", got)
	}
}

func TestRegistry_HookErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	r := ext.NewRegistry(slog.New(slog.NewTextHandler(&buf, nil)))
	r.Register(&failingExt{})
	after := &allHooksExt{}
	r.Register(after)

	r.EmitJobEnqueued(context.Background(), &job.Job{ID: id.NewJobID()})

	if len(after.calls) != 1 {
		t.Errorf("later extension not notified: %v", after.calls)
	}
	out := buf.String()
	if !strings.Contains(out, "extension hook error") || !strings.Contains(out, "extension=failing") {
		t.Errorf("log output = %q", out)
	}
}
