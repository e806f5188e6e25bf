package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/job"
	"github.com/svetoslav0421/nocode-claude-ai/middleware"
)

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}
	mw2 := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	err := chain(context.Background(), newTestJob(), func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	called := false
	err := middleware.Chain()(context.Background(), newTestJob(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestChain_PropagatesError(t *testing.T) {
	pass := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		return next(ctx)
	}
	want := errors.New("handler error")

	err := middleware.Chain(pass)(context.Background(), newTestJob(), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_PanicIsPermanent(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	err := mw(context.Background(), newTestJob(), func(_ context.Context) error {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if !job.IsPermanent(err) {
		t.Errorf("panic error should be permanent: %v", err)
	}
	if got := err.Error(); !strings.Contains(got, "panic in generation job: test panic") {
		t.Errorf("unexpected error message: %q", got)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	called := false
	err := mw(context.Background(), newTestJob(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestLogging_PassesResult(t *testing.T) {
	mw := middleware.Logging(slog.Default())
	fail := errors.New("fail")

	for _, want := range []error{nil, fail, job.Permanent(fail)} {
		err := mw(context.Background(), newTestJob(), func(_ context.Context) error {
			return want
		})
		if err != want { //nolint:errorlint // identity is the point
			t.Errorf("expected %v, got %v", want, err)
		}
	}
}

func TestTimeout_JobTimeoutWins(t *testing.T) {
	mw := middleware.Timeout(time.Hour)
	j := newTestJob()
	j.Timeout = 20 * time.Millisecond

	err := mw(context.Background(), j, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestTimeout_Fallback(t *testing.T) {
	mw := middleware.Timeout(30 * time.Second)

	err := mw(context.Background(), newTestJob(), func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Fatal("expected a deadline")
		}
		if until := time.Until(deadline); until > 30*time.Second || until < 29*time.Second {
			t.Errorf("deadline in %v, want about 30s", until)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTimeout_Unbounded(t *testing.T) {
	mw := middleware.Timeout(0)

	_ = mw(context.Background(), newTestJob(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("expected no deadline")
		}
		return nil
	})
}
