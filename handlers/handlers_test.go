package handlers_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/svetoslav0421/nocode-claude-ai/generation"
	"github.com/svetoslav0421/nocode-claude-ai/generation/generationtest"
	"github.com/svetoslav0421/nocode-claude-ai/handlers"
	"github.com/svetoslav0421/nocode-claude-ai/job"
	"github.com/svetoslav0421/nocode-claude-ai/result"
	"github.com/svetoslav0421/nocode-claude-ai/store/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// byOp replies with the text registered for the request's operation.
func byOp(replies map[string]string) *generationtest.Provider {
	return generationtest.New(func(_ context.Context, req generation.Request, _ int) (*generation.Response, error) {
		return &generation.Response{Text: replies[req.Op], InputTokens: 3, OutputTokens: 7}, nil
	})
}

func setup(t *testing.T, p generation.Provider) (*handlers.Handlers, *memory.Store) {
	t.Helper()
	s := memory.New()
	if err := s.CreateRecord(context.Background(), result.New("r1", "button")); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	return handlers.New(generation.NewClient(p), s, discard), s
}

func record(t *testing.T, s *memory.Store) *result.Record {
	t.Helper()
	r, err := s.GetRecord(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	return r
}

func TestGenerate(t *testing.T) {
	h, s := setup(t, byOp(map[string]string{
		generation.OpGenerate: "```tsx\nexport const Button = () => <button/>\n```",
	}))

	err := h.Generate(context.Background(), handlers.GenerationPayload{ResultID: "r1", Prompt: "button"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	r := record(t, s)
	if r.Status != result.StatusCompleted {
		t.Fatalf("status = %s, want completed", r.Status)
	}
	if r.Result != "export const Button = () => <button/>" {
		t.Fatalf("result = %q", r.Result)
	}
	if r.TokensUsed != 10 {
		t.Fatalf("tokensUsed = %d, want 10", r.TokensUsed)
	}
}

func TestGenerate_MissingRecordIsPermanent(t *testing.T) {
	h, _ := setup(t, generationtest.Static("code", 1))

	err := h.Generate(context.Background(), handlers.GenerationPayload{ResultID: "nope", Prompt: "button"})
	if !job.IsPermanent(err) {
		t.Fatalf("err = %v, want permanent", err)
	}
}

func TestGenerate_EmptyPromptIsPermanent(t *testing.T) {
	h, _ := setup(t, generationtest.Static("code", 1))

	err := h.Generate(context.Background(), handlers.GenerationPayload{ResultID: "r1"})
	if !job.IsPermanent(err) {
		t.Fatalf("err = %v, want permanent", err)
	}
}

func TestGenerate_ProviderFailureIsTransient(t *testing.T) {
	h, s := setup(t, generationtest.FailFirst(1, "code"))

	err := h.Generate(context.Background(), handlers.GenerationPayload{ResultID: "r1", Prompt: "button"})
	if err == nil || job.IsPermanent(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	if r := record(t, s); r.Status != result.StatusPending {
		t.Fatalf("status = %s, want pending", r.Status)
	}
}

func TestGenerate_RejectedCredentialsAreRetried(t *testing.T) {
	p := generationtest.New(func(_ context.Context, req generation.Request, _ int) (*generation.Response, error) {
		return nil, generation.Auth(req.Op, errors.New("invalid x-api-key"))
	})
	h, s := setup(t, p)

	err := h.Generate(context.Background(), handlers.GenerationPayload{ResultID: "r1", Prompt: "button"})
	if err == nil || job.IsPermanent(err) {
		t.Fatalf("err = %v, want retryable", err)
	}
	if generation.KindOf(err) != generation.KindAuth {
		t.Fatalf("kind = %v, want auth", generation.KindOf(err))
	}
	if r := record(t, s); r.Status != result.StatusPending {
		t.Fatalf("status = %s, want pending", r.Status)
	}
}

func TestImproveValidateExplainTests(t *testing.T) {
	h, s := setup(t, byOp(map[string]string{
		generation.OpImprove:  "```tsx\nimproved\n```",
		generation.OpValidate: `{"valid": false, "issues": ["missing aria-label"]}`,
		generation.OpExplain:  "It renders a button.",
		generation.OpTests:    "```ts\ntest('renders')\n```",
	}))
	ctx := context.Background()

	if err := h.Improve(ctx, handlers.ImprovementPayload{TargetID: "r1", Code: "old", Feedback: "better"}); err != nil {
		t.Fatalf("Improve: %v", err)
	}
	if r := record(t, s); r.Result != "improved" {
		t.Fatalf("result after improve = %q", r.Result)
	}

	if err := h.Validate(ctx, handlers.CodePayload{TargetID: "r1", Code: "improved"}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	r := record(t, s)
	if r.Valid == nil || *r.Valid {
		t.Fatalf("valid = %v, want false", r.Valid)
	}
	if len(r.Issues) != 1 || r.Issues[0] != "missing aria-label" {
		t.Fatalf("issues = %v", r.Issues)
	}
	if r.Result != "improved" {
		t.Fatalf("validated code not stored: %q", r.Result)
	}

	if err := h.Explain(ctx, handlers.CodePayload{TargetID: "r1", Code: "improved"}); err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if err := h.Tests(ctx, handlers.CodePayload{TargetID: "r1", Code: "improved"}); err != nil {
		t.Fatalf("Tests: %v", err)
	}
	r = record(t, s)
	if r.Explanation != "It renders a button." || r.Tests != "test('renders')" {
		t.Fatalf("explanation = %q, tests = %q", r.Explanation, r.Tests)
	}
}

func TestRegisterAll_GenerationFailureHook(t *testing.T) {
	h, s := setup(t, generationtest.Static("code", 1))
	reg := job.NewRegistry()
	handlers.RegisterAll(reg, h)

	for _, typ := range job.Types {
		if _, ok := reg.Get(typ); !ok {
			t.Fatalf("no handler for %s", typ)
		}
	}

	hook, ok := reg.FailureHook(job.TypeGeneration)
	if !ok {
		t.Fatal("generation has no failure hook")
	}
	cause := errors.New("provider down")
	if err := hook(context.Background(), []byte(`{"resultId":"r1","prompt":"button"}`), cause); err != nil {
		t.Fatalf("hook: %v", err)
	}

	r := record(t, s)
	if r.Status != result.StatusFailed || r.Error != "provider down" {
		t.Fatalf("got status=%s error=%q", r.Status, r.Error)
	}
}
