package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/api"
	"github.com/svetoslav0421/nocode-claude-ai/engine"
	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
	"github.com/svetoslav0421/nocode-claude-ai/store/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func setup(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	d, err := nocode.New(nocode.WithStore(memory.New()), nocode.WithLogger(discard))
	if err != nil {
		t.Fatalf("nocode.New: %v", err)
	}
	eng, err := engine.Build(d)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	srv := httptest.NewServer(api.New(eng, discard).Handler())
	t.Cleanup(srv.Close)
	return srv, eng
}

func do(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

// failJob enqueues a job and drives it to failed without a handler.
func failJob(t *testing.T, eng *engine.Engine) *job.Job {
	t.Helper()
	j, err := eng.EnqueueRaw(context.Background(), job.TypeValidation, []byte(`{"targetId":"r1","code":"x"}`))
	if err != nil {
		t.Fatalf("EnqueueRaw: %v", err)
	}
	if _, err := eng.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return j
}

func TestHealthz(t *testing.T) {
	srv, _ := setup(t)
	var body map[string]string
	if code := do(t, http.MethodGet, srv.URL+"/healthz", "", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestEnqueueAndGet(t *testing.T) {
	srv, _ := setup(t)

	var created job.Job
	code := do(t, http.MethodPost, srv.URL+"/v1/jobs",
		`{"type":"generation","payload":{"resultId":"r1","prompt":"button"},"priority":3}`, &created)
	if code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", code)
	}
	if created.Type != job.TypeGeneration || created.Priority != 3 || created.Status != job.StatusPending {
		t.Fatalf("created = %+v", created)
	}

	var got job.Job
	if code := do(t, http.MethodGet, srv.URL+"/v1/jobs/"+created.ID.String(), "", &got); code != http.StatusOK {
		t.Fatalf("get status = %d", code)
	}
	if got.ID != created.ID {
		t.Fatalf("got ID %s, want %s", got.ID, created.ID)
	}

	var pending []job.Job
	if code := do(t, http.MethodGet, srv.URL+"/v1/jobs?status=pending", "", &pending); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
}

func TestEnqueueRejectsBadInput(t *testing.T) {
	srv, _ := setup(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown type", `{"type":"deploy","payload":{}}`},
		{"malformed body", `{"type":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e struct{ Error string }
			if code := do(t, http.MethodPost, srv.URL+"/v1/jobs", tt.body, &e); code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", code)
			}
			if e.Error == "" {
				t.Fatal("empty error message")
			}
		})
	}
}

func TestGetJobErrors(t *testing.T) {
	srv, _ := setup(t)

	if code := do(t, http.MethodGet, srv.URL+"/v1/jobs/not-an-id", "", nil); code != http.StatusBadRequest {
		t.Fatalf("invalid id status = %d, want 400", code)
	}
	if code := do(t, http.MethodGet, srv.URL+"/v1/jobs/"+id.NewJobID().String(), "", nil); code != http.StatusNotFound {
		t.Fatalf("missing job status = %d, want 404", code)
	}
}

func TestStatsFailedAndRetry(t *testing.T) {
	srv, eng := setup(t)
	failed := failJob(t, eng)
	if _, err := eng.EnqueueRaw(context.Background(), job.TypeTests, []byte(`{}`)); err != nil {
		t.Fatalf("EnqueueRaw: %v", err)
	}

	var stats engine.Stats
	if code := do(t, http.MethodGet, srv.URL+"/v1/stats", "", &stats); code != http.StatusOK {
		t.Fatalf("stats status = %d", code)
	}
	if stats != (engine.Stats{Pending: 1, Failed: 1}) {
		t.Fatalf("stats = %+v", stats)
	}

	var list []job.Job
	if code := do(t, http.MethodGet, srv.URL+"/v1/jobs/failed?limit=10", "", &list); code != http.StatusOK {
		t.Fatalf("failed status = %d", code)
	}
	if len(list) != 1 || list[0].ID != failed.ID {
		t.Fatalf("failed list = %+v", list)
	}

	if code := do(t, http.MethodGet, srv.URL+"/v1/jobs/failed?limit=abc", "", nil); code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", code)
	}

	var reset job.Job
	if code := do(t, http.MethodPost, srv.URL+"/v1/jobs/"+failed.ID.String()+"/retry", "", &reset); code != http.StatusOK {
		t.Fatalf("retry status = %d", code)
	}
	if reset.Status != job.StatusPending || reset.Attempts != 0 {
		t.Fatalf("reset = %+v", reset)
	}

	// A pending job cannot be retried.
	if code := do(t, http.MethodPost, srv.URL+"/v1/jobs/"+failed.ID.String()+"/retry", "", nil); code != http.StatusConflict {
		t.Fatalf("second retry status = %d, want 409", code)
	}
}
