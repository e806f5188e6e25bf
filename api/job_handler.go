package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// EnqueueRequest is the body of POST /v1/jobs.
type EnqueueRequest struct {
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	MaxAttempts int             `json:"maxAttempts,omitempty"`
	RunAt       *time.Time      `json:"runAt,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// errBadRequest marks client input errors.
var errBadRequest = errors.New("bad request")

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status := job.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = job.StatusPending
	}
	if !status.Valid() {
		a.writeError(w, r, fmt.Errorf("%w: unknown status %q", errBadRequest, status))
		return
	}

	jobs, err := a.eng.ListJobs(r.Context(), status, limit, offset)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(jobs))
}

func (a *API) listFailed(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	jobs, err := a.eng.ListFailed(r.Context(), limit, offset)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(jobs))
}

func (a *API) enqueueJob(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}
	t, err := job.ParseType(req.Type)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	opts := []job.Option{job.WithPriority(req.Priority)}
	if req.MaxAttempts > 0 {
		opts = append(opts, job.WithMaxAttempts(req.MaxAttempts))
	}
	if req.RunAt != nil {
		opts = append(opts, job.WithRunAt(*req.RunAt))
	}

	j, err := a.eng.EnqueueRaw(r.Context(), t, req.Payload, opts...)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	j, err := a.eng.GetJob(r.Context(), jobID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (a *API) retryJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	j, err := a.eng.RetryJob(r.Context(), jobID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func jobIDParam(r *http.Request) (id.JobID, error) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobId"))
	if err != nil {
		return id.Nil, fmt.Errorf("%w: invalid job ID: %v", errBadRequest, err)
	}
	return jobID, nil
}

func page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit, offset = defaultLimit, 0
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("%w: limit must be a positive integer", errBadRequest)
		}
		limit = min(limit, maxLimit)
	}
	if s := q.Get("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("%w: offset must be a non-negative integer", errBadRequest)
		}
	}
	return limit, offset, nil
}

func nonNil(jobs []*job.Job) []*job.Job {
	if jobs == nil {
		return []*job.Job{}
	}
	return jobs
}

// statusOf maps engine errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, nocode.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, nocode.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, errBadRequest), errors.Is(err, nocode.ErrUnknownJobType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		a.logger.Error("api request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		msg = http.StatusText(code)
	}
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
