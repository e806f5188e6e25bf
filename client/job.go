package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/engine"
	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// EnqueueOptions are the optional fields of an enqueue request.
type EnqueueOptions struct {
	Priority    int
	MaxAttempts int
	RunAt       time.Time
}

type enqueueRequest struct {
	Type        job.Type        `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	MaxAttempts int             `json:"maxAttempts,omitempty"`
	RunAt       *time.Time      `json:"runAt,omitempty"`
}

// Enqueue submits a job. payload is marshalled to JSON.
func (c *Client) Enqueue(ctx context.Context, t job.Type, payload any, opts ...EnqueueOptions) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("nocode/client: marshal payload: %w", err)
	}
	req := enqueueRequest{Type: t, Payload: data}
	if len(opts) > 0 {
		o := opts[0]
		req.Priority, req.MaxAttempts = o.Priority, o.MaxAttempts
		if !o.RunAt.IsZero() {
			runAt := o.RunAt.UTC()
			req.RunAt = &runAt
		}
	}

	var j job.Job
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", req, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// GetJob fetches a job by ID.
func (c *Client) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var j job.Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+jobID.String(), nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJobs lists jobs in status, oldest first.
func (c *Client) ListJobs(ctx context.Context, status job.Status, limit, offset int) ([]*job.Job, error) {
	q := pageQuery(limit, offset)
	q.Set("status", string(status))
	var jobs []*job.Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs?"+q.Encode(), nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListFailed lists failed jobs, most recently updated first.
func (c *Client) ListFailed(ctx context.Context, limit, offset int) ([]*job.Job, error) {
	var jobs []*job.Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/failed?"+pageQuery(limit, offset).Encode(), nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// RetryJob moves a failed job back to pending.
func (c *Client) RetryJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var j job.Job
	if err := c.do(ctx, http.MethodPost, "/v1/jobs/"+jobID.String()+"/retry", nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// Stats returns per-status job counts.
func (c *Client) Stats(ctx context.Context) (engine.Stats, error) {
	var s engine.Stats
	err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &s)
	return s, err
}

// Health returns nil when the worker and its store are reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return q
}
