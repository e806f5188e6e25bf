// Package client is a Go client for a remote nocode worker's HTTP API.
//
// Usage:
//
//	c := client.New("http://localhost:8080")
//
//	j, err := c.Enqueue(ctx, job.TypeGeneration, handlers.GenerationPayload{
//	    ResultID: "r1",
//	    Prompt:   "a todo app",
//	})
//
//	events, err := c.Subscribe(ctx, stream.JobTopic(j.ID.String()))
//	for evt := range events {
//	    fmt.Println(evt.Type)
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/backoff"
)

// Client talks to the worker API over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	// Subscription reconnection.
	reconnect  bool
	maxRetries int
	backoff    backoff.Strategy
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{},
		logger:     slog.Default(),
		maxRetries: 5,
		backoff:    backoff.NewExponential(time.Second, 30*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Error is a non-2xx API response. It unwraps to the matching engine
// sentinel so callers can use errors.Is with nocode.ErrJobNotFound and
// nocode.ErrInvalidState.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("nocode/client: %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return nocode.ErrJobNotFound
	case http.StatusConflict:
		return nocode.ErrInvalidState
	case http.StatusBadRequest:
		if strings.Contains(e.Message, nocode.ErrUnknownJobType.Error()) {
			return nocode.ErrUnknownJobType
		}
	}
	return nil
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("nocode/client: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("nocode/client: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("nocode/client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("nocode/client: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}
	return &Error{StatusCode: resp.StatusCode, Message: body.Error}
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
