// Package anthropic implements generation.Provider over the Anthropic
// Messages HTTP API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/svetoslav0421/nocode-claude-ai/generation"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-sonnet-4-20250514"
	APIVersion     = "2023-06-01"
)

// Compile-time interface check.
var _ generation.Provider = (*Provider)(nil)

// Provider calls POST /v1/messages.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	limiter *rate.Limiter
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at another endpoint, e.g. a proxy or a
// test server.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithModel sets the model name.
func WithModel(m string) Option {
	return func(p *Provider) { p.model = m }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.http = c }
}

// WithRateLimit caps outgoing requests per second. Callers block until a
// token is available or their context ends.
func WithRateLimit(rps float64, burst int) Option {
	return func(p *Provider) {
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	StopReason string `json:"stop_reason"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements generation.Provider.
func (p *Provider) Complete(ctx context.Context, req generation.Request) (*generation.Response, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, generation.Transient(req.Op, fmt.Errorf("rate limiter: %w", err))
		}
	}

	body, err := json.Marshal(messagesRequest{
		Model:     p.model,
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages:  []message{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, generation.InvalidInput(req.Op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, generation.InvalidInput(req.Op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, generation.Transient(req.Op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(req.Op, resp)
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, generation.Transient(req.Op, fmt.Errorf("decode response: %w", err))
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, generation.Transient(req.Op, errors.New("response has no text content"))
	}

	return &generation.Response{
		Text:         text.String(),
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}, nil
}

// classifyStatus maps a non-200 reply to a classified error. Rate limits,
// overload (529) and server errors are transient, 401 and 403 are auth
// failures, and other 4xx replies mean the request itself is unacceptable.
func classifyStatus(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(raw))
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error.Message != "" {
		msg = er.Error.Type + ": " + er.Error.Message
	}
	err := fmt.Errorf("anthropic error (status %d): %s", resp.StatusCode, msg)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= 500:
		return generation.Transient(op, err)
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return generation.Auth(op, err)
	default:
		return generation.InvalidInput(op, err)
	}
}
