package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for generation metrics.
const meterName = "github.com/svetoslav0421/nocode-claude-ai/generation"

// Operation names, used as Error.Op and the "op" metric attribute.
const (
	OpGenerate = "generate_component"
	OpImprove  = "improve_code"
	OpExplain  = "explain_code"
	OpTests    = "generate_tests"
	OpValidate = "validate_component"
)

// Component is the outcome of GenerateComponent.
type Component struct {
	Code       string `json:"code"`
	TokensUsed int    `json:"tokensUsed"`
	Cached     bool   `json:"cached"`
}

// Validation is the outcome of ValidateComponent.
type Validation struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// Budgets holds the output token budget of each operation.
type Budgets struct {
	Generate int `yaml:"generate"`
	Improve  int `yaml:"improve"`
	Explain  int `yaml:"explain"`
	Tests    int `yaml:"tests"`
	Validate int `yaml:"validate"`
}

// DefaultBudgets returns the budgets used when none are configured.
func DefaultBudgets() Budgets {
	return Budgets{
		Generate: 4096,
		Improve:  4096,
		Explain:  1024,
		Tests:    2048,
		Validate: 1024,
	}
}

// Client calls the provider with per-operation budgets, caches generated
// components by prompt and accounts for the tokens spent.
type Client struct {
	provider Provider
	cache    *cache
	budgets  Budgets
	maxInput int
	logger   *slog.Logger

	cacheSize int
	cacheTTL  time.Duration
	meter     metric.Meter

	tokens       atomic.Int64
	tokenCounter metric.Int64Counter
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
}

// Option configures a Client.
type Option func(*Client)

// WithCache sets the cache bound and time-to-live.
func WithCache(size int, ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheSize = size
		c.cacheTTL = ttl
	}
}

// WithBudgets overrides the per-operation token budgets. Zero fields keep
// their defaults.
func WithBudgets(b Budgets) Option {
	return func(c *Client) {
		d := c.budgets
		if b.Generate > 0 {
			d.Generate = b.Generate
		}
		if b.Improve > 0 {
			d.Improve = b.Improve
		}
		if b.Explain > 0 {
			d.Explain = b.Explain
		}
		if b.Tests > 0 {
			d.Tests = b.Tests
		}
		if b.Validate > 0 {
			d.Validate = b.Validate
		}
		c.budgets = d
	}
}

// WithMaxInputBytes bounds prompt and code inputs. Longer inputs are
// rejected as invalid before reaching the provider.
func WithMaxInputBytes(n int) Option {
	return func(c *Client) { c.maxInput = n }
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMeter sets the meter used for token and cache instruments.
func WithMeter(m metric.Meter) Option {
	return func(c *Client) { c.meter = m }
}

// NewClient creates a Client over p.
func NewClient(p Provider, opts ...Option) *Client {
	c := &Client{
		provider:  p,
		budgets:   DefaultBudgets(),
		maxInput:  64 << 10,
		logger:    slog.Default(),
		cacheSize: 1024,
		cacheTTL:  time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.meter == nil {
		c.meter = otel.Meter(meterName)
	}
	c.cache = newCache(c.cacheSize, c.cacheTTL)

	// On error the OTel API returns noop instruments.
	c.tokenCounter, _ = c.meter.Int64Counter(
		"nocode.generation.tokens",
		metric.WithDescription("Tokens consumed by provider calls"),
		metric.WithUnit("{token}"),
	)
	c.cacheHits, _ = c.meter.Int64Counter(
		"nocode.generation.cache.hits",
		metric.WithDescription("GenerateComponent calls served from cache"),
	)
	c.cacheMisses, _ = c.meter.Int64Counter(
		"nocode.generation.cache.misses",
		metric.WithDescription("GenerateComponent calls sent to the provider"),
	)
	return c
}

// TokensUsed returns the tokens spent by this client since creation.
func (c *Client) TokensUsed() int64 { return c.tokens.Load() }

// CacheLen returns the number of live cache entries.
func (c *Client) CacheLen() int { return c.cache.len() }

// PurgeCache drops every cached component.
func (c *Client) PurgeCache() { c.cache.purge() }

// GenerateComponent produces component code for prompt. A cached result
// for the exact same prompt within the TTL is returned with TokensUsed=0.
func (c *Client) GenerateComponent(ctx context.Context, prompt string) (*Component, error) {
	if err := c.checkInput(OpGenerate, "prompt", prompt); err != nil {
		return nil, err
	}

	if code, ok := c.cache.get(prompt); ok {
		c.cacheHits.Add(ctx, 1)
		return &Component{Code: code, Cached: true}, nil
	}
	c.cacheMisses.Add(ctx, 1)

	resp, err := c.complete(ctx, Request{
		Op:        OpGenerate,
		System:    systemGenerate,
		Prompt:    prompt,
		MaxTokens: c.budgets.Generate,
	})
	if err != nil {
		return nil, err
	}

	code := extractCode(resp.Text)
	if code == "" {
		return nil, Transient(OpGenerate, errors.New("provider returned no code"))
	}
	c.cache.put(prompt, code)
	return &Component{Code: code, TokensUsed: resp.TotalTokens()}, nil
}

// ImproveCode rewrites code according to feedback.
func (c *Client) ImproveCode(ctx context.Context, code, feedback string) (string, error) {
	if err := c.checkInput(OpImprove, "code", code); err != nil {
		return "", err
	}
	if err := c.checkInput(OpImprove, "feedback", feedback); err != nil {
		return "", err
	}

	resp, err := c.complete(ctx, Request{
		Op:        OpImprove,
		System:    systemImprove,
		Prompt:    fmt.Sprintf("Component:\n```tsx\n%s\n```\n\nFeedback:\n%s", code, feedback),
		MaxTokens: c.budgets.Improve,
	})
	if err != nil {
		return "", err
	}
	improved := extractCode(resp.Text)
	if improved == "" {
		return "", Transient(OpImprove, errors.New("provider returned no code"))
	}
	return improved, nil
}

// ExplainCode describes code in prose.
func (c *Client) ExplainCode(ctx context.Context, code string) (string, error) {
	if err := c.checkInput(OpExplain, "code", code); err != nil {
		return "", err
	}
	resp, err := c.complete(ctx, Request{
		Op:        OpExplain,
		System:    systemExplain,
		Prompt:    code,
		MaxTokens: c.budgets.Explain,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// GenerateTests writes a test file for code.
func (c *Client) GenerateTests(ctx context.Context, code string) (string, error) {
	if err := c.checkInput(OpTests, "code", code); err != nil {
		return "", err
	}
	resp, err := c.complete(ctx, Request{
		Op:        OpTests,
		System:    systemTests,
		Prompt:    code,
		MaxTokens: c.budgets.Tests,
	})
	if err != nil {
		return "", err
	}
	return extractCode(resp.Text), nil
}

// ValidateComponent reviews code and reports whether it is valid along
// with the issues found.
func (c *Client) ValidateComponent(ctx context.Context, code string) (*Validation, error) {
	if err := c.checkInput(OpValidate, "code", code); err != nil {
		return nil, err
	}
	resp, err := c.complete(ctx, Request{
		Op:        OpValidate,
		System:    systemValidate,
		Prompt:    code,
		MaxTokens: c.budgets.Validate,
	})
	if err != nil {
		return nil, err
	}
	v, err := parseValidation(resp.Text)
	if err != nil {
		return nil, Transient(OpValidate, fmt.Errorf("parse provider output: %w", err))
	}
	return v, nil
}

func (c *Client) checkInput(op, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return InvalidInput(op, fmt.Errorf("%s is empty", field))
	}
	if c.maxInput > 0 && len(value) > c.maxInput {
		return InvalidInput(op, fmt.Errorf("%s is %d bytes, limit is %d", field, len(value), c.maxInput))
	}
	return nil
}

func (c *Client) complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.provider.Complete(ctx, req)
	if err != nil {
		gerr := wrap(req.Op, err)
		c.logger.Warn("generation request failed",
			slog.String("op", req.Op),
			slog.String("kind", gerr.Kind.String()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, gerr
	}

	total := resp.TotalTokens()
	c.tokens.Add(int64(total))
	c.tokenCounter.Add(ctx, int64(total), metric.WithAttributes(attribute.String("op", req.Op)))
	c.logger.Debug("generation request completed",
		slog.String("op", req.Op),
		slog.Int("tokens", total),
		slog.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}
