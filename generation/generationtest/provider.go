// Package generationtest provides a scripted generation.Provider for tests.
package generationtest

import (
	"context"
	"errors"
	"sync"

	"github.com/svetoslav0421/nocode-claude-ai/generation"
)

// ErrUnavailable is the transient failure returned by FailFirst.
var ErrUnavailable = errors.New("provider unavailable")

// RespondFunc produces the reply for the n-th call (0-indexed).
type RespondFunc func(ctx context.Context, req generation.Request, n int) (*generation.Response, error)

// Provider is a generation.Provider driven by a RespondFunc. It records
// every request it receives.
type Provider struct {
	mu       sync.Mutex
	requests []generation.Request
	respond  RespondFunc
}

// New returns a Provider backed by fn.
func New(fn RespondFunc) *Provider {
	return &Provider{respond: fn}
}

// Static returns a Provider that always replies with text and the given
// output token count.
func Static(text string, tokens int) *Provider {
	return New(func(_ context.Context, _ generation.Request, _ int) (*generation.Response, error) {
		return &generation.Response{Text: text, InputTokens: 1, OutputTokens: tokens}, nil
	})
}

// FailFirst returns a Provider whose first n calls fail transiently and
// whose later calls reply with text.
func FailFirst(n int, text string) *Provider {
	return New(func(_ context.Context, req generation.Request, call int) (*generation.Response, error) {
		if call < n {
			return nil, generation.Transient(req.Op, ErrUnavailable)
		}
		return &generation.Response{Text: text, InputTokens: 1, OutputTokens: 10}, nil
	})
}

// Complete implements generation.Provider.
func (p *Provider) Complete(ctx context.Context, req generation.Request) (*generation.Response, error) {
	p.mu.Lock()
	n := len(p.requests)
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.respond(ctx, req, n)
}

// Calls returns how many requests the provider has received.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Requests returns a copy of the received requests.
func (p *Provider) Requests() []generation.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]generation.Request, len(p.requests))
	copy(out, p.requests)
	return out
}
