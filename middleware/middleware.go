// Package middleware provides composable middleware for job execution.
package middleware

import (
	"context"

	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// Handler is the terminal function that executes job logic.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// job being executed and the next handler, and must call next unless it
// short-circuits with an error.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes middleware so that the first in the list is the
// outermost wrapper:
//
//	Chain(a, b)(ctx, j, h) // a → b → h
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			inner := h
			h = func(ctx context.Context) error {
				return mw(ctx, j, inner)
			}
		}
		return h(ctx)
	}
}
