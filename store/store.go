// Package store defines the aggregate persistence interface. Each subsystem
// (job, result) defines its own store interface and the composite Store
// composes them. Backends: Memory, Postgres, Bun and Redis.
package store

import (
	"context"

	"github.com/svetoslav0421/nocode-claude-ai/job"
	"github.com/svetoslav0421/nocode-claude-ai/result"
)

// Store is the aggregate persistence interface.
// A single backend implements every subsystem store.
type Store interface {
	job.Store
	result.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
