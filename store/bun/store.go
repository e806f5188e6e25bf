package bunstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/svetoslav0421/nocode-claude-ai/job"
	"github.com/svetoslav0421/nocode-claude-ai/result"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ job.Store    = (*Store)(nil)
	_ result.Store = (*Store)(nil)
)

// Store is a Bun ORM implementation of store.Store using PostgreSQL dialect.
// The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range []any{(*jobModel)(nil), (*recordModel)(nil)} {
			if _, err := tx.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("nocode/bun: create table: %w", err)
			}
		}

		indexes := []struct {
			name    string
			columns []string
			where   string
		}{
			{"idx_nocode_jobs_claim", []string{"priority DESC", "created_at ASC", "id ASC"}, "status = 'pending'"},
			{"idx_nocode_jobs_status", []string{"status"}, ""},
			{"idx_nocode_jobs_failed", []string{"completed_at DESC"}, "status = 'failed'"},
			{"idx_nocode_jobs_heartbeat", []string{"heartbeat_at"}, "status = 'processing'"},
		}
		for _, idx := range indexes {
			q := tx.NewCreateIndex().
				Table("nocode_jobs").
				Index(idx.name).
				IfNotExists()
			for _, col := range idx.columns {
				q = q.ColumnExpr(col)
			}
			if idx.where != "" {
				q = q.Where(idx.where)
			}
			if _, err := q.Exec(ctx); err != nil {
				return fmt.Errorf("nocode/bun: create index %s: %w", idx.name, err)
			}
		}

		s.logger.Debug("bun schema ready")
		return nil
	})
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}
