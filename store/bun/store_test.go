//go:build integration

package bunstore_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/job"
	"github.com/svetoslav0421/nocode-claude-ai/store"
	bunstore "github.com/svetoslav0421/nocode-claude-ai/store/bun"
	"github.com/svetoslav0421/nocode-claude-ai/store/storetest"
)

// setupTestDB creates a Postgres container and returns a migrated Bun DB.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("nocode_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})

	if migErr := bunstore.New(db).Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}
	return db
}

func TestStore(t *testing.T) {
	db := setupTestDB(t)

	storetest.Run(t, func(t *testing.T) store.Store {
		if _, err := db.ExecContext(context.Background(), `TRUNCATE nocode_jobs, nocode_results`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return bunstore.New(db, bunstore.WithLogger(slog.Default()))
	})
}

func TestStore_MigrateIdempotent(t *testing.T) {
	db := setupTestDB(t)
	s := bunstore.New(db)
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestStore_EmptyPayload(t *testing.T) {
	db := setupTestDB(t)
	s := bunstore.New(db)
	ctx := context.Background()

	j := storetest.NewJob(job.TypeExplanation, 0, time.Now().Add(-time.Second))
	j.Payload = nil
	j.Entity = nocode.NewEntity()
	if err := s.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Payload) != "null" {
		t.Fatalf("payload = %q, want null", got.Payload)
	}
}
