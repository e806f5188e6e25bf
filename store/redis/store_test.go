//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
	"github.com/svetoslav0421/nocode-claude-ai/store"
	redisstore "github.com/svetoslav0421/nocode-claude-ai/store/redis"
	"github.com/svetoslav0421/nocode-claude-ai/store/storetest"
)

func setupClient(t *testing.T) *goredis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	opts, err := goredis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStore(t *testing.T) {
	client := setupClient(t)

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		if err := client.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		s := redisstore.New(client)
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("load scripts: %v", err)
		}
		return s
	})
}

func TestClaimPromotesOnlyDueJobs(t *testing.T) {
	client := setupClient(t)
	s := redisstore.New(client)
	ctx := context.Background()

	later := storetest.NewJob(job.TypeTests, 100, time.Now().Add(-time.Minute))
	later.ScheduledFor = time.Now().Add(150 * time.Millisecond)
	now := storetest.NewJob(job.TypeTests, 0, time.Now().Add(-time.Second))
	for _, j := range []*job.Job{later, now} {
		if err := s.EnqueueJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	first, err := s.ClaimNext(ctx, testWorker)
	if err != nil || first == nil || first.ID.String() != now.ID.String() {
		t.Fatalf("first claim = %v, %v; want the due job", first, err)
	}
	if again, _ := s.ClaimNext(ctx, testWorker); again != nil {
		t.Fatalf("claimed %s before it was due", again.ID)
	}

	time.Sleep(200 * time.Millisecond)
	second, err := s.ClaimNext(ctx, testWorker)
	if err != nil || second == nil || second.ID.String() != later.ID.String() {
		t.Fatalf("second claim = %v, %v; want the delayed job", second, err)
	}

	n, err := client.ZCard(ctx, "nocode:ready").Result()
	if err != nil || n != 0 {
		t.Errorf("ready set size = %d, %v; want 0", n, err)
	}
}

var testWorker = id.NewWorkerID()
