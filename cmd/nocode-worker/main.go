// Command nocode-worker runs the generation job poller and the
// inspection API against one store.
//
//	nocode-worker -config nocode.yaml
//
// A .env file in the working directory is loaded before the environment
// is read.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"golang.org/x/sync/errgroup"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/api"
	audithook "github.com/svetoslav0421/nocode-claude-ai/audit_hook"
	"github.com/svetoslav0421/nocode-claude-ai/engine"
	"github.com/svetoslav0421/nocode-claude-ai/generation"
	"github.com/svetoslav0421/nocode-claude-ai/generation/anthropic"
	"github.com/svetoslav0421/nocode-claude-ai/handlers"
	"github.com/svetoslav0421/nocode-claude-ai/store"
	bunstore "github.com/svetoslav0421/nocode-claude-ai/store/bun"
	"github.com/svetoslav0421/nocode-claude-ai/store/memory"
	"github.com/svetoslav0421/nocode-claude-ai/store/postgres"
	redisstore "github.com/svetoslav0421/nocode-claude-ai/store/redis"
	"github.com/svetoslav0421/nocode-claude-ai/stream"
)

func main() {
	configPath := flag.String("config", os.Getenv("NOCODE_CONFIG"), "path to the YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	s, closeBackend, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", nocode.ErrMigrationFailed, err)
	}

	d, err := nocode.New(
		nocode.WithConfig(cfg.Engine),
		nocode.WithStore(s),
		nocode.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	engOpts := []engine.Option{engine.WithTypeLimits(cfg.Limits...)}
	var apiOpts []api.Option
	var broker *stream.Broker
	if cfg.HTTP.Events {
		broker = stream.NewBroker(logger)
		engOpts = append(engOpts, engine.WithExtension(broker))
		apiOpts = append(apiOpts, api.WithEventStream(broker))
	}
	if cfg.Audit.Enabled {
		var auditOpts []audithook.Option
		if len(cfg.Audit.Actions) > 0 {
			auditOpts = append(auditOpts, audithook.WithActions(cfg.Audit.Actions...))
		}
		auditOpts = append(auditOpts, audithook.WithLogger(logger))
		engOpts = append(engOpts, engine.WithExtension(audithook.New(audithook.LogRecorder(logger), auditOpts...)))
	}
	eng, err := engine.Build(d, engOpts...)
	if err != nil {
		return err
	}

	provider := anthropic.New(cfg.Provider.APIKey,
		anthropic.WithBaseURL(cfg.Provider.BaseURL),
		anthropic.WithModel(cfg.Provider.Model),
		anthropic.WithRateLimit(cfg.Provider.RateLimit, cfg.Provider.RateBurst),
	)
	client := generation.NewClient(provider,
		generation.WithCache(cfg.Generation.CacheSize, cfg.Generation.CacheTTL),
		generation.WithBudgets(cfg.Generation.Budgets),
		generation.WithMaxInputBytes(cfg.Generation.MaxInputBytes),
		generation.WithLogger(logger),
	)
	handlers.RegisterAll(eng.Registry(), handlers.New(client, eng.Records(), logger))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.New(eng, logger, apiOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if broker != nil {
		// Open event streams would otherwise hold Shutdown until its deadline.
		srv.RegisterOnShutdown(func() { _ = broker.OnShutdown(context.Background()) })
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	logger.Info("worker started",
		slog.String("store", cfg.Store.Driver),
		slog.String("http_addr", cfg.HTTP.Addr),
		slog.String("worker_id", eng.Poller().WorkerID().String()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Engine.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down")
		httpErr := srv.Shutdown(shutdownCtx)
		engErr := eng.Stop(shutdownCtx)
		logger.Info("tokens used", slog.Int64("total", client.TokensUsed()))
		return errors.Join(httpErr, engErr)
	})
	return g.Wait()
}

// openStore connects the configured backend. The returned func releases
// connections the store does not own.
func openStore(ctx context.Context, c storeConfig, logger *slog.Logger) (store.Store, func(), error) {
	switch c.Driver {
	case driverPostgres:
		s, err := postgres.New(ctx, c.DSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil

	case driverBun:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(c.DSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), func() { _ = db.Close() }, nil

	case driverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return redisstore.New(client, redisstore.WithLogger(logger)), func() { _ = client.Close() }, nil

	default:
		return memory.New(), func() {}, nil
	}
}
