package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/generation"
	"github.com/svetoslav0421/nocode-claude-ai/generation/anthropic"
	"github.com/svetoslav0421/nocode-claude-ai/queue"
)

// Store drivers.
const (
	driverMemory   = "memory"
	driverPostgres = "postgres"
	driverBun      = "bun"
	driverRedis    = "redis"
)

type storeConfig struct {
	Driver        string `yaml:"driver"`
	DSN           string `yaml:"dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"-"`
	RedisDB       int    `yaml:"redis_db"`
}

type generationConfig struct {
	CacheSize     int                `yaml:"cache_size"`
	CacheTTL      time.Duration      `yaml:"cache_ttl"`
	MaxInputBytes int                `yaml:"max_input_bytes"`
	Budgets       generation.Budgets `yaml:"budgets"`
}

type providerConfig struct {
	APIKey    string  `yaml:"-"`
	BaseURL   string  `yaml:"base_url"`
	Model     string  `yaml:"model"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type httpConfig struct {
	Addr string `yaml:"addr"`
	// Events enables the server-sent event stream at /v1/events.
	Events bool `yaml:"events"`
}

type auditConfig struct {
	Enabled bool     `yaml:"enabled"`
	Actions []string `yaml:"actions"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// config is the worker's file configuration. Secrets never come from the
// file; they are read from the environment.
type config struct {
	Store      storeConfig      `yaml:"store"`
	Engine     nocode.Config    `yaml:"engine"`
	Limits     []queue.Limit    `yaml:"limits"`
	Generation generationConfig `yaml:"generation"`
	Provider   providerConfig   `yaml:"provider"`
	HTTP       httpConfig       `yaml:"http"`
	Audit      auditConfig      `yaml:"audit"`
	Log        logConfig        `yaml:"log"`
}

func defaultConfig() config {
	return config{
		Store:  storeConfig{Driver: driverMemory},
		Engine: nocode.DefaultConfig(),
		Generation: generationConfig{
			CacheSize:     1024,
			CacheTTL:      time.Hour,
			MaxInputBytes: 64 << 10,
			Budgets:       generation.DefaultBudgets(),
		},
		Provider: providerConfig{
			BaseURL:   anthropic.DefaultBaseURL,
			Model:     anthropic.DefaultModel,
			RateLimit: 5,
			RateBurst: 5,
		},
		HTTP: httpConfig{Addr: ":8080", Events: true},
		Log:  logConfig{Level: "info", Format: "json"},
	}
}

// loadConfig reads path over the defaults, then applies environment
// overrides. An empty path skips the file.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, cfg.validate()
}

func applyEnv(cfg *config) {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&cfg.Provider.APIKey, "ANTHROPIC_API_KEY")
	set(&cfg.Provider.BaseURL, "ANTHROPIC_BASE_URL")
	set(&cfg.Store.Driver, "NOCODE_STORE_DRIVER")
	set(&cfg.Store.DSN, "NOCODE_DATABASE_URL")
	set(&cfg.Store.RedisAddr, "NOCODE_REDIS_ADDR")
	set(&cfg.Store.RedisPassword, "NOCODE_REDIS_PASSWORD")
	set(&cfg.HTTP.Addr, "NOCODE_HTTP_ADDR")
	set(&cfg.Log.Level, "NOCODE_LOG_LEVEL")
}

func (c config) validate() error {
	var errs []error
	switch c.Store.Driver {
	case driverMemory:
	case driverPostgres, driverBun:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store driver %q needs a dsn (NOCODE_DATABASE_URL)", c.Store.Driver))
		}
	case driverRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store driver \"redis\" needs redis_addr (NOCODE_REDIS_ADDR)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Provider.APIKey == "" {
		errs = append(errs, errors.New("ANTHROPIC_API_KEY is not set"))
	}
	if c.Engine.PollInterval <= 0 {
		errs = append(errs, errors.New("engine.poll_interval must be positive"))
	}
	if c.Engine.JobTimeout <= 0 {
		errs = append(errs, errors.New("engine.job_timeout must be positive"))
	}
	if c.Engine.BackoffInitial <= 0 {
		errs = append(errs, errors.New("engine.backoff_initial must be positive"))
	}
	if c.Engine.BackoffMax <= 0 {
		errs = append(errs, errors.New("engine.backoff_max must be positive"))
	} else if c.Engine.BackoffMax < c.Engine.BackoffInitial {
		errs = append(errs, errors.New("engine.backoff_max must not be below engine.backoff_initial"))
	}
	if c.Engine.MaxAttempts < 1 {
		errs = append(errs, errors.New("engine.max_attempts must be at least 1"))
	}
	if c.Engine.VisibilityTimeout > 0 && c.Engine.HeartbeatInterval >= c.Engine.VisibilityTimeout {
		errs = append(errs, errors.New("engine.heartbeat_interval must be shorter than engine.visibility_timeout"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

func newLogger(c logConfig) *slog.Logger {
	level, _ := parseLevel(c.Level)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
