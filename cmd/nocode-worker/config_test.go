package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/job"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nocode.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	path := writeConfig(t, `
store:
  driver: postgres
  dsn: postgres://localhost/nocode
engine:
  poll_interval: 250ms
  max_attempts: 5
  visibility_timeout: 2m
  heartbeat_interval: 15s
limits:
  - type: generation
    max_concurrency: 2
    rate_limit: 1.5
    rate_burst: 3
generation:
  cache_ttl: 10m
log:
  level: debug
  format: text
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Store.Driver != driverPostgres || cfg.Store.DSN != "postgres://localhost/nocode" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.Engine.PollInterval != 250*time.Millisecond || cfg.Engine.MaxAttempts != 5 {
		t.Fatalf("engine = %+v", cfg.Engine)
	}
	// Unset fields keep their defaults.
	if cfg.Engine.JobTimeout != 2*time.Minute {
		t.Fatalf("job timeout = %v, want default", cfg.Engine.JobTimeout)
	}
	if len(cfg.Limits) != 1 || cfg.Limits[0].Type != job.TypeGeneration || cfg.Limits[0].MaxConcurrency != 2 {
		t.Fatalf("limits = %+v", cfg.Limits)
	}
	if cfg.Generation.CacheTTL != 10*time.Minute || cfg.Generation.CacheSize != 1024 {
		t.Fatalf("generation = %+v", cfg.Generation)
	}
	if cfg.Provider.APIKey != "sk-test" {
		t.Fatal("API key not read from the environment")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("NOCODE_STORE_DRIVER", "redis")
	t.Setenv("NOCODE_REDIS_ADDR", "localhost:6379")
	t.Setenv("NOCODE_HTTP_ADDR", ":9090")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Store.Driver != driverRedis || cfg.Store.RedisAddr != "localhost:6379" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("http addr = %q", cfg.HTTP.Addr)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		body    string
		wantErr string
	}{
		{
			name:    "missing api key",
			wantErr: "ANTHROPIC_API_KEY",
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"ANTHROPIC_API_KEY": "k", "NOCODE_STORE_DRIVER": "sqlite"},
			wantErr: `unknown store driver "sqlite"`,
		},
		{
			name:    "postgres without dsn",
			env:     map[string]string{"ANTHROPIC_API_KEY": "k", "NOCODE_STORE_DRIVER": "postgres"},
			wantErr: "needs a dsn",
		},
		{
			name:    "heartbeat not shorter than visibility",
			env:     map[string]string{"ANTHROPIC_API_KEY": "k"},
			body:    "engine:\n  heartbeat_interval: 5m\n  visibility_timeout: 1m\n",
			wantErr: "heartbeat_interval",
		},
		{
			name:    "zero job timeout",
			env:     map[string]string{"ANTHROPIC_API_KEY": "k"},
			body:    "engine:\n  job_timeout: 0s\n",
			wantErr: "engine.job_timeout must be positive",
		},
		{
			name:    "zero backoff initial",
			env:     map[string]string{"ANTHROPIC_API_KEY": "k"},
			body:    "engine:\n  backoff_initial: 0s\n",
			wantErr: "engine.backoff_initial must be positive",
		},
		{
			name:    "zero backoff max",
			env:     map[string]string{"ANTHROPIC_API_KEY": "k"},
			body:    "engine:\n  backoff_max: 0s\n",
			wantErr: "engine.backoff_max must be positive",
		},
		{
			name:    "backoff max below initial",
			env:     map[string]string{"ANTHROPIC_API_KEY": "k"},
			body:    "engine:\n  backoff_initial: 1m\n  backoff_max: 10s\n",
			wantErr: "must not be below",
		},
		{
			name:    "bad log level",
			env:     map[string]string{"ANTHROPIC_API_KEY": "k"},
			body:    "log:\n  level: loud\n",
			wantErr: "log level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ANTHROPIC_API_KEY", "")
			t.Setenv("NOCODE_STORE_DRIVER", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}
			_, err := loadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
