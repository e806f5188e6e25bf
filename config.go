package nocode

import "time"

// Config holds configuration for the Dispatcher.
type Config struct {
	// PollInterval is the fixed tick on which the poller claims work.
	PollInterval time.Duration `yaml:"poll_interval"`

	// JobTimeout bounds a single handler invocation when the job does not
	// carry its own timeout.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// MaxAttempts is the default attempt budget for newly enqueued jobs.
	MaxAttempts int `yaml:"max_attempts"`

	// ShutdownTimeout is the maximum time to wait for the in-flight job
	// during graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// HeartbeatInterval is how often the in-flight job's heartbeat is
	// refreshed.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// VisibilityTimeout is how long a processing job may go without a
	// heartbeat before it is returned to pending.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`

	// BackoffInitial and BackoffMax bound the retry delay.
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:      time.Second,
		JobTimeout:        2 * time.Minute,
		MaxAttempts:       3,
		ShutdownTimeout:   30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		VisibilityTimeout: 5 * time.Minute,
		BackoffInitial:    2 * time.Second,
		BackoffMax:        5 * time.Minute,
	}
}
