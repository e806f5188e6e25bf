package job

import "time"

// Options configures per-job behavior such as attempts and priority.
type Options struct {
	// MaxAttempts is the total number of attempts before the job fails.
	MaxAttempts int

	// Priority determines claim ordering. Higher values are processed first.
	Priority int

	// Timeout is the maximum duration a single attempt may run. Zero means
	// the engine default.
	Timeout time.Duration

	// RunAt delays the first attempt. Zero means immediate.
	RunAt time.Time
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		Priority:    0,
	}
}

// Option is a functional option for configuring a job.
type Option func(*Options)

// WithMaxAttempts sets the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithPriority sets the job priority. Higher values are processed first.
func WithPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithTimeout sets the maximum execution duration for one attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithRunAt schedules the first attempt at a specific time.
func WithRunAt(t time.Time) Option {
	return func(o *Options) {
		o.RunAt = t
	}
}
