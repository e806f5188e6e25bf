package nocode

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// Storer is the minimal store interface held by the Dispatcher.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used by the layers above to avoid import cycles.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// runner is the poller lifecycle as seen from the Dispatcher.
type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Dispatcher holds configuration, the store and the poller for one worker
// process. Create one with New and wire it with engine.Build.
type Dispatcher struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	poller     runner

	started bool
}

// New creates a new Dispatcher with the given options.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Logger returns the dispatcher's logger.
func (d *Dispatcher) Logger() *slog.Logger { return d.logger }

// Store returns the dispatcher's store.
func (d *Dispatcher) Store() Storer { return d.store }

// Config returns a copy of the dispatcher's configuration.
func (d *Dispatcher) Config() Config { return d.config }

// SetPoller sets the poller (called by engine.Build).
func (d *Dispatcher) SetPoller(p runner) { d.poller = p }

// SetExtensions sets the extension emitter (called by engine.Build).
func (d *Dispatcher) SetExtensions(e extensionEmitter) { d.extensions = e }

// Start begins job processing.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.poller == nil {
		return ErrNoStore
	}
	if err := d.poller.Start(ctx); err != nil {
		return err
	}
	d.started = true
	return nil
}

// Stop gracefully shuts down the poller and closes the store.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.poller != nil && d.started {
		if err := d.poller.Stop(ctx); err != nil {
			d.logger.Error("poller stop error", slog.String("error", err.Error()))
		}
		d.started = false
	}
	if d.extensions != nil {
		d.extensions.EmitShutdown(ctx)
	}
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// WithConfig replaces the whole configuration.
func WithConfig(c Config) Option {
	return func(d *Dispatcher) error {
		d.config = c
		return nil
	}
}

// WithPollInterval sets the poller tick.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.PollInterval = interval
		return nil
	}
}

// WithJobTimeout sets the default per-job execution budget.
func WithJobTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.JobTimeout = timeout
		return nil
	}
}

// WithMaxAttempts sets the default attempt budget for new jobs.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) error {
		d.config.MaxAttempts = n
		return nil
	}
}

// WithVisibilityTimeout sets how long a processing job may go silent
// before it is requeued.
func WithVisibilityTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.VisibilityTimeout = timeout
		return nil
	}
}

// WithHeartbeatInterval sets how often in-flight jobs report liveness.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.HeartbeatInterval = interval
		return nil
	}
}

// WithLogger sets the structured logger for the dispatcher.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) error {
		d.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the dispatcher.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(d *Dispatcher) error {
		d.store = s
		return nil
	}
}
