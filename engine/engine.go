package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/backoff"
	"github.com/svetoslav0421/nocode-claude-ai/ext"
	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
	mw "github.com/svetoslav0421/nocode-claude-ai/middleware"
	"github.com/svetoslav0421/nocode-claude-ai/observability"
	"github.com/svetoslav0421/nocode-claude-ai/queue"
	"github.com/svetoslav0421/nocode-claude-ai/result"
	"github.com/svetoslav0421/nocode-claude-ai/worker"
)

const instrumentationName = "github.com/svetoslav0421/nocode-claude-ai"

// Engine wraps a Dispatcher with typed subsystem access.
// Use Build() to create one from a Dispatcher.
type Engine struct {
	d          *nocode.Dispatcher
	extensions *ext.Registry
	registry   *job.Registry
	jobStore   job.Store
	records    result.Store
	bo         backoff.Strategy
	executor   *worker.Executor
	poller     *worker.Poller
	mws        []mw.Middleware
	logger     *slog.Logger

	limits       []queue.Limit
	queueManager *queue.Manager

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain, inside the
// default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy. Without it the engine uses
// exponential backoff with jitter bounded by the dispatcher's
// BackoffInitial and BackoffMax.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithTypeLimits installs per-job-type concurrency and rate limits. Types
// not listed run unlimited.
func WithTypeLimits(limits ...queue.Limit) Option {
	return func(eng *Engine) {
		eng.limits = append(eng.limits, limits...)
	}
}

// WithTracerProvider sets the OTel TracerProvider used by the tracing
// middleware. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets the OTel MeterProvider used by the metrics
// middleware and the lifecycle metrics extension.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Dispatcher.
// The Dispatcher's store must implement job.Store.
func Build(d *nocode.Dispatcher, opts ...Option) (*Engine, error) {
	logger := d.Logger()
	store := d.Store()
	if store == nil {
		return nil, nocode.ErrNoStore
	}

	js, ok := store.(job.Store)
	if !ok {
		return nil, fmt.Errorf("nocode: store %T does not implement job.Store", store)
	}

	eng := &Engine{
		d:          d,
		extensions: ext.NewRegistry(logger),
		registry:   job.NewRegistry(),
		jobStore:   js,
		logger:     logger,
	}
	// Records are optional: a job-only store still runs handlers that do
	// not write results.
	if rs, ok := store.(result.Store); ok {
		eng.records = rs
	}

	for _, opt := range opts {
		opt(eng)
	}

	config := d.Config()
	if eng.bo == nil {
		eng.bo = backoff.NewExponentialWithJitter(config.BackoffInitial, config.BackoffMax)
	}

	var tracingMw, metricsMw mw.Middleware
	var obsExt *observability.MetricsExtension
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		metricsMw = mw.Metrics()
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// recover → tracing → metrics → logging → user middleware → timeout.
	allMws := make([]mw.Middleware, 0, 4+len(eng.mws))
	allMws = append(allMws,
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
	)
	allMws = append(allMws, eng.mws...)

	eng.executor = worker.NewExecutor(eng.registry, eng.extensions, eng.jobStore, eng.bo, logger, allMws,
		worker.WithJobTimeout(config.JobTimeout),
	)

	pollerOpts := []worker.PollerOption{
		worker.WithPollInterval(config.PollInterval),
		worker.WithHeartbeatInterval(config.HeartbeatInterval),
		worker.WithVisibilityTimeout(config.VisibilityTimeout),
	}
	if len(eng.limits) > 0 {
		eng.queueManager = queue.NewManager(eng.limits...)
		pollerOpts = append(pollerOpts, worker.WithLimiter(eng.queueManager))
	}
	eng.poller = worker.NewPoller(eng.jobStore, eng.executor, eng.extensions, logger, pollerOpts...)

	d.SetPoller(eng.poller)
	d.SetExtensions(eng.extensions)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Enqueue marshals payload and enqueues a job of type t.
func Enqueue[T any](ctx context.Context, eng *Engine, t job.Type, payload T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", t, err)
	}
	return eng.EnqueueRaw(ctx, t, data, opts...)
}

// EnqueueRaw enqueues a job with a pre-serialized payload. Options
// registered on the type's definition apply first, then opts.
func (eng *Engine) EnqueueRaw(ctx context.Context, t job.Type, payload []byte, opts ...job.Option) (*job.Job, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", nocode.ErrUnknownJobType, t)
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, fmt.Errorf("payload for job %q is not valid JSON", t)
	}

	jobOpts := eng.registry.Options(t)
	for _, opt := range opts {
		opt(&jobOpts)
	}
	if jobOpts.MaxAttempts <= 0 {
		jobOpts.MaxAttempts = eng.d.Config().MaxAttempts
	}

	now := time.Now().UTC()
	j := &job.Job{
		Entity:       nocode.Entity{CreatedAt: now, UpdatedAt: now},
		ID:           id.NewJobID(),
		Type:         t,
		Payload:      payload,
		Status:       job.StatusPending,
		Priority:     jobOpts.Priority,
		MaxAttempts:  jobOpts.MaxAttempts,
		ScheduledFor: now,
		Timeout:      jobOpts.Timeout,
	}
	if !jobOpts.RunAt.IsZero() {
		j.ScheduledFor = jobOpts.RunAt.UTC()
	}

	if err := eng.jobStore.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}

	eng.extensions.EmitJobEnqueued(ctx, j)
	return j, nil
}

// Stats is a snapshot of job counts per status.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// Total returns the sum of every status count.
func (s Stats) Total() int64 { return s.Pending + s.Processing + s.Completed + s.Failed }

// Stats counts jobs per status. Counts are taken one status at a time and
// may be mutually inconsistent under concurrent updates.
func (eng *Engine) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	for _, c := range []struct {
		status job.Status
		dst    *int64
	}{
		{job.StatusPending, &s.Pending},
		{job.StatusProcessing, &s.Processing},
		{job.StatusCompleted, &s.Completed},
		{job.StatusFailed, &s.Failed},
	} {
		n, err := eng.jobStore.CountJobs(ctx, job.CountOpts{Status: c.status})
		if err != nil {
			return Stats{}, fmt.Errorf("count %s jobs: %w", c.status, err)
		}
		*c.dst = n
	}
	return s, nil
}

// ListFailed returns failed jobs, most recently completed first.
func (eng *Engine) ListFailed(ctx context.Context, limit, offset int) ([]*job.Job, error) {
	return eng.jobStore.ListFailed(ctx, job.ListOpts{Limit: limit, Offset: offset})
}

// GetJob returns a job by ID.
func (eng *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.jobStore.GetJob(ctx, jobID)
}

// RetryJob returns a failed job to pending with attempts and error
// cleared. It fails with nocode.ErrJobNotFound or nocode.ErrInvalidState.
func (eng *Engine) RetryJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	if err := eng.jobStore.ResetToPending(ctx, jobID); err != nil {
		return nil, err
	}
	j, err := eng.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	eng.extensions.EmitJobReset(ctx, j)
	eng.logger.Info("job reset for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", string(j.Type)),
	)
	return j, nil
}

// Tick runs one poller cycle. Start does this on a fixed interval.
func (eng *Engine) Tick(ctx context.Context) (bool, error) {
	return eng.poller.Tick(ctx)
}

// Start begins job processing.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.d.Start(ctx)
}

// Stop stops the poller, waiting for the in-flight job until ctx ends,
// then closes the store.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.d.Stop(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Records returns the result record store, or nil when the dispatcher's
// store does not hold records.
func (eng *Engine) Records() result.Store { return eng.records }

// Dispatcher returns the underlying Dispatcher.
func (eng *Engine) Dispatcher() *nocode.Dispatcher { return eng.d }

// Poller returns the engine's poller.
func (eng *Engine) Poller() *worker.Poller { return eng.poller }

// QueueManager returns the per-type limit manager, or nil when no limits
// were configured.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }

// Ping checks store connectivity.
func (eng *Engine) Ping(ctx context.Context) error {
	return eng.d.Store().Ping(ctx)
}

// ListJobs returns jobs in status, oldest first.
func (eng *Engine) ListJobs(ctx context.Context, status job.Status, limit, offset int) ([]*job.Job, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", nocode.ErrInvalidState, status)
	}
	return eng.jobStore.ListJobsByStatus(ctx, status, job.ListOpts{Limit: limit, Offset: offset})
}
