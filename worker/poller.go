package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/ext"
	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
)

// Limiter gates execution per job type. The poller calls Acquire after a
// claim and Release once the job has run. queue.Manager implements it.
type Limiter interface {
	Acquire(t job.Type) bool
	Release(t job.Type)
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollInterval sets the fixed tick interval.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.pollInterval = d }
}

// WithHeartbeatInterval sets how often the in-flight job's heartbeat is
// refreshed. Zero disables heartbeats.
func WithHeartbeatInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.heartbeatInterval = d }
}

// WithVisibilityTimeout sets how long a processing job may go without a
// heartbeat before the sweep requeues it. Zero disables the sweep.
func WithVisibilityTimeout(d time.Duration) PollerOption {
	return func(p *Poller) { p.visibilityTimeout = d }
}

// WithLimiter installs per-type execution limits.
func WithLimiter(l Limiter) PollerOption {
	return func(p *Poller) { p.limiter = l }
}

// WithWorkerID overrides the generated worker identity.
func WithWorkerID(wid id.WorkerID) PollerOption {
	return func(p *Poller) { p.workerID = wid }
}

// Poller claims at most one job per tick and executes it synchronously.
// A tick that fires while the previous one is still running is skipped.
type Poller struct {
	store      job.Store
	executor   *Executor
	extensions *ext.Registry
	logger     *slog.Logger
	workerID   id.WorkerID
	limiter    Limiter

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	visibilityTimeout time.Duration

	inFlight atomic.Bool

	activeMu     sync.Mutex
	activeID     id.JobID
	activeCancel context.CancelFunc

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPoller creates a Poller.
func NewPoller(
	store job.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PollerOption,
) *Poller {
	p := &Poller{
		store:             store,
		executor:          executor,
		extensions:        extensions,
		logger:            logger,
		workerID:          id.NewWorkerID(),
		pollInterval:      time.Second,
		heartbeatInterval: 10 * time.Second,
		visibilityTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the identity this poller claims jobs under.
func (p *Poller) WorkerID() id.WorkerID { return p.workerID }

// Tick claims and runs one job. It reports whether a job was claimed. It
// returns false immediately when another tick is in flight. Errors are
// claim failures only; handler failures are recorded on the job.
func (p *Poller) Tick(ctx context.Context) (bool, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return false, nil
	}
	defer p.inFlight.Store(false)

	j, err := p.store.ClaimNext(ctx, p.workerID)
	if err != nil {
		return false, fmt.Errorf("worker: claim: %w", err)
	}
	if j == nil {
		return false, nil
	}

	if p.limiter != nil {
		if !p.limiter.Acquire(j.Type) {
			p.deny(ctx, j)
			return true, nil
		}
		defer p.limiter.Release(j.Type)
	}

	p.extensions.EmitJobStarted(ctx, j)

	jctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.track(j.ID, cancel)
	defer p.untrack()

	outcome, err := p.executor.Execute(jctx, j)
	if err != nil {
		p.logger.Error("job outcome not recorded",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", string(j.Type)),
			slog.String("error", err.Error()),
		)
		return true, nil
	}
	p.logger.Debug("job executed",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", string(j.Type)),
		slog.String("outcome", string(outcome)),
	)
	return true, nil
}

// deny returns a job the limiter refused, without consuming an attempt.
func (p *Poller) deny(ctx context.Context, j *job.Job) {
	runAt := time.Now().UTC().Add(p.pollInterval)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.executor.writeTimeout)
	defer cancel()
	if err := p.store.MarkFailedRetryable(wctx, j.ID, j.WorkerID, j.Error, j.Attempts, runAt); err != nil {
		p.logger.Error("failed to release rate-limited job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	p.logger.Debug("job deferred by type limit",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", string(j.Type)),
	)
}

// Start launches the tick, heartbeat and sweep loops. It returns
// immediately; calling it on a running poller is a no-op.
func (p *Poller) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})

	p.logger.Info("poller starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Duration("poll_interval", p.pollInterval),
	)

	p.wg.Add(1)
	go p.tickLoop()

	if p.heartbeatInterval > 0 {
		p.wg.Add(1)
		go p.every(p.heartbeatInterval, p.heartbeat)
	}
	if p.visibilityTimeout > 0 {
		p.wg.Add(1)
		go p.every(sweepInterval(p.visibilityTimeout), p.sweep)
	}
	return nil
}

// Stop stops ticking and waits for the in-flight job. When ctx ends first
// the job is cancelled, which releases its claim, and Stop waits for that
// write to finish.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.logger.Info("poller stopping", slog.String("worker_id", p.workerID.String()))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("poller stopped")
	case <-ctx.Done():
		p.logger.Warn("poller stop deadline passed, cancelling in-flight job")
		p.cancelActive()
		<-done
	}
	return nil
}

func (p *Poller) tickLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			select {
			case <-p.stopCh:
				return
			default:
			}
			if _, err := p.Tick(context.Background()); err != nil {
				p.logger.Error("poll tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (p *Poller) every(interval time.Duration, fn func(context.Context)) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			fn(context.Background())
		}
	}
}

func (p *Poller) heartbeat(ctx context.Context) {
	p.activeMu.Lock()
	jobID := p.activeID
	p.activeMu.Unlock()
	if jobID.IsNil() {
		return
	}
	if err := p.store.HeartbeatJob(ctx, jobID, p.workerID); err != nil {
		p.logger.Warn("heartbeat failed",
			slog.String("job_id", jobID.String()),
			slog.String("worker_id", p.workerID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Sweep requeues processing jobs whose heartbeat is older than the
// visibility timeout. Jobs the sweep fails for lack of attempts go through
// the same failure hook and JobFailed event as a handler failure. It
// returns the number of jobs recovered.
func (p *Poller) Sweep(ctx context.Context) (int64, error) {
	res, err := p.store.RequeueStale(ctx, p.visibilityTimeout)
	if err != nil {
		return 0, fmt.Errorf("worker: requeue stale: %w", err)
	}
	n := res.Total()
	if n > 0 {
		p.extensions.EmitStaleRequeued(ctx, n)
		p.logger.Warn("requeued stale jobs",
			slog.Int64("count", n),
			slog.Int("failed", len(res.Failed)),
		)
	}

	cause := job.Permanent(errors.New(job.StaleErrorMessage))
	for _, jobID := range res.Failed {
		j, err := p.store.GetJob(ctx, jobID)
		if err != nil {
			p.logger.Error("failed to load stale job",
				slog.String("job_id", jobID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		p.executor.notifyFailed(ctx, j, cause)
	}
	return n, nil
}

func (p *Poller) sweep(ctx context.Context) {
	if _, err := p.Sweep(ctx); err != nil {
		p.logger.Error("visibility sweep failed", slog.String("error", err.Error()))
	}
}

func (p *Poller) track(jobID id.JobID, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeID, p.activeCancel = jobID, cancel
	p.activeMu.Unlock()
}

func (p *Poller) untrack() {
	p.activeMu.Lock()
	p.activeID, p.activeCancel = id.JobID{}, nil
	p.activeMu.Unlock()
}

func (p *Poller) cancelActive() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	if p.activeCancel != nil {
		p.logger.Warn("cancelling in-flight job", slog.String("job_id", p.activeID.String()))
		p.activeCancel()
	}
}

// sweepInterval runs the sweep twice per visibility window.
func sweepInterval(visibility time.Duration) time.Duration {
	if d := visibility / 2; d >= time.Second {
		return d
	}
	return time.Second
}
